// Package errstats collects non-fatal parse/extract/resolve errors with
// file and line provenance. The core never panics or returns these to
// the caller; they accumulate here for reporting.
package errstats

import "sync"

// Kind enumerates the recognized non-fatal error categories.
type Kind string

const (
	NamelessDeclaration  Kind = "nameless_declaration"
	NamelessUsage        Kind = "nameless_usage"
	BaseClassUsageFailed Kind = "base_class_usage_failed"
	NamelessTypeForVar   Kind = "nameless_type_for_var"
	NamelessTypeForArg   Kind = "nameless_type_for_arg"
	AmbiguousResolution  Kind = "ambiguous_resolution"
)

// Entry is one recorded error with its provenance.
type Entry struct {
	Cpath   string
	Line    int
	Kind    Kind
	Message string
}

// Sink is an append-only collector shared by extraction and the
// resolver; its methods take a mutex, so it is safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Add records one non-fatal error.
func (s *Sink) Add(cpath string, line int, kind Kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Cpath: cpath, Line: line, Kind: kind, Message: message})
}

// Entries returns a snapshot copy of everything recorded so far.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports how many errors have been recorded.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
