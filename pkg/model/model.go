// Package model defines the core data types of the AST code index: the
// Definition/Usage records produced by the extractor, the class-hierarchy
// edges discovered across files, and the small set of durable counters
// the index keeps in sync with its key-value store.
package model

import "strings"

// SymbolType tags the kind of a raw or extracted symbol. Only the
// declaration kinds become Definitions; FunctionCall and VariableUsage
// are Usage edges attached to the Definition that contains them.
type SymbolType string

const (
	StructDeclaration     SymbolType = "StructDeclaration"
	TypeAlias             SymbolType = "TypeAlias"
	ClassFieldDeclaration SymbolType = "ClassFieldDeclaration"
	VariableDefinition    SymbolType = "VariableDefinition"
	FunctionDeclaration   SymbolType = "FunctionDeclaration"
	Unknown               SymbolType = "Unknown"
	ImportDeclaration     SymbolType = "ImportDeclaration"
	CommentDefinition     SymbolType = "CommentDefinition"
	Module                SymbolType = "Module"
	FunctionCall          SymbolType = "FunctionCall"
	VariableUsage         SymbolType = "VariableUsage"
)

// IsUsageKind reports whether a raw symbol of this type produces a Usage
// edge rather than a Definition record.
func IsUsageKind(t SymbolType) bool {
	return t == FunctionCall || t == VariableUsage
}

// Usage is an edge from an owning Definition to either another
// Definition (once resolved) or a set of unresolved candidate targets.
type Usage struct {
	ResolvedAs          string   `cbor:"r"`
	TargetsForGuesswork []string `cbor:"t"`
	DebugHint           string   `cbor:"d"`
	ULine               int      `cbor:"u"`
}

// Resolved reports whether this usage has already been pinned to a
// concrete official path.
func (u Usage) Resolved() bool {
	return u.ResolvedAs != ""
}

// Definition is a named declaration bound to a source file.
type Definition struct {
	OfficialPath         []string   `cbor:"p"`
	SymbolType           SymbolType `cbor:"st"`
	ThisIsAClass         string     `cbor:"c,omitempty"`
	ThisClassDerivedFrom []string   `cbor:"b,omitempty"`
	Usages               []Usage    `cbor:"us"`
	Cpath                string     `cbor:"cp"`
	DeclLine1            int        `cbor:"dl1"`
	DeclLine2            int        `cbor:"dl2"`
	BodyLine1            int        `cbor:"bl1"`
	BodyLine2            int        `cbor:"bl2"`
}

// JoinPath joins official-path components with the "::" separator used
// throughout the key grammar (double-colon paths).
func JoinPath(components []string) string {
	return strings.Join(components, "::")
}

// SplitPath is the inverse of JoinPath.
func SplitPath(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "::")
}

// OfficialPathJoined is a convenience accessor used when writing keys.
func (d Definition) OfficialPathJoined() string {
	return JoinPath(d.OfficialPath)
}

// Suffixes returns every non-empty suffix of the official path, longest
// (full path) first, down to the last single component. This is exactly
// the set of alias keys (c|<suffix>) that invariant 1 requires.
func Suffixes(path []string) [][]string {
	out := make([][]string, 0, len(path))
	for i := 0; i < len(path); i++ {
		out = append(out, path[i:])
	}
	return out
}

// ClassTag builds the canonical "<lang>🔎<ClassName>" identifier for a type.
func ClassTag(lang, className string) string {
	return lang + "🔎" + className
}

// Counters is the set of durable cardinality counters the index keeps
// consistent with the underlying record sets at every quiescent point.
type Counters struct {
	Defs   int64 `cbor:"defs"`
	Usages int64 `cbor:"usages"`
	Docs   int64 `cbor:"docs"`
}

// ResolvedUsage is one entry of a doc-resolved record: the in-file line
// of a usage site and the full official path it was pinned to.
type ResolvedUsage struct {
	ULine      int    `cbor:"u"`
	ResolvedAs string `cbor:"r"`
}
