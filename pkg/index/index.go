// Package index is the writer/reader for the code index and its counter
// aggregator: it drives the parser facade and extractor for a single
// file and keeps the key-value store's logical indexes (d|, c|, u|,
// homeless|, classes|, resolve-todo|, resolve-cleanup|,
// doc-cpath|/doc-resolved|, counters|*) consistent inside one write
// transaction per public call.
package index

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/parsing"
	"github.com/opencodeindex/astidx/pkg/pathenc"

	"github.com/opencodeindex/astidx/pkg/extract"
)

// Sep is the U+26A1 key-component separator used throughout the key
// grammar.
const Sep = "⚡"

const (
	prefixD              = "d|"
	prefixC              = "c|"
	prefixU              = "u|"
	prefixHomeless       = "homeless|"
	prefixClasses        = "classes|"
	prefixResolveTodo    = "resolve-todo|"
	prefixResolveCleanup = "resolve-cleanup|"
	prefixDocCpath       = "doc-cpath|"
	prefixDocResolved    = "doc-resolved|"
	keyClassHierarchy    = "class-hierarchy|"
	keyCounterDefs       = "counters|defs"
	keyCounterUsages     = "counters|usages"
	keyCounterDocs       = "counters|docs"
)

// DKey builds a "d|<full>" key.
func DKey(full string) []byte { return []byte(prefixD + full) }

// CKey builds a "c|<suffix> ⚡ <full>" alias key.
func CKey(suffix, full string) []byte { return []byte(prefixC + suffix + Sep + full) }

// UKey builds a "u|<resolved> ⚡ <owner>" key.
func UKey(resolved, owner string) []byte { return []byte(prefixU + resolved + Sep + owner) }

// HomelessKey builds a "homeless|<guess> ⚡ <owner>" key.
func HomelessKey(guess, owner string) []byte { return []byte(prefixHomeless + guess + Sep + owner) }

// ClassesKey builds a "classes|<parent_tag> ⚡ <owner>" key.
func ClassesKey(parentTag, owner string) []byte { return []byte(prefixClasses + parentTag + Sep + owner) }

// ResolveTodoKey builds a "resolve-todo|<fileGlobalPath>" key.
func ResolveTodoKey(fileGlobalPath string) []byte { return []byte(prefixResolveTodo + fileGlobalPath) }

// ResolveCleanupKey builds a "resolve-cleanup|<owner>" key.
func ResolveCleanupKey(owner string) []byte { return []byte(prefixResolveCleanup + owner) }

// DocCpathKey builds a "doc-cpath|<fileGlobalPath>" key.
func DocCpathKey(fileGlobalPath string) []byte { return []byte(prefixDocCpath + fileGlobalPath) }

// DocResolvedKey builds a "doc-resolved|<fileGlobalPath>" key.
func DocResolvedKey(fileGlobalPath string) []byte { return []byte(prefixDocResolved + fileGlobalPath) }

// ClassHierarchyKey is the single snapshot key.
func ClassHierarchyKey() []byte { return []byte(keyClassHierarchy) }

// Index owns the KV handle and the in-memory counter deltas awaiting
// flush.
type Index struct {
	Store  *kv.Store
	Parser *parsing.Parser
	Logger *slog.Logger

	mu       sync.Mutex
	pending  model.Counters
	pendingN int
}

// New wires an Index over an already-open store and parser facade.
func New(store *kv.Store, parser *parsing.Parser, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{Store: store, Parser: parser, Logger: logger}
}

func cborMarshal(v any) []byte {
	b, err := model.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("index: cbor marshal invariant violated: %v", err))
	}
	return b
}

// DocAdd parses and indexes one file inside a single write transaction,
// returning the language tag and the file-global-path-qualified
// Definitions written.
func (idx *Index) DocAdd(cpath string, content []byte, errs *errstats.Sink) (string, []model.Definition, error) {
	fileGlobal := model.JoinPath(pathenc.Encode(cpath))

	res, err := idx.Parser.Parse(cpath, content)
	if err != nil {
		return "", nil, err
	}

	defs := extract.Extract(res.Lang, res.Symbols, errs)
	for i := range defs {
		qualify(&defs[i], fileGlobal)
	}

	txn := idx.Store.BeginWrite()
	defer txn.Discard()

	var (
		unresolvedUsages int
		resolvedOrHomes  int64
	)
	// Two identical calls produce the same u|/homeless| key; the counters
	// track record cardinality, so only the first write of a key counts.
	writtenUsageKeys := make(map[string]bool)

	for _, def := range defs {
		full := def.OfficialPathJoined()

		if err := txn.Put(DKey(full), cborMarshal(def)); err != nil {
			return "", nil, err
		}
		for _, suffix := range model.Suffixes(def.OfficialPath) {
			if err := txn.Put(CKey(model.JoinPath(suffix), full), []byte{}); err != nil {
				return "", nil, err
			}
		}
		for _, u := range def.Usages {
			switch {
			case u.Resolved():
				key := UKey(u.ResolvedAs, full)
				if err := txn.Put(key, cborMarshal(u.ULine)); err != nil {
					return "", nil, err
				}
				if !writtenUsageKeys[string(key)] {
					writtenUsageKeys[string(key)] = true
					resolvedOrHomes++
				}
			case len(u.TargetsForGuesswork) == 1 && !strings.HasPrefix(u.TargetsForGuesswork[0], "?::") && u.TargetsForGuesswork[0] != "":
				key := HomelessKey(u.TargetsForGuesswork[0], full)
				if err := txn.Put(key, cborMarshal(u.ULine)); err != nil {
					return "", nil, err
				}
				if !writtenUsageKeys[string(key)] {
					writtenUsageKeys[string(key)] = true
					resolvedOrHomes++
				}
			case len(u.TargetsForGuesswork) > 0:
				unresolvedUsages++
			}
		}
		if def.ThisIsAClass != "" {
			for _, parentTag := range def.ThisClassDerivedFrom {
				if err := txn.Put(ClassesKey(parentTag, full), []byte(def.ThisIsAClass)); err != nil {
					return "", nil, err
				}
			}
		}
	}

	if unresolvedUsages > 0 {
		if err := txn.Put(ResolveTodoKey(fileGlobal), []byte(cpath)); err != nil {
			return "", nil, err
		}
	}

	existing, err := txn.Get(DocCpathKey(fileGlobal))
	if err != nil {
		return "", nil, err
	}
	newDoc := existing == nil
	if newDoc {
		if err := txn.Put(DocCpathKey(fileGlobal), []byte(cpath)); err != nil {
			return "", nil, err
		}
	}

	if err := txn.Commit(); err != nil {
		return "", nil, err
	}

	idx.addDelta(int64(len(defs)), resolvedOrHomes, boolToInt64(newDoc))
	return res.Lang, defs, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// qualify prefixes a Definition's official_path with the file's global
// path and rewrites any "file::"-prefixed resolution to use it.
func qualify(def *model.Definition, fileGlobal string) {
	prefix := model.SplitPath(fileGlobal)
	def.OfficialPath = append(append([]string{}, prefix...), def.OfficialPath...)

	for i := range def.Usages {
		u := &def.Usages[i]
		u.ResolvedAs = rewriteFileRoot(u.ResolvedAs, fileGlobal)
		for j := range u.TargetsForGuesswork {
			u.TargetsForGuesswork[j] = rewriteFileRoot(u.TargetsForGuesswork[j], fileGlobal)
		}
	}
}

func rewriteFileRoot(s, fileGlobal string) string {
	switch {
	case strings.HasPrefix(s, "file::"):
		rest := strings.TrimPrefix(s, "file::")
		if rest == "" {
			return fileGlobal
		}
		return fileGlobal + "::" + rest
	case strings.HasPrefix(s, "root::"):
		return strings.TrimPrefix(s, "root::")
	default:
		return s
	}
}

// DocRemove deletes every record filed for cpath: its definitions,
// aliases, usage edges, class edges, bookkeeping records, and whatever
// the resolver wrote on its behalf (via the resolve-cleanup lists).
func (idx *Index) DocRemove(cpath string) error {
	fileGlobal := model.JoinPath(pathenc.Encode(cpath))

	rtxn := idx.Store.BeginRead()
	rows, err := rtxn.PrefixIter([]byte(prefixD + fileGlobal + "::"))
	rtxn.Discard()
	if err != nil {
		return err
	}

	var defs []model.Definition
	for _, row := range rows {
		var d model.Definition
		if err := model.Unmarshal(row.Value, &d); err != nil {
			idx.Logger.Warn("index.doc_remove.bad_definition", "cpath", cpath, "error", err)
			continue
		}
		defs = append(defs, d)
	}

	txn := idx.Store.BeginWrite()
	defer txn.Discard()

	var removedDefs, removedUsages int64
	deletedUsageKeys := make(map[string]bool)

	for _, def := range defs {
		full := def.OfficialPathJoined()
		removedDefs++

		for _, suffix := range model.Suffixes(def.OfficialPath) {
			if err := txn.Delete(CKey(model.JoinPath(suffix), full)); err != nil {
				return err
			}
		}
		for _, u := range def.Usages {
			switch {
			case u.Resolved():
				key := UKey(u.ResolvedAs, full)
				if err := txn.Delete(key); err != nil {
					return err
				}
				if !deletedUsageKeys[string(key)] {
					deletedUsageKeys[string(key)] = true
					removedUsages++
				}
			case len(u.TargetsForGuesswork) == 1 && !strings.HasPrefix(u.TargetsForGuesswork[0], "?::") && u.TargetsForGuesswork[0] != "":
				key := HomelessKey(u.TargetsForGuesswork[0], full)
				if err := txn.Delete(key); err != nil {
					return err
				}
				if !deletedUsageKeys[string(key)] {
					deletedUsageKeys[string(key)] = true
					removedUsages++
				}
			}
		}
		if def.ThisIsAClass != "" {
			for _, parentTag := range def.ThisClassDerivedFrom {
				if err := txn.Delete(ClassesKey(parentTag, full)); err != nil {
					return err
				}
			}
		}

		if cleanupRaw, err := txn.Get(ResolveCleanupKey(full)); err != nil {
			return err
		} else if cleanupRaw != nil {
			var keys []string
			if err := model.Unmarshal(cleanupRaw, &keys); err != nil {
				idx.Logger.Warn("index.doc_remove.bad_cleanup_list", "owner", full, "error", err)
			} else {
				for _, k := range keys {
					if err := txn.Delete([]byte(k)); err != nil {
						return err
					}
					if !deletedUsageKeys[k] {
						deletedUsageKeys[k] = true
						removedUsages++
					}
				}
			}
			if err := txn.Delete(ResolveCleanupKey(full)); err != nil {
				return err
			}
		}

		if err := txn.Delete(DKey(full)); err != nil {
			return err
		}
	}

	if err := txn.Delete(ResolveTodoKey(fileGlobal)); err != nil {
		return err
	}
	if err := txn.Delete(DocResolvedKey(fileGlobal)); err != nil {
		return err
	}

	existing, err := txn.Get(DocCpathKey(fileGlobal))
	if err != nil {
		return err
	}
	wasIndexed := existing != nil
	if wasIndexed {
		if err := txn.Delete(DocCpathKey(fileGlobal)); err != nil {
			return err
		}
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	idx.addDelta(-removedDefs, -removedUsages, -boolToInt64(wasIndexed))
	return nil
}

// AddCounterDelta accumulates an externally-produced counter delta (the
// resolver's u| edge writes) for the next FlushChanges.
func (idx *Index) AddCounterDelta(defs, usages, docs int64) {
	idx.addDelta(defs, usages, docs)
}

// addDelta accumulates a counter delta for later FlushChanges.
func (idx *Index) addDelta(defs, usages, docs int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pending.Defs += defs
	idx.pending.Usages += usages
	idx.pending.Docs += docs
	idx.pendingN++
}

// FlushChanges commits accumulated counter deltas in one write
// transaction. threshold == 0 forces a full flush regardless of how many
// deltas are pending.
func (idx *Index) FlushChanges(threshold int) error {
	idx.mu.Lock()
	if threshold != 0 && idx.pendingN < threshold {
		idx.mu.Unlock()
		return nil
	}
	delta := idx.pending
	idx.pending = model.Counters{}
	idx.pendingN = 0
	idx.mu.Unlock()

	if delta == (model.Counters{}) {
		return nil
	}

	txn := idx.Store.BeginWrite()
	defer txn.Discard()

	if err := bumpCounter(txn, keyCounterDefs, delta.Defs); err != nil {
		return err
	}
	if err := bumpCounter(txn, keyCounterUsages, delta.Usages); err != nil {
		return err
	}
	if err := bumpCounter(txn, keyCounterDocs, delta.Docs); err != nil {
		return err
	}
	return txn.Commit()
}

func bumpCounter(txn *kv.WriteTxn, key string, delta int64) error {
	raw, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	var current int64
	if raw != nil {
		if err := model.Unmarshal(raw, &current); err != nil {
			return err
		}
	}
	current += delta
	return txn.Put([]byte(key), cborMarshal(current))
}

// FetchCounters reads the durably-stored counters (not including any
// deltas still pending a FlushChanges call).
func (idx *Index) FetchCounters() (model.Counters, error) {
	txn := idx.Store.BeginRead()
	defer txn.Discard()

	var out model.Counters
	for key, dst := range map[string]*int64{
		keyCounterDefs:   &out.Defs,
		keyCounterUsages: &out.Usages,
		keyCounterDocs:   &out.Docs,
	} {
		raw, err := txn.Get([]byte(key))
		if err != nil {
			return model.Counters{}, err
		}
		if raw == nil {
			continue
		}
		if err := model.Unmarshal(raw, dst); err != nil {
			return model.Counters{}, err
		}
	}
	return out, nil
}

// DocDefs implements doc_defs: every Definition filed under a file's
// global path.
func (idx *Index) DocDefs(cpath string) ([]model.Definition, error) {
	fileGlobal := model.JoinPath(pathenc.Encode(cpath))
	txn := idx.Store.BeginRead()
	defer txn.Discard()

	rows, err := txn.PrefixIter([]byte(prefixD + fileGlobal + "::"))
	if err != nil {
		return nil, err
	}
	out := make([]model.Definition, 0, len(rows))
	for _, row := range rows {
		var d model.Definition
		if err := model.Unmarshal(row.Value, &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// DocUsages implements doc_usages: the in-file resolved edges recorded
// against every Definition in the file plus the file's doc-resolved list.
func (idx *Index) DocUsages(cpath string) ([]model.ResolvedUsage, error) {
	fileGlobal := model.JoinPath(pathenc.Encode(cpath))
	txn := idx.Store.BeginRead()
	defer txn.Discard()

	var out []model.ResolvedUsage

	rows, err := txn.PrefixIter([]byte(prefixD + fileGlobal + "::"))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		var d model.Definition
		if err := model.Unmarshal(row.Value, &d); err != nil {
			continue
		}
		for _, u := range d.Usages {
			if u.Resolved() {
				out = append(out, model.ResolvedUsage{ULine: u.ULine, ResolvedAs: u.ResolvedAs})
			}
		}
	}

	if raw, err := txn.Get(DocResolvedKey(fileGlobal)); err != nil {
		return nil, err
	} else if raw != nil {
		var extra []model.ResolvedUsage
		if err := model.Unmarshal(raw, &extra); err == nil {
			out = append(out, extra...)
		}
	}
	return out, nil
}
