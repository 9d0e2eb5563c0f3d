// Package resolver pins unresolved usages to definitions across files:
// it decides when a class-hierarchy change demands a full cross-file
// re-resolution, and resolves one queued file at a time via
// class-hierarchy-aware guess expansion.
package resolver

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/hierarchy"
	"github.com/opencodeindex/astidx/pkg/index"
	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/model"
)

// classTagPattern finds "<lang>🔎<Name>" occurrences inside a guess
// string; it is pure and process-wide.
var classTagPattern = regexp.MustCompile(`(\w+)🔎(\w+)`)

// Stats accumulates the resolver's outcome tallies for one drain run.
type Stats struct {
	Homeless  int
	Connected int
	NotFound  int
	Ambiguous int
}

// Context is returned by LookIfFullResetNeeded and threaded through
// repeated ConnectOne calls.
type Context struct {
	Hierarchy hierarchy.Map
	Stats     Stats
}

// Resolver wires the index writer/reader, the error sink, and the class
// hierarchy builder together.
type Resolver struct {
	Index  *index.Index
	Errs   *errstats.Sink
	Logger *slog.Logger
}

// New builds a Resolver over an already-constructed Index.
func New(idx *index.Index, errs *errstats.Sink, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Index: idx, Errs: errs, Logger: logger}
}

const classHierarchyKey = "class-hierarchy|"
const docCpathPrefix = "doc-cpath|"
const resolveTodoPrefix = "resolve-todo|"
const dPrefix = "d|"

// LookIfFullResetNeeded flushes pending counters, recomputes the class
// hierarchy, and compares it to the stored snapshot. A changed hierarchy
// requeues every known document, since resolution outcomes can shift
// anywhere once ancestor chains move.
func (r *Resolver) LookIfFullResetNeeded() (*Context, error) {
	if err := r.Index.FlushChanges(0); err != nil {
		return nil, err
	}

	rtxn := r.Index.Store.BeginRead()
	existing, err := loadSnapshot(rtxn)
	if err != nil {
		rtxn.Discard()
		return nil, err
	}
	newHierarchy, err := hierarchy.Derive(rtxn)
	if err != nil {
		rtxn.Discard()
		return nil, err
	}
	var docRows []kv.KV
	if existing != nil && !hierarchy.Equal(newHierarchy, existing) || existing == nil {
		docRows, err = rtxn.PrefixIter([]byte(docCpathPrefix))
		if err != nil {
			rtxn.Discard()
			return nil, err
		}
	}
	rtxn.Discard()

	wasEmpty := existing == nil
	changed := !wasEmpty && !hierarchy.Equal(newHierarchy, existing)

	if wasEmpty || changed {
		wtxn := r.Index.Store.BeginWrite()
		defer wtxn.Discard()
		if err := writeSnapshot(wtxn, newHierarchy); err != nil {
			return nil, err
		}
		if changed {
			for _, row := range docRows {
				fileGlobal := strings.TrimPrefix(string(row.Key), docCpathPrefix)
				if err := wtxn.Put([]byte(resolveTodoPrefix+fileGlobal), row.Value); err != nil {
					return nil, err
				}
			}
		}
		if err := wtxn.Commit(); err != nil {
			return nil, err
		}
	}

	return &Context{Hierarchy: newHierarchy}, nil
}

func loadSnapshot(txn *kv.ReadTxn) (hierarchy.Map, error) {
	raw, err := txn.Get([]byte(classHierarchyKey))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var m hierarchy.Map
	if err := model.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeSnapshot(txn *kv.WriteTxn, m hierarchy.Map) error {
	b, err := model.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Put([]byte(classHierarchyKey), b)
}

// ConnectOne claims one resolve-todo record, pins that file's unresolved
// usages, and records the resolution side-effects. It returns true iff
// it found a record to process.
func (r *Resolver) ConnectOne(ctx *Context) (bool, error) {
	fileGlobal, found, err := r.claimOneTodo()
	if err != nil || !found {
		return false, err
	}

	defs, err := r.loadDocDefsByGlobalPath(fileGlobal)
	if err != nil {
		return false, err
	}

	wtxn := r.Index.Store.BeginWrite()
	defer wtxn.Discard()

	var resolvedPairs []model.ResolvedUsage
	var written, removed int64
	for _, def := range defs {
		owner := def.OfficialPathJoined()

		// Undo this definition's earlier resolver writes first, so a
		// re-resolution after a full reset never leaks stale edges from
		// the previous hierarchy.
		n, err := r.undoPriorCleanup(wtxn, owner)
		if err != nil {
			return false, err
		}
		removed += n

		keys, pairs := r.pinDefinition(wtxn, def, ctx)
		written += int64(len(keys))
		if len(keys) > 0 {
			b, err := model.Marshal(keys)
			if err != nil {
				return false, err
			}
			if err := wtxn.Put([]byte("resolve-cleanup|"+owner), b); err != nil {
				return false, err
			}
		}
		resolvedPairs = append(resolvedPairs, pairs...)
	}

	b, err := model.Marshal(resolvedPairs)
	if err != nil {
		return false, err
	}
	if err := wtxn.Put([]byte("doc-resolved|"+fileGlobal), b); err != nil {
		return false, err
	}

	if err := wtxn.Commit(); err != nil {
		return false, err
	}
	r.Index.AddCounterDelta(0, written-removed, 0)
	return true, nil
}

// undoPriorCleanup deletes every u| key listed in a definition's
// resolve-cleanup record, plus the record itself, returning how many edge
// keys were removed.
func (r *Resolver) undoPriorCleanup(txn *kv.WriteTxn, owner string) (int64, error) {
	cleanupKey := []byte("resolve-cleanup|" + owner)
	raw, err := txn.Get(cleanupKey)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	var removed int64
	var old []string
	if err := model.Unmarshal(raw, &old); err != nil {
		r.Logger.Warn("resolver.bad_cleanup_list", "owner", owner, "error", err)
	} else {
		for _, k := range old {
			if err := txn.Delete([]byte(k)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if err := txn.Delete(cleanupKey); err != nil {
		return removed, err
	}
	return removed, nil
}

func (r *Resolver) loadDocDefsByGlobalPath(fileGlobal string) ([]model.Definition, error) {
	txn := r.Index.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte(dPrefix + fileGlobal + "::"))
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

// claimOneTodo finds and atomically deletes one resolve-todo record. The
// deletion lives in its own commit so a crash before resolution
// completes leaves the file simply un-resolved, to be re-queued by the
// next full reset.
func (r *Resolver) claimOneTodo() (string, bool, error) {
	rtxn := r.Index.Store.BeginRead()
	rows, err := rtxn.PrefixIter([]byte(resolveTodoPrefix))
	rtxn.Discard()
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	key := rows[0].Key
	fileGlobal := strings.TrimPrefix(string(key), resolveTodoPrefix)

	wtxn := r.Index.Store.BeginWrite()
	defer wtxn.Discard()
	if err := wtxn.Delete(key); err != nil {
		return "", false, err
	}
	if err := wtxn.Commit(); err != nil {
		return "", false, err
	}
	return fileGlobal, true, nil
}

// pinDefinition runs the pinning algorithm over one Definition's
// unresolved usages, writing u| records for every usage it manages to
// connect. Keys are deduplicated before they enter the
// cleanup list, and a key already present in the store (an edge doc_add
// wrote eagerly) is not claimed as resolver-owned.
func (r *Resolver) pinDefinition(txn *kv.WriteTxn, def model.Definition, ctx *Context) ([]string, []model.ResolvedUsage) {
	full := def.OfficialPathJoined()
	var keys []string
	var pairs []model.ResolvedUsage
	seenKeys := make(map[string]bool)

targetLoop:
	for _, u := range def.Usages {
		if u.Resolved() {
			continue
		}
		for _, target := range u.TargetsForGuesswork {
			if !strings.HasPrefix(target, "?::") {
				ctx.Stats.Homeless++
				continue
			}
			stripped := strings.TrimPrefix(target, "?::")
			variants := expandVariants(stripped, ctx.Hierarchy)

			var matches []string
			for _, variant := range variants {
				matches = r.exactMatchesForSuffix(txn, variant)
				if len(matches) > 0 {
					break
				}
			}
			if len(matches) == 0 {
				ctx.Stats.NotFound++
				continue
			}
			if len(matches) > 1 {
				r.Errs.Add(def.Cpath, u.ULine, errstats.AmbiguousResolution,
					"multiple matches for "+stripped)
				ctx.Stats.Ambiguous++
			}
			resolved := matches[0]
			uk := string(index.UKey(resolved, full))
			if !seenKeys[uk] {
				existing, getErr := txn.Get([]byte(uk))
				if getErr == nil && existing == nil {
					if err := txn.Put([]byte(uk), mustMarshalLine(u.ULine)); err != nil {
						r.Logger.Warn("resolver.pin.write_failed", "owner", full, "error", err)
						continue targetLoop
					}
					keys = append(keys, uk)
				}
				seenKeys[uk] = true
			}
			pairs = append(pairs, model.ResolvedUsage{ULine: u.ULine, ResolvedAs: resolved})
			ctx.Stats.Connected++
			continue targetLoop
		}
	}

	return keys, pairs
}

func mustMarshalLine(uline int) []byte {
	b, _ := model.Marshal(uline)
	return b
}

// exactMatchesForSuffix prefix-scans "c|<suffix>" and keeps only rows
// whose suffix component exactly equals suffix (not merely prefixed by
// it), returning the full paths on the right of the separator in
// ascending lexicographic order, the store's natural iteration order,
// so index 0 is already the lexicographically first match the
// determinism rule requires.
func (r *Resolver) exactMatchesForSuffix(txn *kv.WriteTxn, suffix string) []string {
	rows, err := txn.PrefixIter([]byte("c|" + suffix))
	if err != nil {
		return nil
	}
	var out []string
	for _, row := range rows {
		rest := strings.TrimPrefix(string(row.Key), "c|")
		idx := strings.Index(rest, "⚡")
		if idx < 0 {
			continue
		}
		if rest[:idx] != suffix {
			continue
		}
		out = append(out, rest[idx+len("⚡"):])
	}
	sort.Strings(out)
	return out
}

// expandVariants builds the Cartesian product of class-tag substitutions
// inside a stripped guess string, each placeholder expanding to the
// class itself followed by its ancestors. A guess with no class tag is
// returned unchanged.
func expandVariants(stripped string, h hierarchy.Map) []string {
	locs := classTagPattern.FindAllStringSubmatchIndex(stripped, -1)
	if len(locs) == 0 {
		return []string{stripped}
	}

	type placeholder struct {
		start, end int
		candidates []string
	}
	var placeholders []placeholder
	for _, loc := range locs {
		lang := stripped[loc[2]:loc[3]]
		name := stripped[loc[4]:loc[5]]
		tag := lang + "🔎" + name
		candidates := []string{name}
		for _, ancestorTag := range h[tag] {
			if i := strings.Index(ancestorTag, "🔎"); i >= 0 {
				candidates = append(candidates, ancestorTag[i+len("🔎"):])
			}
		}
		placeholders = append(placeholders, placeholder{start: loc[0], end: loc[1], candidates: candidates})
	}

	var build func(i int, acc string, lastEnd int) []string
	build = func(i int, acc string, lastEnd int) []string {
		if i == len(placeholders) {
			return []string{acc + stripped[lastEnd:]}
		}
		p := placeholders[i]
		prefix := acc + stripped[lastEnd:p.start]
		var out []string
		for _, c := range p.candidates {
			out = append(out, build(i+1, prefix+c, p.end)...)
		}
		return out
	}
	return build(0, "", 0)
}
