// Package hierarchy computes the class hierarchy: a pure function over
// the classes| prefix that derives, for every child class tag, the
// transitive closure of its ancestors.
package hierarchy

import (
	"strings"

	"github.com/opencodeindex/astidx/pkg/kv"
)

const classesPrefix = "classes|"
const sep = "⚡"

// Map is child_tag -> ordered, deduplicated list of all ancestor tags.
type Map map[string][]string

// Derive scans the classes| prefix inside a read transaction and returns
// the transitive-closure ancestor map. The builder performs no writes.
func Derive(txn *kv.ReadTxn) (Map, error) {
	rows, err := txn.PrefixIter([]byte(classesPrefix))
	if err != nil {
		return nil, err
	}

	direct := make(map[string][]string) // child -> direct parents, deduped, first-seen order
	seenEdge := make(map[string]bool)

	for _, row := range rows {
		key := string(row.Key)
		rest := strings.TrimPrefix(key, classesPrefix)
		idx := strings.Index(rest, sep)
		if idx < 0 {
			continue
		}
		parentTag := rest[:idx]
		childTag := string(row.Value)
		if childTag == "" {
			continue
		}
		edgeKey := childTag + sep + parentTag
		if seenEdge[edgeKey] {
			continue
		}
		seenEdge[edgeKey] = true
		direct[childTag] = append(direct[childTag], parentTag)
	}

	out := make(Map, len(direct))
	for child := range direct {
		out[child] = closure(child, direct, make(map[string]bool))
	}
	return out, nil
}

// closure computes a child's ancestor list by depth-first traversal,
// preserving first-seen order and guarding against cycles with visited.
func closure(child string, direct map[string][]string, visited map[string]bool) []string {
	var out []string
	var seen = make(map[string]bool)
	for _, parent := range direct[child] {
		if visited[parent] {
			continue
		}
		visited[parent] = true
		if !seen[parent] {
			seen[parent] = true
			out = append(out, parent)
		}
		for _, anc := range closure(parent, direct, visited) {
			if !seen[anc] {
				seen[anc] = true
				out = append(out, anc)
			}
		}
	}
	return out
}

// Direct scans the classes| prefix and returns only the immediate
// parent_tag -> [child_tag] edges (no transitive closure), in
// first-seen, deduplicated order. The query surface's type-hierarchy
// renderer needs direct edges to print a proper indented tree; Derive's
// transitive ancestor lists would collapse every level into one.
func Direct(txn *kv.ReadTxn) (map[string][]string, error) {
	rows, err := txn.PrefixIter([]byte(classesPrefix))
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	seenEdge := make(map[string]bool)
	for _, row := range rows {
		key := string(row.Key)
		rest := strings.TrimPrefix(key, classesPrefix)
		idx := strings.Index(rest, sep)
		if idx < 0 {
			continue
		}
		parentTag := rest[:idx]
		childTag := string(row.Value)
		if childTag == "" {
			continue
		}
		edgeKey := parentTag + sep + childTag
		if seenEdge[edgeKey] {
			continue
		}
		seenEdge[edgeKey] = true
		out[parentTag] = append(out[parentTag], childTag)
	}
	return out, nil
}

// Equal reports whether two hierarchy snapshots carry the same edges,
// used by the resolver to decide whether a full reset is required.
func Equal(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	for child, aAnc := range a {
		bAnc, ok := b[child]
		if !ok || len(aAnc) != len(bAnc) {
			return false
		}
		for i := range aAnc {
			if aAnc[i] != bAnc[i] {
				return false
			}
		}
	}
	return true
}
