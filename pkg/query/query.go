// Package query is the index's read side: point lookups over the c|
// and u| alias prefixes, class-hierarchy rendering, and the
// candidate-generation half of fuzzy symbol search. Every operation
// here runs inside a caller-supplied read transaction and may proceed
// in parallel with writers and with other readers.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencodeindex/astidx/pkg/hierarchy"
	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/model"
)

const (
	prefixC = "c|"
	prefixU = "u|"
	prefixD = "d|"
	sep     = "⚡"
)

// Result pairs a resolved full path with its loaded Definition.
type Result struct {
	FullPath   string
	Definition model.Definition
}

// exactAliasMatches scans "c|<path>" and keeps only rows whose suffix
// component (the text strictly before the ⚡ separator) equals path
// exactly, the same discipline the resolver's pinning algorithm uses,
// so that a query for "foo" never matches an alias for "foo_bar".
func exactAliasMatches(txn *kv.ReadTxn, path string) ([]string, error) {
	rows, err := txn.PrefixIter([]byte(prefixC + path))
	if err != nil {
		return nil, err
	}
	var fulls []string
	for _, row := range rows {
		rest := strings.TrimPrefix(string(row.Key), prefixC)
		idx := strings.Index(rest, sep)
		if idx < 0 {
			continue
		}
		if rest[:idx] != path {
			continue
		}
		fulls = append(fulls, rest[idx+len(sep):])
	}
	sort.Strings(fulls)
	return fulls, nil
}

func loadDefinition(txn *kv.ReadTxn, full string) (model.Definition, bool) {
	raw, err := txn.Get([]byte(prefixD + full))
	if err != nil || raw == nil {
		return model.Definition{}, false
	}
	var d model.Definition
	if err := model.Unmarshal(raw, &d); err != nil {
		return model.Definition{}, false
	}
	return d, true
}

// Definitions is an exact short-path lookup grouped by specificity:
// every alias whose suffix equals doubleColonPath is a candidate;
// candidates are grouped by how many
// "::"-separated components their full official path has, and only the
// shortest (most top-level, "closest match") group is returned.
func Definitions(txn *kv.ReadTxn, doubleColonPath string) ([]model.Definition, error) {
	fulls, err := exactAliasMatches(txn, doubleColonPath)
	if err != nil {
		return nil, err
	}
	if len(fulls) == 0 {
		return nil, nil
	}

	byDepth := make(map[int][]string)
	minDepth := -1
	for _, full := range fulls {
		depth := strings.Count(full, "::")
		byDepth[depth] = append(byDepth[depth], full)
		if minDepth < 0 || depth < minDepth {
			minDepth = depth
		}
	}

	var out []model.Definition
	seen := make(map[string]bool)
	for _, full := range byDepth[minDepth] {
		if seen[full] {
			continue
		}
		seen[full] = true
		if d, ok := loadDefinition(txn, full); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Usages prefix-scans u|<full> with the same exact-match discipline as
// Definitions, loading each owner Definition and capping at limit
// (0 means unlimited).
func Usages(txn *kv.ReadTxn, fullOfficialPath string, limit int) ([]Result, error) {
	rows, err := txn.PrefixIter([]byte(prefixU + fullOfficialPath))
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, row := range rows {
		rest := strings.TrimPrefix(string(row.Key), prefixU)
		idx := strings.Index(rest, sep)
		if idx < 0 {
			continue
		}
		if rest[:idx] != fullOfficialPath {
			continue
		}
		owner := rest[idx+len(sep):]
		d, ok := loadDefinition(txn, owner)
		if !ok {
			continue
		}
		out = append(out, Result{FullPath: owner, Definition: d})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// TypeHierarchy renders the class subtree under subtreeOf (a bare
// class name, not a tag) as indented text. When subtreeOf is empty,
// every class of the given language that is not itself a child of
// another class is printed as its own top-level tree.
func TypeHierarchy(txn *kv.ReadTxn, lang, subtreeOf string) (string, error) {
	direct, err := hierarchy.Direct(txn)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if subtreeOf != "" {
		renderSubtree(&b, direct, model.ClassTag(lang, subtreeOf), 0, make(map[string]bool))
		return b.String(), nil
	}

	isChild := make(map[string]bool)
	for _, children := range direct {
		for _, c := range children {
			isChild[c] = true
		}
	}

	var roots []string
	seen := make(map[string]bool)
	for parent := range direct {
		if !isChild[parent] && !seen[parent] && strings.HasPrefix(parent, lang+"🔎") {
			seen[parent] = true
			roots = append(roots, parent)
		}
	}
	sort.Strings(roots)
	for _, root := range roots {
		renderSubtree(&b, direct, root, 0, make(map[string]bool))
	}
	return b.String(), nil
}

func renderSubtree(b *strings.Builder, direct map[string][]string, tag string, depth int, visited map[string]bool) {
	if visited[tag] {
		return
	}
	visited[tag] = true

	name := tag
	if i := strings.Index(tag, "🔎"); i >= 0 {
		name = tag[i+len("🔎"):]
	}
	fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), name)

	children := append([]string{}, direct[tag]...)
	sort.Strings(children)
	for _, c := range children {
		renderSubtree(b, direct, c, depth+1, visited)
	}
}

// RankFunc is the caller-supplied fuzzy-matching predicate: given a
// pattern and a candidate pool, return the best topN candidates in
// ranked order. Ranking deliberately lives outside this package.
type RankFunc func(pattern string, candidates []string, topN int) []string

// DefinitionPathsFuzzy generates candidate full paths by dropping
// "::"-components from the front of pattern and by halving the tail
// symbol's length, collects matching c| aliases up to maxConsider, and
// delegates the actual ranking to rank.
func DefinitionPathsFuzzy(txn *kv.ReadTxn, pattern string, topN, maxConsider int, rank RankFunc) ([]string, error) {
	variants := fuzzyPrefixVariants(pattern)

	seen := make(map[string]bool)
	var candidates []string
	for _, v := range variants {
		if len(candidates) >= maxConsider {
			break
		}
		rows, err := txn.PrefixIter([]byte(prefixC + v))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			rest := strings.TrimPrefix(string(row.Key), prefixC)
			idx := strings.Index(rest, sep)
			if idx < 0 {
				continue
			}
			full := rest[idx+len(sep):]
			if seen[full] {
				continue
			}
			seen[full] = true
			candidates = append(candidates, full)
			if len(candidates) >= maxConsider {
				break
			}
		}
	}

	return rank(pattern, candidates, topN), nil
}

// fuzzyPrefixVariants generates progressively shorter/looser lookup
// keys for a "::"-joined pattern: the full pattern, the pattern with
// leading components dropped one at a time, and halved-length
// truncations of the tail symbol, so "Animal::self_review" yields
// "Animal::self_review", "self_review", "self_", "se" and "s". Leading
// components are never truncated.
func fuzzyPrefixVariants(pattern string) []string {
	components := model.SplitPath(pattern)
	if len(components) == 0 {
		return nil
	}

	var out []string
	for i := 0; i < len(components); i++ {
		out = append(out, model.JoinPath(components[i:]))
	}

	tail := components[len(components)-1]
	for n := len(tail) / 2; n > 0; n /= 2 {
		out = append(out, tail[:n])
	}
	return out
}
