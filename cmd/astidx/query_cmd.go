package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/astdb"
	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/query"
)

// runQuery dispatches 'astidx query <kind> <arg>' to the index's read
// side: definitions, usages, hierarchy, or fuzzy.
func runQuery(args []string, g globalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Limit the number of usages returned (0 = unlimited)")
	lang := fs.String("lang", "", "Language tag for the hierarchy subcommand")
	topN := fs.Int("top", 10, "Number of fuzzy matches to return")
	maxConsider := fs.Int("max-consider", 500, "Maximum candidate pool size for fuzzy search")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		errs.FatalError(errs.NewInput("usage: astidx query <definitions|usages|hierarchy|fuzzy> [arg]", nil), g.JSON)
	}
	kind := rest[0]

	cfg, err := config.Load(g.Config)
	if err != nil {
		errs.FatalError(err, g.JSON)
	}
	logger := newLogger(g.Quiet)
	db, err := astdb.Init(cfg.DataDir, cfg.MaxFiles, cfg.PerfStats, logger)
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot open index", err), g.JSON)
	}
	defer db.Close()

	switch kind {
	case "definitions":
		requireArg(rest, 2, g)
		defs, err := db.Definitions(rest[1])
		if err != nil {
			errs.FatalError(errs.NewInternal("query failed", err), g.JSON)
		}
		printDefinitions(defs, g.JSON)

	case "usages":
		requireArg(rest, 2, g)
		results, err := db.Usages(rest[1], *limit)
		if err != nil {
			errs.FatalError(errs.NewInternal("query failed", err), g.JSON)
		}
		printUsages(results, g.JSON)

	case "hierarchy":
		subtreeOf := ""
		if len(rest) >= 2 {
			subtreeOf = rest[1]
		}
		out, err := db.TypeHierarchy(*lang, subtreeOf)
		if err != nil {
			errs.FatalError(errs.NewInternal("query failed", err), g.JSON)
		}
		fmt.Print(out)

	case "fuzzy":
		requireArg(rest, 2, g)
		paths, err := db.DefinitionPathsFuzzy(rest[1], *topN, *maxConsider, rankWithFuzzy)
		if err != nil {
			errs.FatalError(errs.NewInternal("query failed", err), g.JSON)
		}
		printFuzzy(paths, g.JSON)

	default:
		errs.FatalError(errs.NewInput("unknown query kind: "+kind, nil).
			WithHint("one of definitions, usages, hierarchy, fuzzy"), g.JSON)
	}
}

func requireArg(rest []string, n int, g globalFlags) {
	if len(rest) < n {
		errs.FatalError(errs.NewInput("missing required argument", nil), g.JSON)
	}
}

// rankWithFuzzy is the CLI's concrete query.RankFunc implementation,
// backed by sahilm/fuzzy's Find.
func rankWithFuzzy(pattern string, candidates []string, topN int) []string {
	matches := fuzzy.Find(pattern, candidates)
	n := topN
	if n <= 0 || n > len(matches) {
		n = len(matches)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, matches[i].Str)
	}
	return out
}

func printDefinitions(defs []model.Definition, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(defs)
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPE\tCPATH\tLINES")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\n", d.OfficialPathJoined(), d.SymbolType, d.Cpath, d.DeclLine1, d.BodyLine2)
	}
	_ = tw.Flush()
}

func printUsages(results []query.Result, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tCPATH\tLINE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.FullPath, r.Definition.Cpath, findLineFor(r))
	}
	_ = tw.Flush()
}

// findLineFor picks the first resolved usage line on the owner
// Definition, since query.Result doesn't carry the originating uline
// separately from the Definition it loaded.
func findLineFor(r query.Result) int {
	for _, u := range r.Definition.Usages {
		if u.Resolved() {
			return u.ULine
		}
	}
	return 0
}

func printFuzzy(paths []string, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(paths)
		return
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}
