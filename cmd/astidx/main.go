// Command astidx is the CLI front end for the AST code index: it walks
// a repository, feeds files through doc_add, drains the usage resolver,
// and exposes definitions/usages/type-hierarchy/fuzzy lookups over the
// index built along the way.
//
// Usage:
//
//	astidx init                 Create .astidx/project.yaml
//	astidx index [--root DIR]   Index the repository (default: current directory)
//	astidx watch                Re-index files incrementally as they change
//	astidx status [--json]      Show index counters
//	astidx query <kind> <arg>   Run a point lookup against the index
//	astidx reset                Delete the local index data directory
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/ui"
)

// globalFlags are the flags every subcommand shares.
type globalFlags struct {
	JSON    bool
	NoColor bool
	Quiet   bool
	Config  string
}

func main() {
	var (
		jsonOutput = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor    = flag.Bool("no-color", false, "Disable color output (respects NO_COLOR env var)")
		quiet      = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
		configPath = flag.StringP("config", "c", "", "Path to .astidx/project.yaml (default: auto-discover)")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `astidx - cross-file AST code index

Usage:
  astidx <command> [options]

Commands:
  init            Create .astidx/project.yaml in the current directory
  index           Index the current repository and drain the resolve queue
  status          Show index counters and KV operation stats
  query           Run a point lookup: definitions, usages, hierarchy, fuzzy
  watch           Watch the repository and incrementally re-index on save
  reset           Delete the local index data directory

Global Options:
  --json          Output in JSON format
  --no-color      Disable color output
  -q, --quiet     Suppress non-essential output
  -c, --config    Path to .astidx/project.yaml

For detailed command help: astidx <command> --help
`)
	}
	flag.Parse()

	if *jsonOutput {
		*quiet = true
	}
	ui.Init(*noColor)

	g := globalFlags{JSON: *jsonOutput, NoColor: *noColor, Quiet: *quiet, Config: *configPath}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		runInit(args[1:], g)
	case "index":
		runIndex(args[1:], g)
	case "status":
		runStatus(args[1:], g)
	case "query":
		runQuery(args[1:], g)
	case "watch":
		runWatch(args[1:], g)
	case "reset":
		runReset(args[1:], g)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}
