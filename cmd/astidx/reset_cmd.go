package main

import (
	"bufio"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/ui"
)

// runReset deletes the local index data directory. Destructive, so it
// prompts for confirmation unless --yes is given.
func runReset(args []string, g globalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	cfg, err := config.Load(g.Config)
	if err != nil {
		errs.FatalError(err, g.JSON)
	}

	if !*yes {
		fmt.Printf("This deletes %s and all indexed data. Continue? [y/N] ", cfg.DataDir)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if line != "y\n" && line != "Y\n" {
			fmt.Println("aborted")
			return
		}
	}

	if err := os.RemoveAll(cfg.DataDir); err != nil {
		errs.FatalError(errs.NewInternal("cannot remove data directory", err), g.JSON)
	}
	if !g.Quiet {
		ui.OK("removed %s", cfg.DataDir)
	}
}
