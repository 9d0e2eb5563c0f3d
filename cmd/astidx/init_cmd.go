package main

import (
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/ui"
)

// runInit writes a default .astidx/project.yaml for the current
// directory, refusing to overwrite an existing one unless --force.
func runInit(args []string, g globalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration")
	moduleID := fs.String("module-id", "", "Module identifier (default: working directory name)")
	fs.Parse(args)

	wd, err := os.Getwd()
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot determine working directory", err), g.JSON)
	}
	id := *moduleID
	if id == "" {
		id = filepath.Base(wd)
	}

	path := config.Path(wd)
	if _, statErr := os.Stat(path); statErr == nil && !*force {
		errs.FatalError(errs.NewInput("configuration already exists", nil).
			WithHint("pass --force to overwrite "+path), g.JSON)
	}

	cfg := config.Default(id)
	if err := config.Save(cfg, path); err != nil {
		errs.FatalError(err, g.JSON)
	}

	if !g.Quiet {
		ui.OK("wrote %s", path)
	}
}
