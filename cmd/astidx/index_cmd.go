package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/astdb"
	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/ui"
)

// runIndex walks the repository rooted at --root (default "."), calls
// doc_add on every admitted file, then drains the resolve-todo queue.
func runIndex(args []string, g globalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	root := fs.String("root", ".", "Repository root to walk")
	fs.Parse(args)

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

	files, err := walkFiles(*root, cfg.Ignore)
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot walk repository", err), g.JSON)
	}

	var bar *progressbar.ProgressBar
	if !g.Quiet {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Indexing files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
		)
	}

	var indexed, skipped int
	for _, path := range files {
		if full, limitErr := db.AtFileLimit(); limitErr == nil && full {
			logger.Warn("index.max_files_reached", "max_files", cfg.MaxFiles)
			break
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			logger.Warn("index.read_failed", "path", path, "error", readErr)
			skipped++
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}
		if _, _, addErr := db.DocAdd(path, content); addErr != nil {
			logger.Debug("index.doc_add_skipped", "path", path, "error", addErr)
			skipped++
		} else {
			indexed++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := db.FlushChanges(0); err != nil {
		errs.FatalError(errs.NewInternal("cannot flush counters", err), g.JSON)
	}

	resolveCtx, err := db.LookIfFullResetNeeded()
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot check class hierarchy", err), g.JSON)
	}
	resolved, err := db.DrainResolveQueue(resolveCtx)
	if err != nil {
		errs.FatalError(errs.NewInternal("resolver failed", err), g.JSON)
	}

	if !g.Quiet {
		ui.OK("indexed %d files (%d skipped), resolved %d queued files", indexed, skipped, resolved)
		ui.Title("resolver stats: connected=%d homeless=%d not_found=%d ambiguous=%d",
			resolveCtx.Stats.Connected, resolveCtx.Stats.Homeless, resolveCtx.Stats.NotFound, resolveCtx.Stats.Ambiguous)
		if n := db.Errs.Len(); n > 0 {
			ui.Warn("%d non-fatal parse/extract/resolve errors recorded during this run", n)
		}
	}
}

// walkFiles returns every regular file under root not matched by any of
// the ignore globs (doublestar patterns evaluated against the path
// relative to root).
func walkFiles(root string, ignore []string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsPermission(walkErr) {
				return filepath.SkipDir
			}
			return walkErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if matchesAny(ignore, rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func matchesAny(globs []string, path string) bool {
	for _, pattern := range globs {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

func newLogger(quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
