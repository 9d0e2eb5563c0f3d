package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/astdb"
	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/ui"
)

// watchSkipDirs are never descended into: noise and wasted descriptors.
var watchSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, ".astidx": true,
}

const watchDebounce = 500 * time.Millisecond

// runWatch debounces fsnotify events and feeds the changed paths back
// through the same Index/Resolver the index command uses, so a save is
// reflected without a full repository re-walk.
func runWatch(args []string, g globalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	root := fs.String("root", ".", "Repository root to watch")
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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot start file watcher", err), g.JSON)
	}
	defer watcher.Close()

	addDirs(watcher, *root, logger)
	if !g.Quiet {
		ui.OK("watching %s for changes (ctrl-c to stop)", *root)
	}

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if watchSkipDirs[filepath.Base(filepath.Dir(event.Name))] {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C

		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch.fsnotify_error", "error", werr)

		case <-timerCh:
			timerCh = nil
			applyBatch(db, pending, logger, cfg.Ignore)
			pending = make(map[string]struct{})
		}
	}
}

func addDirs(watcher *fsnotify.Watcher, root string, logger *slog.Logger) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			logger.Warn("watch.add_dir_failed", "path", path, "error", addErr)
		}
		return nil
	})
}

func applyBatch(db *astdb.AstDB, pending map[string]struct{}, logger *slog.Logger, ignore []string) {
	for path := range pending {
		if matchesAny(ignore, path) {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			_ = db.DocRemove(path)
			continue
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		_ = db.DocRemove(path)
		if _, _, addErr := db.DocAdd(path, content); addErr != nil {
			logger.Debug("watch.doc_add_skipped", "path", path, "error", addErr)
		}
	}
	if err := db.FlushChanges(0); err != nil {
		logger.Warn("watch.flush_failed", "error", err)
		return
	}
	ctx, err := db.LookIfFullResetNeeded()
	if err != nil {
		logger.Warn("watch.full_reset_check_failed", "error", err)
		return
	}
	if _, err := db.DrainResolveQueue(ctx); err != nil {
		logger.Warn("watch.drain_failed", "error", err)
	}
}
