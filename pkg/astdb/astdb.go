// Package astdb is the language-neutral public API of the code index: a
// single AstDB handle wiring the KV store adapter, parser facade, index
// writer/reader, class hierarchy builder, usage resolver, and query
// surface together.
package astdb

import (
	"log/slog"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/index"
	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/model"
	"github.com/opencodeindex/astidx/pkg/parsing"
	"github.com/opencodeindex/astidx/pkg/query"
	"github.com/opencodeindex/astidx/pkg/resolver"
)

// AstDB is the handle returned by Init. It owns the KV store and is
// safe for concurrent use: point reads run against their own read
// transaction and may proceed alongside writers.
type AstDB struct {
	Store    *kv.Store
	Parser   *parsing.Parser
	Index    *index.Index
	Resolver *resolver.Resolver
	Errs     *errstats.Sink

	maxFiles   int
	perfReport bool
	logger     *slog.Logger
}

// Init opens (or creates) the index database at dbDir. A blank dbDir
// uses an ephemeral per-process directory (kv.Open's default).
func Init(dbDir string, maxFiles int, perfReport bool, logger *slog.Logger) (*AstDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := kv.Open(kv.Options{Dir: dbDir, Logger: logger})
	if err != nil {
		return nil, err
	}

	parser := parsing.NewParser()
	errs := errstats.New()
	idx := index.New(store, parser, logger)
	res := resolver.New(idx, errs, logger)

	return &AstDB{
		Store:      store,
		Parser:     parser,
		Index:      idx,
		Resolver:   res,
		Errs:       errs,
		maxFiles:   maxFiles,
		perfReport: perfReport,
		logger:     logger,
	}, nil
}

// Close releases the underlying store.
func (db *AstDB) Close() error { return db.Store.Close() }

// MaxFiles returns the ast_max_files ceiling this handle was opened
// with (0 means unbounded).
func (db *AstDB) MaxFiles() int { return db.maxFiles }

// AtFileLimit reports whether admitting one more new file would exceed
// MaxFiles, based on the durable docs counter. A MaxFiles of 0 never
// limits.
func (db *AstDB) AtFileLimit() (bool, error) {
	if db.maxFiles <= 0 {
		return false, nil
	}
	counters, err := db.Index.FetchCounters()
	if err != nil {
		return false, err
	}
	return counters.Docs >= int64(db.maxFiles), nil
}

// DocAdd parses cpath's content and writes its definitions, aliases,
// usage edges, and class edges to the index.
func (db *AstDB) DocAdd(cpath string, content []byte) ([]model.Definition, string, error) {
	lang, defs, err := db.Index.DocAdd(cpath, content, db.Errs)
	if err != nil {
		return nil, "", err
	}
	return defs, lang, nil
}

// DocRemove deletes every record the index holds for cpath, including
// resolver-written edges.
func (db *AstDB) DocRemove(cpath string) error {
	return db.Index.DocRemove(cpath)
}

// DocDefs returns every Definition filed under cpath's global path.
func (db *AstDB) DocDefs(cpath string) ([]model.Definition, error) {
	return db.Index.DocDefs(cpath)
}

// DocUsages returns cpath's resolved usage sites, both the edges written
// at add time and those pinned later by the resolver.
func (db *AstDB) DocUsages(cpath string) ([]model.ResolvedUsage, error) {
	return db.Index.DocUsages(cpath)
}

// LookIfFullResetNeeded flushes pending counters, recomputes the class
// hierarchy, and requeues every document if the hierarchy changed.
func (db *AstDB) LookIfFullResetNeeded() (*resolver.Context, error) {
	return db.Resolver.LookIfFullResetNeeded()
}

// ConnectOne claims one queued file and pins its unresolved usages.
func (db *AstDB) ConnectOne(ctx *resolver.Context) (bool, error) {
	return db.Resolver.ConnectOne(ctx)
}

// DrainResolveQueue repeatedly calls ConnectOne until the resolve-todo
// queue is empty, returning how many queued files were processed.
func (db *AstDB) DrainResolveQueue(ctx *resolver.Context) (int, error) {
	n := 0
	for {
		did, err := db.ConnectOne(ctx)
		if err != nil {
			return n, err
		}
		if !did {
			break
		}
		n++
	}
	if db.perfReport {
		db.logger.Info("resolver.drain_stats",
			"files", n,
			"connected", ctx.Stats.Connected,
			"homeless", ctx.Stats.Homeless,
			"not_found", ctx.Stats.NotFound,
			"ambiguous", ctx.Stats.Ambiguous)
	}
	return n, nil
}

// Definitions looks up definitions by a (possibly partial) double-colon
// path, returning only the closest-match group.
func (db *AstDB) Definitions(doubleColonPath string) ([]model.Definition, error) {
	txn := db.Store.BeginRead()
	defer txn.Discard()
	return query.Definitions(txn, doubleColonPath)
}

// Usages returns the definitions whose usage edges point at fullPath.
func (db *AstDB) Usages(fullPath string, limit int) ([]query.Result, error) {
	txn := db.Store.BeginRead()
	defer txn.Discard()
	return query.Usages(txn, fullPath, limit)
}

// TypeHierarchy renders the class tree of one language as indented text.
func (db *AstDB) TypeHierarchy(lang, subtreeOf string) (string, error) {
	txn := db.Store.BeginRead()
	defer txn.Discard()
	return query.TypeHierarchy(txn, lang, subtreeOf)
}

// DefinitionPathsFuzzy collects candidate paths for pattern and hands
// ranking to the caller-supplied predicate.
func (db *AstDB) DefinitionPathsFuzzy(pattern string, topN, maxConsider int, rank query.RankFunc) ([]string, error) {
	txn := db.Store.BeginRead()
	defer txn.Discard()
	return query.DefinitionPathsFuzzy(txn, pattern, topN, maxConsider, rank)
}

// FetchCounters reads the durable defs/usages/docs counters.
func (db *AstDB) FetchCounters() (model.Counters, error) {
	return db.Index.FetchCounters()
}

// FlushChanges commits buffered counter deltas once enough operations
// have accumulated; threshold 0 forces a full flush.
func (db *AstDB) FlushChanges(threshold int) error {
	return db.Index.FlushChanges(threshold)
}
