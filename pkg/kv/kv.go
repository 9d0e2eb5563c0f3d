// Package kv wraps a single-writer, multi-reader embedded key-value store
// (badger) behind the small transaction contract the index layer needs:
// batched writes, durable commits, and lexicographically ordered prefix
// iteration. It is the only package in this module allowed to import
// badger directly.
package kv

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// slowOpThreshold is the duration past which an operation logs a timing
// warning for operator attention.
const slowOpThreshold = time.Second

var slowOpHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "astidx",
	Subsystem: "kv",
	Name:      "op_seconds",
	Help:      "Duration of key-value store operations.",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

func init() {
	_ = prometheus.Register(slowOpHistogram)
}

// Store is the embedded KV store handle. A single Store serializes all
// writers while allowing unlimited concurrent read snapshots.
type Store struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger
}

// Options configures Open.
type Options struct {
	// Dir is the on-disk database directory. If empty a temporary
	// per-process directory is used.
	Dir string

	// MapSize is the block-cache budget in bytes. Zero uses badger's own
	// default; badger sizes its on-disk files internally, so this is the
	// one knob the "map size at open" contract maps onto.
	MapSize int64

	Logger *slog.Logger
}

// Open opens (or creates) the embedded store at opts.Dir. If badger
// reports the directory is already locked by another process, Open
// creates a uniquely-suffixed sibling directory and retries there,
// logging the fallback; the index is a cache, so losing it only forces
// a re-index.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := opts.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "astidx-")
		if err != nil {
			return nil, fmt.Errorf("create temp data dir: %w", err)
		}
		dir = tmp
	}

	db, err := openAt(dir, opts.MapSize)
	if err != nil {
		if isLockConflict(err) {
			fallback := dir + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
			logger.Warn("kv.concurrent_open_fallback", "requested_dir", dir, "fallback_dir", fallback, "err", err)
			if mkErr := os.MkdirAll(fallback, 0o750); mkErr != nil {
				return nil, fmt.Errorf("create fallback data dir: %w", mkErr)
			}
			db, err = openAt(fallback, opts.MapSize)
			if err != nil {
				return nil, fmt.Errorf("open fallback store: %w", err)
			}
			dir = fallback
		} else {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	return &Store{db: db, dir: dir, logger: logger}, nil
}

func openAt(dir string, mapSize int64) (*badger.DB, error) {
	badgerOpts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithLoggingLevel(badger.WARNING)
	if mapSize > 0 {
		badgerOpts = badgerOpts.WithBlockCacheSize(mapSize)
	}
	return badger.Open(badgerOpts)
}

func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "LOCK") ||
		strings.Contains(msg, "already opened by another process")
}

// Dir returns the directory actually in use (may differ from the
// requested one if the concurrent-open fallback kicked in).
func (s *Store) Dir() string { return s.dir }

// Close releases the store's resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteTxn is a single logical atomic write: every Put/Delete issued
// against it becomes visible to readers atomically on Commit.
type WriteTxn struct {
	txn   *badger.Txn
	store *Store
	start time.Time
}

// ReadTxn is a consistent read-only snapshot; concurrent writes never
// affect a ReadTxn already in flight.
type ReadTxn struct {
	txn   *badger.Txn
	store *Store
	start time.Time
}

// BeginWrite starts a new write transaction. WriteTxns serialize against
// each other but not against in-flight ReadTxns.
func (s *Store) BeginWrite() *WriteTxn {
	return &WriteTxn{txn: s.db.NewTransaction(true), store: s, start: time.Now()}
}

// BeginRead starts a new read-only snapshot transaction.
func (s *Store) BeginRead() *ReadTxn {
	return &ReadTxn{txn: s.db.NewTransaction(false), store: s, start: time.Now()}
}

// Get fetches a single key. A nil slice with no error means "absent".
func (t *WriteTxn) Get(key []byte) ([]byte, error) { return getFrom(t.txn, key) }
func (t *ReadTxn) Get(key []byte) ([]byte, error)  { return getFrom(t.txn, key) }

func getFrom(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Put stores a key/value pair. Only valid on a WriteTxn.
func (t *WriteTxn) Put(key, value []byte) error {
	return t.txn.Set(key, value)
}

// Delete removes a key. Only valid on a WriteTxn. Deleting an absent key
// is not an error.
func (t *WriteTxn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// KV is one key/value pair returned by prefix iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// PrefixIter returns every key/value pair whose key starts with prefix,
// in lexicographic key order.
func (t *WriteTxn) PrefixIter(prefix []byte) ([]KV, error) {
	return t.store.timedPrefixIter(t.txn, prefix)
}

func (t *ReadTxn) PrefixIter(prefix []byte) ([]KV, error) {
	return t.store.timedPrefixIter(t.txn, prefix)
}

// timedPrefixIter wraps prefixIter with the slow-op histogram and warning:
// large-prefix scans are the index's main blocking point.
func (s *Store) timedPrefixIter(txn *badger.Txn, prefix []byte) ([]KV, error) {
	start := time.Now()
	out, err := prefixIter(txn, prefix)
	elapsed := time.Since(start)
	slowOpHistogram.WithLabelValues("prefix_iter").Observe(elapsed.Seconds())
	if elapsed > slowOpThreshold {
		s.logger.Warn("kv.slow_op", "op", "prefix_iter", "prefix", string(prefix), "duration", elapsed.String())
	}
	return out, err
}

func prefixIter(txn *badger.Txn, prefix []byte) ([]KV, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var out []KV
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := append([]byte(nil), item.Key()...)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: key, Value: val})
	}
	return out, nil
}

// Commit finalizes a write transaction. On error the transaction is
// discarded; the caller must redo the work in a fresh WriteTxn.
func (t *WriteTxn) Commit() error {
	err := t.txn.Commit()
	t.recordDuration("write_commit")
	if err != nil {
		t.txn.Discard()
	}
	return err
}

// Discard abandons a write transaction without committing.
func (t *WriteTxn) Discard() {
	t.txn.Discard()
}

// Discard releases a read transaction's snapshot.
func (t *ReadTxn) Discard() {
	t.txn.Discard()
	t.recordDuration("read")
}

func (t *WriteTxn) recordDuration(op string) {
	elapsed := time.Since(t.start)
	slowOpHistogram.WithLabelValues(op).Observe(elapsed.Seconds())
	if elapsed > slowOpThreshold {
		t.store.logger.Warn("kv.slow_op", "op", op, "duration", elapsed.String())
	}
}

func (t *ReadTxn) recordDuration(op string) {
	elapsed := time.Since(t.start)
	slowOpHistogram.WithLabelValues(op).Observe(elapsed.Seconds())
	if elapsed > slowOpThreshold {
		t.store.logger.Warn("kv.slow_op", "op", op, "duration", elapsed.String())
	}
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Clean(dir), 0o750)
}
