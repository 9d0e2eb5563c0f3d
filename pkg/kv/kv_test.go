package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetCommit(t *testing.T) {
	s := openTestStore(t)

	wtxn := s.BeginWrite()
	require.NoError(t, wtxn.Put([]byte("d|a::b"), []byte("v1")))
	require.NoError(t, wtxn.Commit())

	rtxn := s.BeginRead()
	defer rtxn.Discard()
	val, err := rtxn.Get([]byte("d|a::b"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)
}

func TestGetMissingReturnsNilNoError(t *testing.T) {
	s := openTestStore(t)
	rtxn := s.BeginRead()
	defer rtxn.Discard()
	val, err := rtxn.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, val)
}

func TestPrefixIterOrdersLexicographically(t *testing.T) {
	s := openTestStore(t)

	wtxn := s.BeginWrite()
	keys := []string{"c|z", "c|a", "c|m"}
	for _, k := range keys {
		require.NoError(t, wtxn.Put([]byte(k), []byte("1")))
	}
	require.NoError(t, wtxn.Commit())

	rtxn := s.BeginRead()
	defer rtxn.Discard()
	got, err := rtxn.PrefixIter([]byte("c|"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "c|a", string(got[0].Key))
	require.Equal(t, "c|m", string(got[1].Key))
	require.Equal(t, "c|z", string(got[2].Key))
}

func TestDeleteRemovesKey(t *testing.T) {
	s := openTestStore(t)

	wtxn := s.BeginWrite()
	require.NoError(t, wtxn.Put([]byte("d|x"), []byte("1")))
	require.NoError(t, wtxn.Commit())

	wtxn2 := s.BeginWrite()
	require.NoError(t, wtxn2.Delete([]byte("d|x")))
	require.NoError(t, wtxn2.Commit())

	rtxn := s.BeginRead()
	defer rtxn.Discard()
	val, err := rtxn.Get([]byte("d|x"))
	require.NoError(t, err)
	require.Nil(t, val)
}

func TestReadSnapshotUnaffectedByConcurrentWrite(t *testing.T) {
	s := openTestStore(t)

	wtxn := s.BeginWrite()
	require.NoError(t, wtxn.Put([]byte("d|x"), []byte("before")))
	require.NoError(t, wtxn.Commit())

	rtxn := s.BeginRead()
	defer rtxn.Discard()

	wtxn2 := s.BeginWrite()
	require.NoError(t, wtxn2.Put([]byte("d|x"), []byte("after")))
	require.NoError(t, wtxn2.Commit())

	val, err := rtxn.Get([]byte("d|x"))
	require.NoError(t, err)
	require.Equal(t, []byte("before"), val)
}
