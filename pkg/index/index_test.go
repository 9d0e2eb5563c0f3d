package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencodeindex/astidx/pkg/errstats"
	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/parsing"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := kv.Open(kv.Options{Dir: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, parsing.NewParser(), nil)
}

const mainGoSrc = `package main

func helper() {}

func main() {
	helper()
}
`

func TestDocAddWritesAliasesForEverySuffix(t *testing.T) {
	idx := openTestIndex(t)
	lang, defs, err := idx.DocAdd("main.go", []byte(mainGoSrc), errstats.New())
	require.NoError(t, err)
	require.Equal(t, "go", lang)
	require.NotEmpty(t, defs)

	txn := idx.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte("c|main" + Sep))
	require.NoError(t, err)
	require.NotEmpty(t, rows, "a top-level function's own name must be a c| alias")
}

func TestDocAddResolvesSameFileCallEagerly(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("main.go", []byte(mainGoSrc), errstats.New())
	require.NoError(t, err)

	txn := idx.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte(prefixU))
	require.NoError(t, err)
	require.Len(t, rows, 1, "main's call to helper resolves within the file at write time")
}

func TestDocAddRecordsSingleGuessUsagesAsHomeless(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("main.go", []byte(`package main

func main() {
	fmt.Println("hi")
}
`), errstats.New())
	require.NoError(t, err)

	txn := idx.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte(prefixHomeless))
	require.NoError(t, err)
	require.Len(t, rows, 2, "the fmt operand and the Println call are both homeless, not queued")

	todo, err := txn.PrefixIter([]byte(prefixResolveTodo))
	require.NoError(t, err)
	require.Empty(t, todo)
}

func TestDocAddQueuesResolveTodoForInheritanceGuess(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("animals.go", []byte(`package main

type Animal struct {
	Name string
}

type Dog struct {
	Animal
}
`), errstats.New())
	require.NoError(t, err)

	txn := idx.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte(prefixResolveTodo))
	require.NoError(t, err)
	require.Len(t, rows, 1, "an inheritance ?:: guess needs class-hierarchy aware resolution")

	classRows, err := txn.PrefixIter([]byte(prefixClasses))
	require.NoError(t, err)
	require.Len(t, classRows, 1)
}

func TestDocRemoveDeletesEveryAssociatedKey(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("main.go", []byte(mainGoSrc), errstats.New())
	require.NoError(t, err)
	require.NoError(t, idx.FlushChanges(0))

	require.NoError(t, idx.DocRemove("main.go"))
	require.NoError(t, idx.FlushChanges(0))

	txn := idx.Store.BeginRead()
	defer txn.Discard()
	for _, prefix := range []string{prefixD, prefixC, prefixU, prefixDocCpath} {
		rows, err := txn.PrefixIter([]byte(prefix))
		require.NoError(t, err)
		require.Emptyf(t, rows, "prefix %q should be empty after doc_remove", prefix)
	}

	counters, err := idx.FetchCounters()
	require.NoError(t, err)
	require.Zero(t, counters.Defs)
	require.Zero(t, counters.Docs)
}

func TestFlushChangesRespectsThreshold(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("main.go", []byte(mainGoSrc), errstats.New())
	require.NoError(t, err)

	require.NoError(t, idx.FlushChanges(10))
	counters, err := idx.FetchCounters()
	require.NoError(t, err)
	require.Zero(t, counters.Defs, "one pending delta must not clear a threshold of 10")

	require.NoError(t, idx.FlushChanges(0))
	counters, err = idx.FetchCounters()
	require.NoError(t, err)
	require.NotZero(t, counters.Defs)
}

func TestDocDefsReturnsOnlyThatFilesDefinitions(t *testing.T) {
	idx := openTestIndex(t)
	_, _, err := idx.DocAdd("a.go", []byte("package main\n\nfunc A() {}\n"), errstats.New())
	require.NoError(t, err)
	_, _, err = idx.DocAdd("b.go", []byte("package main\n\nfunc B() {}\n"), errstats.New())
	require.NoError(t, err)

	defsA, err := idx.DocDefs("a.go")
	require.NoError(t, err)
	require.Len(t, defsA, 1)
	require.Equal(t, "A", defsA[0].OfficialPath[len(defsA[0].OfficialPath)-1])
}
