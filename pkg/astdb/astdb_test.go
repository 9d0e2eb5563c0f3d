package astdb

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *AstDB {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "db"), 0, false, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const animalLibSrc = `package main

type Animal struct {
	Name string
}

func (a Animal) Age() int { return 0 }

type Goat struct {
	Animal
}
`

const cosmicGoatMainSrc = `package main

type CosmicGoat struct {
	Goat
}

func process(a CosmicGoat) {
	a.Age()
}
`

// TestInheritanceChainResolvesAcrossFiles is the Go analogue of the
// cross-file inheritance scenario: CosmicGoat embeds Goat, Goat embeds
// Animal, and a call against a CosmicGoat-typed parameter must pin to
// Animal's method by walking the ancestor chain.
func TestInheritanceChainResolvesAcrossFiles(t *testing.T) {
	db := openTestDB(t)

	_, _, err := db.DocAdd("animals.go", []byte(animalLibSrc))
	require.NoError(t, err)
	_, _, err = db.DocAdd("main.go", []byte(cosmicGoatMainSrc))
	require.NoError(t, err)

	ctx, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	n, err := db.DrainResolveQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n, "one connect_one call per file queued by doc_add")

	ageDefs, err := db.Definitions("Animal::Age")
	require.NoError(t, err)
	require.Len(t, ageDefs, 1)

	hierarchyOut, err := db.TypeHierarchy("go", "")
	require.NoError(t, err)
	require.Equal(t, "Animal\n  Goat\n    CosmicGoat\n", hierarchyOut)

	usages, err := db.Usages(ageDefs[0].OfficialPathJoined(), 0)
	require.NoError(t, err)
	require.Len(t, usages, 1, "process's a.Age() call resolves to Animal.Age through two levels of embedding")
	require.Equal(t, "process", usages[0].Definition.OfficialPath[len(usages[0].Definition.OfficialPath)-1])
}

// TestHomelessCallHasNoResolutionAttempt covers the "bare call with no
// declaration anywhere in scope" path: the usage
// never enters the resolve-todo queue because it was never a guess in
// the first place.
func TestHomelessCallHasNoResolutionAttempt(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.DocAdd("main.go", []byte(`package main

func main() {
	fmt.Println("hi")
}
`))
	require.NoError(t, err)

	ctx, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	n, err := db.DrainResolveQueue(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "a homeless call never becomes a resolve-todo entry")

	defs, err := db.DocDefs("main.go")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Len(t, defs[0].Usages, 2, "the fmt operand and the Println call each carry an edge")
	for _, u := range defs[0].Usages {
		require.False(t, u.Resolved())
	}
}

// TestFullResetRequeuesOnHierarchyChange covers the full reset trigger:
// adding a brand new subclass later must re-queue every previously
// indexed file, not just the new one.
func TestFullResetRequeuesOnHierarchyChange(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.DocAdd("animals.go", []byte(animalLibSrc))
	require.NoError(t, err)

	ctx, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	_, err = db.DrainResolveQueue(ctx)
	require.NoError(t, err)

	_, _, err = db.DocAdd("main.go", []byte(cosmicGoatMainSrc))
	require.NoError(t, err)

	ctx2, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	n, err := db.DrainResolveQueue(ctx2)
	require.NoError(t, err)
	require.Equal(t, 2, n, "the new CosmicGoat<-Goat edge changes the hierarchy, so animals.go is requeued alongside main.go")
}

// TestDocRemoveIsExact checks that removing one file's definitions does
// not disturb another file's unrelated records.
func TestDocRemoveIsExact(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.DocAdd("a.go", []byte("package main\n\nfunc A() {}\n"))
	require.NoError(t, err)
	_, _, err = db.DocAdd("b.go", []byte("package main\n\nfunc B() {}\n"))
	require.NoError(t, err)
	require.NoError(t, db.FlushChanges(0))

	require.NoError(t, db.DocRemove("a.go"))
	require.NoError(t, db.FlushChanges(0))

	defsA, err := db.DocDefs("a.go")
	require.NoError(t, err)
	require.Empty(t, defsA)

	defsB, err := db.DocDefs("b.go")
	require.NoError(t, err)
	require.Len(t, defsB, 1)

	bDefs, err := db.Definitions("B")
	require.NoError(t, err)
	require.Len(t, bDefs, 1, "removing a.go must not touch b's alias records")
}

func TestAtFileLimitHonorsMaxFiles(t *testing.T) {
	db, err := Init(filepath.Join(t.TempDir(), "db"), 1, false, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	limited, err := db.AtFileLimit()
	require.NoError(t, err)
	require.False(t, limited)

	_, _, err = db.DocAdd("a.go", []byte("package main\n\nfunc A() {}\n"))
	require.NoError(t, err)
	require.NoError(t, db.FlushChanges(0))

	limited, err = db.AtFileLimit()
	require.NoError(t, err)
	require.True(t, limited)
}
