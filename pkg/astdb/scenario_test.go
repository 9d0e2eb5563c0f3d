package astdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The goat family: Animal <- Goat <- CosmicGoat, plus CosmicJustice <-
// CosmicGoat, split across a library file and a main file so every
// interesting edge crosses the file boundary.

const cppGoatLibrarySrc = `class Animal {
public:
    int age() { return years; }
    int years;
};

class Goat : public Animal {
public:
    void bleat() { }
};

class CosmicJustice {
public:
    void balance() { }
};
`

const cppGoatMainSrc = `class CosmicGoat : public Goat, public CosmicJustice {
public:
    void fly() { }
};

int main() {
    CosmicGoat goat;
    goat.age();
    goat.age();
    goat.age();
    goat.age();
    goat.age();
    return 0;
}
`

func indexGoatFamily(t *testing.T, db *AstDB) {
	t.Helper()
	_, _, err := db.DocAdd("goat_library.cpp", []byte(cppGoatLibrarySrc))
	require.NoError(t, err)
	_, _, err = db.DocAdd("goat_main.cpp", []byte(cppGoatMainSrc))
	require.NoError(t, err)

	ctx, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	_, err = db.DrainResolveQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, db.FlushChanges(0))
}

func TestCppGoatFamilyHierarchyAndUsages(t *testing.T) {
	db := openTestDB(t)
	indexGoatFamily(t, db)

	out, err := db.TypeHierarchy("cpp", "")
	require.NoError(t, err)
	require.Equal(t, "Animal\n  Goat\n    CosmicGoat\nCosmicJustice\n  CosmicGoat\n", out)

	ageDefs, err := db.Definitions("Animal::age")
	require.NoError(t, err)
	require.Len(t, ageDefs, 1)

	owners, err := db.Usages(ageDefs[0].OfficialPathJoined(), 0)
	require.NoError(t, err)
	require.Len(t, owners, 1, "five calls from the same owner collapse into one edge record")
	require.Equal(t, "main", owners[0].Definition.OfficialPath[len(owners[0].Definition.OfficialPath)-1])

	pairs, err := db.DocUsages("goat_main.cpp")
	require.NoError(t, err)
	var ageLines int
	for _, p := range pairs {
		if strings.HasSuffix(p.ResolvedAs, "Animal::age") {
			ageLines++
		}
	}
	require.Equal(t, 5, ageLines, "each call site keeps its own line in the doc-resolved list")
}

func TestCppGoatFamilyCountersMatchRecordCardinality(t *testing.T) {
	db := openTestDB(t)
	indexGoatFamily(t, db)

	txn := db.Store.BeginRead()
	uRows, err := txn.PrefixIter([]byte("u|"))
	require.NoError(t, err)
	homelessRows, err := txn.PrefixIter([]byte("homeless|"))
	require.NoError(t, err)
	txn.Discard()

	counters, err := db.FetchCounters()
	require.NoError(t, err)
	require.Equal(t, int64(len(uRows)+len(homelessRows)), counters.Usages)
	require.Equal(t, int64(2), counters.Docs)
}

func TestRemoveLeavesOnlyCountersAndHierarchy(t *testing.T) {
	db := openTestDB(t)
	indexGoatFamily(t, db)

	require.NoError(t, db.DocRemove("goat_library.cpp"))
	require.NoError(t, db.DocRemove("goat_main.cpp"))
	require.NoError(t, db.FlushChanges(0))

	txn := db.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte(""))
	require.NoError(t, err)

	var keys []string
	for _, row := range rows {
		keys = append(keys, string(row.Key))
	}
	require.ElementsMatch(t, []string{
		"class-hierarchy|",
		"counters|defs",
		"counters|docs",
		"counters|usages",
	}, keys)

	counters, err := db.FetchCounters()
	require.NoError(t, err)
	require.Zero(t, counters.Defs)
	require.Zero(t, counters.Usages)
	require.Zero(t, counters.Docs)
}

const pyGoatLibrarySrc = `class Animal:
    def __init__(self):
        self.years = 0

    def age(self):
        return self.years


class Goat(Animal):
    def __init__(self):
        Animal.__init__(self)
`

const pyGoatMainSrc = `class CosmicJustice:
    def balance(self):
        pass


class CosmicGoat(Goat, CosmicJustice):
    def fly(self):
        pass


def check_age():
    goat = CosmicGoat()
    return goat.age()
`

func TestPythonGoatFamilyResolvesThroughHierarchy(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.DocAdd("py_goat_library.py", []byte(pyGoatLibrarySrc))
	require.NoError(t, err)
	_, _, err = db.DocAdd("py_goat_main.py", []byte(pyGoatMainSrc))
	require.NoError(t, err)

	ctx, err := db.LookIfFullResetNeeded()
	require.NoError(t, err)
	_, err = db.DrainResolveQueue(ctx)
	require.NoError(t, err)

	out, err := db.TypeHierarchy("python", "")
	require.NoError(t, err)
	require.Equal(t, "Animal\n  Goat\n    CosmicGoat\nCosmicJustice\n  CosmicGoat\n", out)

	initDefs, err := db.Definitions("Goat::__init__")
	require.NoError(t, err)
	require.Len(t, initDefs, 1)

	ageDefs, err := db.Definitions("Animal::age")
	require.NoError(t, err)
	require.Len(t, ageDefs, 1)

	owners, err := db.Usages(ageDefs[0].OfficialPathJoined(), 0)
	require.NoError(t, err)
	require.Len(t, owners, 1, "check_age's goat.age() pins to Animal.age through CosmicGoat -> Goat -> Animal")
	require.Equal(t, "check_age", owners[0].Definition.OfficialPath[len(owners[0].Definition.OfficialPath)-1])
}

func TestPythonFuzzySearchSurfacesAgeMethod(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.DocAdd("py_goat_library.py", []byte(pyGoatLibrarySrc))
	require.NoError(t, err)

	passthrough := func(pattern string, candidates []string, topN int) []string {
		return candidates
	}
	paths, err := db.DefinitionPathsFuzzy("age", 3, 100, passthrough)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	var found bool
	for _, p := range paths {
		if strings.HasSuffix(p, "Animal::age") {
			found = true
		}
	}
	require.True(t, found)
}

const cHelloSrc = `#include <stdio.h>

int main() {
    printf("hello\n");
    return 0;
}
`

func TestCHomelessPrintfCall(t *testing.T) {
	db := openTestDB(t)
	_, lang, err := db.DocAdd("hello.c", []byte(cHelloSrc))
	require.NoError(t, err)
	require.Equal(t, "c", lang)
	require.NoError(t, db.FlushChanges(0))

	txn := db.Store.BeginRead()
	defer txn.Discard()
	rows, err := txn.PrefixIter([]byte("homeless|printf"))
	require.NoError(t, err)
	require.Len(t, rows, 1, "printf has no project declaration, so the call lands in the homeless bucket")

	counters, err := db.FetchCounters()
	require.NoError(t, err)
	require.Equal(t, int64(1), counters.Usages)
	require.Equal(t, int64(1), counters.Docs)
}
