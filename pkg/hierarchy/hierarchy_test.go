package hierarchy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencodeindex/astidx/pkg/kv"
	"github.com/opencodeindex/astidx/pkg/model"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(kv.Options{Dir: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putClassEdge(t *testing.T, s *kv.Store, parentTag, owner, childTag string) {
	t.Helper()
	txn := s.BeginWrite()
	require.NoError(t, txn.Put([]byte("classes|"+parentTag+"⚡"+owner), []byte(childTag)))
	require.NoError(t, txn.Commit())
}

func TestDeriveComputesTransitiveClosure(t *testing.T) {
	s := openTestStore(t)

	// Animal <- Goat <- CosmicGoat, CosmicJustice <- CosmicGoat
	putClassEdge(t, s, "cpp🔎Animal", "owner_goat", "cpp🔎Goat")
	putClassEdge(t, s, "cpp🔎Goat", "owner_cosmicgoat", "cpp🔎CosmicGoat")
	putClassEdge(t, s, "cpp🔎CosmicJustice", "owner_cosmicgoat2", "cpp🔎CosmicGoat")

	txn := s.BeginRead()
	defer txn.Discard()
	m, err := Derive(txn)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"cpp🔎Goat", "cpp🔎Animal", "cpp🔎CosmicJustice"}, m["cpp🔎CosmicGoat"])
	require.Equal(t, []string{"cpp🔎Animal"}, m["cpp🔎Goat"])
	require.Empty(t, m["cpp🔎Animal"])
}

func TestDirectEdgesAreNotTransitive(t *testing.T) {
	s := openTestStore(t)
	putClassEdge(t, s, "cpp🔎Animal", "owner_goat", "cpp🔎Goat")
	putClassEdge(t, s, "cpp🔎Goat", "owner_cosmicgoat", "cpp🔎CosmicGoat")

	txn := s.BeginRead()
	defer txn.Discard()
	direct, err := Direct(txn)
	require.NoError(t, err)

	require.Equal(t, []string{"cpp🔎Goat"}, direct["cpp🔎Animal"])
	require.Equal(t, []string{"cpp🔎CosmicGoat"}, direct["cpp🔎Goat"])
	require.Nil(t, direct["cpp🔎CosmicGoat"])
}

func TestEqualIgnoresMapIdentityOnlyContent(t *testing.T) {
	a := Map{"x": {"y", "z"}}
	b := Map{"x": {"y", "z"}}
	c := Map{"x": {"z", "y"}}
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c), "ancestor order is part of equality (first-seen order matters)")
}

func TestSnapshotRoundTripsThroughCBOR(t *testing.T) {
	m := Map{
		"cpp🔎CosmicGoat": {"cpp🔎Goat", "cpp🔎Animal", "cpp🔎CosmicJustice"},
		"cpp🔎Goat":       {"cpp🔎Animal"},
	}
	b, err := model.Marshal(m)
	require.NoError(t, err)

	var back Map
	require.NoError(t, model.Unmarshal(b, &back))
	require.True(t, Equal(m, back))
}

func TestDeriveGuardsAgainstCycles(t *testing.T) {
	s := openTestStore(t)
	putClassEdge(t, s, "cpp🔎A", "owner1", "cpp🔎B")
	putClassEdge(t, s, "cpp🔎B", "owner2", "cpp🔎A")

	txn := s.BeginRead()
	defer txn.Discard()
	m, err := Derive(txn)
	require.NoError(t, err)
	require.NotPanics(t, func() { _ = m })
}
