package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)

	cfg := Default("example.com/widgets")
	cfg.MaxFiles = 42
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ModuleID, loaded.ModuleID)
	require.Equal(t, 42, loaded.MaxFiles)
	require.Equal(t, cfg.Ignore, loaded.Ignore)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("version: \"99\"\nmodule_id: x\n"), 0o640))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDiscoverWalksUpToProjectRoot(t *testing.T) {
	root := t.TempDir()
	path := Path(root)
	cfg := Default("example.com/widgets")
	require.NoError(t, Save(cfg, path))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(orig) })
	require.NoError(t, os.Chdir(nested))

	loaded, err := Load("")
	require.NoError(t, err)
	require.Equal(t, cfg.ModuleID, loaded.ModuleID)
}
