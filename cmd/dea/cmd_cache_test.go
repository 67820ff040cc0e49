package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheClear_ExplicitDir(t *testing.T) {
	cacheDir = ""
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.json.zst"), []byte("x"), 0o644))

	cmd := newCacheCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"clear", "--cache-dir", dir})
	require.NoError(t, cmd.Execute())

	assert.NoDirExists(t, dir)
	assert.Contains(t, out.String(), "Cache cleared: "+dir)
}

func TestCacheClear_DefaultsToProjectConfig(t *testing.T) {
	cacheDir = ""
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dea.yaml"), []byte("cache:\n  dir: results-cache\n"), 0o644))

	cached := filepath.Join(dir, "results-cache")
	require.NoError(t, os.MkdirAll(cached, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cached, "k.json.zst"), []byte("x"), 0o644))

	cmd := newCacheCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"clear"})
	require.NoError(t, cmd.Execute())

	assert.NoDirExists(t, cached)
}

func TestCacheClear_RefusesForeignFiles(t *testing.T) {
	cacheDir = ""
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	cmd := newCacheCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"clear", "--cache-dir", dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-cache file")
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestCacheClear_MissingDirIsNoop(t *testing.T) {
	cacheDir = ""
	dir := filepath.Join(t.TempDir(), "never-created")

	cmd := newCacheCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"clear", "--cache-dir", dir})
	assert.NoError(t, cmd.Execute())
}
