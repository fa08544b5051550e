package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("focus:\n  action: 1.0\n"), 0o644))

	fired := make(chan string, 4)
	fw := NewFileWatcher(path, func(p string) { fired <- p })
	require.NoError(t, fw.Start())
	defer fw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("focus:\n  action: 2.0\n"), 0o644))

	select {
	case p := <-fired:
		require.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired on write")
	}
}

func TestFileWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	fired := make(chan string, 4)
	fw := NewFileWatcher(path, func(p string) { fired <- p })
	require.NoError(t, fw.Start())
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("y"), 0o644))

	select {
	case p := <-fired:
		t.Fatalf("watcher fired for sibling file: %s", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFileWatcherSurvivesAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	fired := make(chan string, 4)
	fw := NewFileWatcher(path, func(p string) { fired <- p })
	require.NoError(t, fw.Start())
	defer fw.Stop()

	// Editor-style save: write a temp file and rename it over the target.
	tmp := filepath.Join(dir, ".weights.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("y"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case p := <-fired:
		require.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired on rename-over")
	}
}
