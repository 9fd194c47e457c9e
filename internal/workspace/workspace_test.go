package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tandem/internal/workspace"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTreeListsFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "internal/app/app.go", "package app")

	tree := workspace.Tree(dir, nil)

	assert.Contains(t, tree, "main.go")
	assert.Contains(t, tree, "internal/")
	assert.Contains(t, tree, "app.go")
}

func TestTreeHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "secret.txt\nbuild/\n")
	writeFile(t, dir, "secret.txt", "hidden")
	writeFile(t, dir, "build/out.bin", "binary")
	writeFile(t, dir, "visible.go", "package main")

	tree := workspace.Tree(dir, nil)

	assert.Contains(t, tree, "visible.go")
	assert.NotContains(t, tree, "secret.txt")
	assert.NotContains(t, tree, "out.bin")
}

func TestTreeSkipsDefaultIgnores(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, dir, "node_modules/pkg/index.js", "x")
	writeFile(t, dir, "app.go", "package main")

	tree := workspace.Tree(dir, nil)

	assert.Contains(t, tree, "app.go")
	assert.NotContains(t, tree, "HEAD")
	assert.NotContains(t, tree, "node_modules")
}

func TestEnvironmentReportsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()

	env := workspace.Environment(dir)

	assert.Contains(t, env, "os: ")
	assert.Contains(t, env, dir)
}

func TestWatcherDrainsOutOfBandEdits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "before")

	w, err := workspace.NewWatcher(dir, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	writeFile(t, dir, "a.txt", "after")

	require.Eventually(t, func() bool {
		paths := w.Drain()
		return len(paths) == 1 && paths[0] == "a.txt"
	}, 3*time.Second, 20*time.Millisecond)

	// Drained once, so a second drain is empty until the next edit.
	assert.Empty(t, w.Drain())
}

func TestWatcherSuppressHidesSelfWrites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "before")

	w, err := workspace.NewWatcher(dir, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	writeFile(t, dir, "b.txt", "after")
	time.Sleep(500 * time.Millisecond)
	w.Suppress(filepath.Join(dir, "b.txt"))

	assert.Empty(t, w.Drain())
}
