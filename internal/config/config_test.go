package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tandem/internal/config"
)

func TestDefaults(t *testing.T) {
	d := config.Defaults()

	assert.NotEmpty(t, d.Model)
	assert.Equal(t, 4096, d.MaxTokens)
	assert.Equal(t, 1000000, d.MatchDistance)
	assert.Equal(t, ".tandem/sessions", d.SessionsDir)
	assert.Equal(t, "/bin/bash", d.Shell)
	assert.False(t, d.Debug)
}

func TestMergeProjectOverridesGlobal(t *testing.T) {
	global := &config.Config{Model: "global-model", MaxTokens: 1024, LintCommand: "gofmt -l ."}
	project := &config.Config{Model: "project-model", SessionBranch: true}

	merged := config.Merge(global, project)

	assert.Equal(t, "project-model", merged.Model)
	assert.Equal(t, 1024, merged.MaxTokens)
	assert.Equal(t, "gofmt -l .", merged.LintCommand)
	assert.True(t, merged.SessionBranch)
	// Untouched keys keep their defaults.
	assert.Equal(t, ".tandem/sessions", merged.SessionsDir)
}

func TestMergeNilConfigs(t *testing.T) {
	merged := config.Merge(nil, nil)

	assert.Equal(t, config.Defaults(), merged)
}

func TestLoadFileParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".tandemconfig")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	_, err = config.LoadProject()

	var parseErr *config.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), ".tandemconfig")
}

func TestLoadProjectAbsentReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := config.LoadProject()

	require.NoError(t, err)
	assert.Nil(t, cfg)
}
