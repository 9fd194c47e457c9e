package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds all configurable tandem settings.
type Config struct {
	Model          string   `json:"model"`
	MaxTokens      int      `json:"max_tokens"`
	MatchDistance  int      `json:"match_distance"` // patch fuzzy-match tolerance
	SessionsDir    string   `json:"sessions_dir"`   // relative to the working dir
	SessionBranch  bool     `json:"session_branch"` // checkpoint on a per-session git branch
	LintCommand    string   `json:"lint_command"`   // run after accepted mutations; empty disables
	Shell          string   `json:"shell"`
	IgnorePatterns []string `json:"ignore_patterns"` // extra tree/watcher ignores
	PlainOutput    bool     `json:"plain_output"`    // skip the markdown re-render of replies
	Debug          bool     `json:"debug"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Model:          "claude-sonnet-4-5-20250929",
		MaxTokens:      4096,
		MatchDistance:  1000000,
		SessionsDir:    ".tandem/sessions",
		Shell:          "/bin/bash",
		IgnorePatterns: []string{},
	}
}

// LoadGlobal reads ~/.config/tandem/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "tandem", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .tandemconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".tandemconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	apply := func(c *Config) {
		if c == nil {
			return
		}
		if c.Model != "" {
			result.Model = c.Model
		}
		if c.MaxTokens > 0 {
			result.MaxTokens = c.MaxTokens
		}
		if c.MatchDistance > 0 {
			result.MatchDistance = c.MatchDistance
		}
		if c.SessionsDir != "" {
			result.SessionsDir = c.SessionsDir
		}
		if c.SessionBranch {
			result.SessionBranch = true
		}
		if c.LintCommand != "" {
			result.LintCommand = c.LintCommand
		}
		if c.Shell != "" {
			result.Shell = c.Shell
		}
		if len(c.IgnorePatterns) > 0 {
			result.IgnorePatterns = c.IgnorePatterns
		}
		if c.PlainOutput {
			result.PlainOutput = true
		}
		if c.Debug {
			result.Debug = true
		}
	}

	apply(global)
	apply(project)
	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
