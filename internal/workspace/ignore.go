// Package workspace describes the working directory to the model: its
// file tree, its environment, and edits made outside the conversation.
package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnores are always skipped regardless of ignore files.
var defaultIgnores = []string{
	".git", ".tandem", "node_modules", "__pycache__", ".venv", "venv",
	"*.pyc", ".DS_Store",
}

// loadIgnorePatterns merges the configured patterns with those from
// .gitignore and .tandemignore files in workDir.
func loadIgnorePatterns(workDir string, configured []string) []string {
	patterns := make([]string, 0, len(defaultIgnores)+len(configured))
	patterns = append(patterns, defaultIgnores...)
	patterns = append(patterns, configured...)

	for _, name := range []string{".gitignore", ".tandemignore"} {
		extra, err := readPatternFile(filepath.Join(workDir, name))
		if err != nil {
			continue
		}
		patterns = append(patterns, extra...)
	}
	return patterns
}

// readPatternFile reads a gitignore-style file and returns non-empty,
// non-comment lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// isIgnored reports whether path matches any of the given glob patterns.
// Patterns are matched against the base name, the path relative to
// workDir, and the full path.
func isIgnored(workDir, path string, patterns []string) bool {
	rel := path
	if workDir != "" {
		if r, err := filepath.Rel(workDir, path); err == nil {
			rel = r
		}
	}
	base := filepath.Base(path)

	for _, pattern := range patterns {
		// gitignore directory patterns end with a slash.
		pattern = strings.TrimSuffix(pattern, "/")
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
