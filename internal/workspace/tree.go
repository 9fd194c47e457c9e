package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	treeMaxDepth   = 3
	treeMaxEntries = 40 // per directory, to keep the prompt bounded
)

// Tree renders workDir as an indented directory listing, honoring ignore
// patterns and capped in depth and width. Directories carry a trailing
// slash.
func Tree(workDir string, ignorePatterns []string) string {
	patterns := loadIgnorePatterns(workDir, ignorePatterns)

	var b strings.Builder
	b.WriteString(filepath.Base(absOrSelf(workDir)) + "/\n")
	writeTreeLevel(&b, workDir, workDir, patterns, 1)
	return strings.TrimRight(b.String(), "\n")
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func writeTreeLevel(b *strings.Builder, workDir, dir string, patterns []string, depth int) {
	if depth > treeMaxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	// Directories first, then files, both alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	shown := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if isIgnored(workDir, path, patterns) {
			continue
		}
		if shown >= treeMaxEntries {
			b.WriteString(strings.Repeat("  ", depth) + "...\n")
			return
		}
		shown++

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(strings.Repeat("  ", depth) + name + "\n")
		if entry.IsDir() {
			writeTreeLevel(b, workDir, path, patterns, depth+1)
		}
	}
}
