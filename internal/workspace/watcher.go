package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher tracks files the operator edits outside the conversation, so
// each turn can tell the model what changed since the last one.
type Watcher struct {
	workDir  string
	patterns []string
	log      *zap.Logger

	mu    sync.Mutex
	dirty map[string]struct{}

	fs *fsnotify.Watcher
}

// NewWatcher builds a recursive watcher over workDir. Call Start to begin
// collecting events and Drain before each turn.
func NewWatcher(workDir string, ignorePatterns []string, log *zap.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		workDir:  workDir,
		patterns: loadIgnorePatterns(workDir, ignorePatterns),
		log:      log,
		dirty:    make(map[string]struct{}),
		fs:       fs,
	}

	// Watch every subdirectory; fsnotify is not recursive by itself.
	err = filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if isIgnored(workDir, path, w.patterns) {
				return filepath.SkipDir
			}
			return fs.Add(path)
		}
		return nil
	})
	if err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

// Start consumes events until ctx is cancelled. Run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if isIgnored(w.workDir, event.Name, w.patterns) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fs.Add(event.Name)
					continue
				}
			}
			w.record(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			// Non-fatal; keep watching.
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) record(path string) {
	rel := path
	if r, err := filepath.Rel(w.workDir, path); err == nil {
		rel = r
	}
	w.mu.Lock()
	w.dirty[rel] = struct{}{}
	w.mu.Unlock()
}

// Suppress marks a path as self-inflicted so the next Drain does not
// report the tool's own writes as operator edits.
func (w *Watcher) Suppress(path string) {
	rel := path
	if r, err := filepath.Rel(w.workDir, path); err == nil {
		rel = r
	}
	w.mu.Lock()
	delete(w.dirty, rel)
	w.mu.Unlock()
}

// Drain returns the paths edited since the previous Drain, sorted, and
// resets the set.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.dirty) == 0 {
		return nil
	}
	paths := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		paths = append(paths, p)
	}
	w.dirty = make(map[string]struct{})
	sort.Strings(paths)
	return paths
}
