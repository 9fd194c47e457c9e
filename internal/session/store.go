package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoSession is returned by LoadLatest when no saved session exists.
var ErrNoSession = errors.New("no saved session")

// ErrUnknownSession is returned by LoadByID for an identifier that does not
// name a saved session.
var ErrUnknownSession = errors.New("unknown session")

// idTimeLayout names session files. Lexicographic order of the resulting
// identifiers matches chronological order, which is what gives List its
// total ordering without a counter.
const idTimeLayout = "20060102_150405.000000000"

// Store persists sessions as one JSON file each.
type Store interface {
	// Save writes the session. The first save assigns a timestamp-derived
	// identifier; later saves overwrite the same file.
	Save(s *Session) error
	// LoadLatest returns the most recently created session, or ErrNoSession.
	LoadLatest() (*Session, error)
	// List returns all saved session identifiers, newest first.
	List() ([]string, error)
	// LoadByID returns the session saved under id, or ErrUnknownSession.
	LoadByID(id string) (*Session, error)
	// Clear deletes the session's backing file (if any) and resets it.
	Clear(s *Session) error
}

// dirStore is the concrete Store writing chat_<timestamp>.json files.
type dirStore struct {
	dir string
	now func() time.Time
}

// NewStore returns a Store rooted at dir, creating the directory on first
// use.
func NewStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &dirStore{dir: dir, now: time.Now}, nil
}

func (d *dirStore) Save(s *Session) error {
	if s.storeID == "" {
		s.storeID = "chat_" + d.now().Format(idTimeLayout)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(d.dir, "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	if err = os.Rename(tmpName, d.path(s.storeID)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (d *dirStore) LoadLatest() (*Session, error) {
	ids, err := d.List()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoSession
	}
	return d.LoadByID(ids[0])
}

func (d *dirStore) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chat_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	// Identifiers are timestamp-derived, so reverse lexicographic order is
	// newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

func (d *dirStore) LoadByID(id string) (*Session, error) {
	data, err := os.ReadFile(d.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	s.storeID = id
	return &s, nil
}

func (d *dirStore) Clear(s *Session) error {
	if s.storeID != "" {
		if err := os.Remove(d.path(s.storeID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	s.Reset(d.now())
	return nil
}

func (d *dirStore) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}
