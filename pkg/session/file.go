package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// FileStore is a file-based session store for CLI applications.
// Sessions are stored as JSON files in a config directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// DefaultDir returns $XDG_CONFIG_HOME/citygraph/sessions, or
// ~/.config/citygraph/sessions.
func DefaultDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "citygraph", "sessions"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "citygraph", "sessions"), nil
}

// NewFileStore creates a new file-based session store.
// If baseDir is empty, [DefaultDir] is used.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := readSession(s.sessionPath(id))
	if err != nil {
		return nil, err
	}
	if sess.IsExpired() {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *FileStore) Set(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	path := s.sessionPath(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	err := s.each(func(path string, sess *Session) {
		if !sess.IsExpired() {
			out = append(out, sess)
		}
	})
	slices.SortFunc(out, func(a, b *Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, err
}

func (s *FileStore) Cleanup(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	err := s.each(func(path string, sess *Session) {
		if now.After(sess.ExpiresAt) && os.Remove(path) == nil {
			removed++
		}
	})
	return removed, err
}

// each calls fn for every readable session file.
func (s *FileStore) each(fn func(path string, sess *Session)) error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		sess, err := readSession(path)
		if err != nil {
			continue
		}
		fn(path, sess)
	}
	return nil
}

// Path returns the base directory for session files.
func (s *FileStore) Path() string {
	return s.baseDir
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &sess, nil
}

var _ Store = (*FileStore)(nil)

// =============================================================================
// CLI convenience wrapper
// =============================================================================

const currentFile = "current"

// CLIStore wraps FileStore with a pointer to the current session.
type CLIStore struct {
	store *FileStore
	TTL   time.Duration
}

// NewCLIStore opens the session store in dir (DefaultDir when empty).
func NewCLIStore(dir string) (*CLIStore, error) {
	store, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &CLIStore{store: store, TTL: DefaultTTL}, nil
}

// Store returns the underlying file store.
func (c *CLIStore) Store() *FileStore { return c.store }

// Current returns the current session, or ErrNotFound.
func (c *CLIStore) Current(ctx context.Context) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(c.store.Path(), currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read current session: %w", err)
	}
	return c.store.Get(ctx, strings.TrimSpace(string(data)))
}

// Begin starts a new session for jobDir and makes it current.
func (c *CLIStore) Begin(ctx context.Context, jobDir string) (*Session, error) {
	sess := New(jobDir, c.TTL)
	if err := c.store.Set(ctx, sess); err != nil {
		return nil, err
	}
	if err := c.use(sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

// Use makes the session with the given id current.
func (c *CLIStore) Use(ctx context.Context, id string) (*Session, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess, c.use(id)
}

func (c *CLIStore) use(id string) error {
	path := filepath.Join(c.store.Path(), currentFile)
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write current session: %w", err)
	}
	return nil
}

// Record adds out to the current session, starting one in the output's
// directory if there is none.
func (c *CLIStore) Record(ctx context.Context, out Output) (*Session, error) {
	sess, err := c.Current(ctx)
	if err == ErrNotFound {
		sess, err = c.Begin(ctx, filepath.Dir(out.Path))
	}
	if err != nil {
		return nil, err
	}
	sess.Record(out, c.TTL)
	return sess, c.store.Set(ctx, sess)
}

// RecordConnectors stores the connector file path on the current session.
func (c *CLIStore) RecordConnectors(ctx context.Context, path string) error {
	sess, err := c.Current(ctx)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sess.Connectors = path
	return c.store.Set(ctx, sess)
}

// Delete removes a session and clears the current pointer if it pointed
// at it.
func (c *CLIStore) Delete(ctx context.Context, id string) error {
	if cur, err := c.Current(ctx); err == nil && cur.ID == id {
		os.Remove(filepath.Join(c.store.Path(), currentFile))
	}
	return c.store.Delete(ctx, id)
}
