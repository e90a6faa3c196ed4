// Package session remembers the graphs produced by earlier CLI invocations.
//
// A [Session] belongs to a job directory and records, per stage, the file
// the stage wrote last. Commands run without an explicit input read the
// current session's latest graph, so a sequence like
//
//	citygraph build --streets 'tiles/*.geojson' -o raw.json
//	citygraph simplify
//	citygraph partition --boundary site.json
//
// chains without repeating paths.
//
// # Storage
//
// [FileStore] keeps one JSON file per session under
// $XDG_CONFIG_HOME/citygraph/sessions (falling back to ~/.config), and
// [CLIStore] adds a pointer to the current session. Sessions expire after
// [DefaultTTL] of inactivity.
package session

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrNoOutput is returned when a session has no graph to continue from.
	ErrNoOutput = errors.New("session has no graph output yet")
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 30 * 24 * time.Hour

// Output is a file written by a stage.
type Output struct {
	Stage     string    `json:"stage"`
	Path      string    `json:"path"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	WrittenAt time.Time `json:"written_at"`
}

// Session stores the outputs of one job.
type Session struct {
	ID         string            `json:"id"`
	JobDir     string            `json:"job_dir"`
	Outputs    map[string]Output `json:"outputs"`
	Latest     string            `json:"latest,omitempty"` // stage of the most recent output
	Connectors string            `json:"connectors,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// New creates a session for jobDir with a random id.
func New(jobDir string, ttl time.Duration) *Session {
	if abs, err := filepath.Abs(jobDir); err == nil {
		jobDir = abs
	}
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		JobDir:    jobDir,
		Outputs:   make(map[string]Output),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Record stores out as the latest output and extends the expiry.
func (s *Session) Record(out Output, ttl time.Duration) {
	if s.Outputs == nil {
		s.Outputs = make(map[string]Output)
	}
	if abs, err := filepath.Abs(out.Path); err == nil {
		out.Path = abs
	}
	now := time.Now().UTC()
	if out.WrittenAt.IsZero() {
		out.WrittenAt = now
	}
	s.Outputs[out.Stage] = out
	s.Latest = out.Stage
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// LatestOutput returns the most recently recorded output.
func (s *Session) LatestOutput() (Output, error) {
	out, ok := s.Outputs[s.Latest]
	if !ok {
		return Output{}, ErrNoOutput
	}
	return out, nil
}

// Stages lists the recorded stages in the order they were written.
func (s *Session) Stages() []string {
	stages := make([]string, 0, len(s.Outputs))
	for st := range s.Outputs {
		stages = append(stages, st)
	}
	slices.SortFunc(stages, func(a, b string) int {
		if c := s.Outputs[a].WrittenAt.Compare(s.Outputs[b].WrittenAt); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return stages
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID. Missing and expired sessions are
	// ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores a session.
	Set(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the live sessions, most recently updated first.
	List(ctx context.Context) ([]*Session, error)

	// Cleanup removes expired sessions and reports how many went.
	Cleanup(ctx context.Context) (int, error)
}
