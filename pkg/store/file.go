package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	graphio "github.com/matzehuels/citygraph/pkg/io"
)

// FileStore writes graph documents to dir/<name>.json, or dir/<name>.json.zst
// when Compress is set.
type FileStore struct {
	dir      string
	Compress bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailure, err, "create %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Backend() string { return BackendFile }

// Path returns where name is stored.
func (s *FileStore) Path(name string) string {
	p := filepath.Join(s.dir, filepath.FromSlash(name)+".json")
	if s.Compress {
		p += graphio.ZstdExt
	}
	return p
}

func (s *FileStore) Publish(ctx context.Context, name string, g *graph.Graph) error {
	return graphio.ExportJSON(g, s.Path(name))
}

// Fetch reads a published graph back.
func (s *FileStore) Fetch(ctx context.Context, name string) (*graph.Graph, error) {
	if err := errors.ValidatePath(name); err != nil {
		return nil, err
	}
	return graphio.ImportJSON(s.Path(name))
}

func (s *FileStore) Close(context.Context) error { return nil }
