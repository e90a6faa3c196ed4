package io

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/citygraph/pkg/errors"
)

// ZstdExt is the file suffix that selects zstd compression.
const ZstdExt = ".zst"

func compressed(path string) bool {
	return strings.HasSuffix(path, ZstdExt)
}

// readFile returns the contents of path, decompressing ".zst" files.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInputNotFound, err, "input not found: %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseFailure, err, "read %s", path)
	}
	return data, nil
}

// writeFileAtomic renders into memory, then writes a temporary file next to
// path, syncs it and renames it over path. On failure path is untouched.
func writeFileAtomic(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if compressed(path) {
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		if err := render(enc); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
	} else if err := render(&buf); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// RequireFiles checks that every path exists. All missing paths are named in
// a single InputNotFound error.
func RequireFiles(paths ...string) error {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrCodeInputNotFound, "missing input files: %s", strings.Join(missing, ", "))
	}
	return nil
}
