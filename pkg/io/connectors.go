package io

import (
	"encoding/json"
	"io"

	"github.com/matzehuels/citygraph/pkg/errors"
)

// ReadConnectors reads a JSON array of node ids.
func ReadConnectors(path string) ([]string, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := unmarshalLenient(stripBOM(data), &ids); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseFailure, err, "parse connectors %s", path)
	}
	return ids, nil
}

// WriteConnectors atomically writes ids as a JSON array.
func WriteConnectors(path string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ids)
	})
}
