// Package cache stores intermediate pipeline results between runs.
//
// Each pipeline stage (build, simplify, partition, merge) serializes its
// output graph and stores it under a key derived from the hash of its inputs
// and the options that affect the result. A later run with the same inputs
// and options reads the stored document instead of recomputing it.
//
// Three backends implement [Cache]:
//
//   - [FileCache] for local CLI use, zstd-compressed entries on disk
//   - [RedisCache] for sharing results between machines
//   - [NullCache] when caching is disabled
//
// Keys come from a [Keyer]; [ScopedKeyer] namespaces them, for example per
// job directory.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long stage results are kept when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is a byte store with optional expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer derives cache keys.
type Keyer interface {
	// StageKey identifies the output of stage for the given input hash and
	// options. opts must be JSON-serializable; different options give
	// different keys.
	StageKey(stage, inputHash string, opts any) string
}

// DefaultKeyer produces keys of the form "stage:<name>:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// StageKey implements [Keyer].
func (DefaultKeyer) StageKey(stage, inputHash string, opts any) string {
	return hashKey("stage:"+stage, inputHash, opts)
}
