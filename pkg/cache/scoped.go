package cache

// ScopedKeyer wraps a Keyer with a prefix so that several namespaces can
// share one cache backend.
//
// Example usage:
//
//	// Results for one job directory only
//	jobKeyer := NewScopedKeyer(NewDefaultKeyer(), "job:"+Hash([]byte(dir))+":")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// StageKey generates a prefixed stage key.
func (k *ScopedKeyer) StageKey(stage, inputHash string, opts any) string {
	return k.prefix + k.inner.StageKey(stage, inputHash, opts)
}
