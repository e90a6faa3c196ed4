package cache

import "errors"

// Sentinel errors for caching operations.
var (
	// ErrUnavailable is returned when a remote cache cannot be reached.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("invalid cache key")
)

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
