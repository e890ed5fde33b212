package storage

import (
	"context"
	"io"
)

// ObjectStorage is the raw payload archive. Keys are slash-separated paths
// such as "europarl/10/TA-10-2024-0001_EN.html".
type ObjectStorage interface {
	// Upload stores reader under key, replacing any previous object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the address an archived object can be fetched from.
	GetURL(key string) string
}
