// Package assets is the path-addressable blob store holding manifests,
// segments and legacy video files.
package assets

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("assets: object not found")

	// ErrInvalidKey is returned for keys that could escape the store root.
	ErrInvalidKey = errors.New("assets: invalid key")
)

// Object is an open, seekable asset.
type Object interface {
	io.ReadSeekCloser
	Size() int64
	ModTime() time.Time
}

// Store is the asset store contract. Keys are slash-separated and relative,
// e.g. "hls/movies/{uuid}/output.m3u8".
type Store interface {
	// Exists reports whether an object (not a directory) lives under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Get reads the whole object. Meant for small files such as manifests.
	Get(ctx context.Context, key string) ([]byte, error)

	// Open returns a seekable handle; callers must Close it.
	Open(ctx context.Context, key string) (Object, error)

	// Path describes where key lives (filesystem path or s3:// URI).
	Path(key string) string
}

// CleanKey validates key and returns it in canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.ContainsRune(key, 0) {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
