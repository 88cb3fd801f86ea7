// Package storage holds the bytes of uploaded dataset files.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultMaxObjectBytes bounds how much of an object is read into memory.
const DefaultMaxObjectBytes = 64 << 20

// ErrObjectTooLarge is returned when an object exceeds the configured read limit.
var ErrObjectTooLarge = fmt.Errorf("object exceeds maximum readable size")

// BlobStore reads and writes uploaded dataset bytes by object key.
type BlobStore interface {
	// Get returns the full object. A missing object wraps apperrors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores an object; size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// ObjectKey builds the storage key of an uploaded file: "<tenant>/<fileID>/<name>".
// The file name is reduced to its base name.
func ObjectKey(tenantID, fileID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" {
		base = "data"
	}
	return path.Join(tenantID, fileID, base)
}

// readLimited reads r fully, failing if it holds more than maxBytes.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}
