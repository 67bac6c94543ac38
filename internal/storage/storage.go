// Package storage provides temporary file storage for uploaded clips and
// finished exports, and optional upload of exports to object storage.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary files and object storage uploads.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload stores data under key in object storage and returns its URL.
	// Returns ErrUploadNotConfigured if no object storage is configured.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
