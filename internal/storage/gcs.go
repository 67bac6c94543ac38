package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Compile-time check that GCSStorage implements Storage.
var _ Storage = (*GCSStorage)(nil)

// GCSConfig holds the configuration for Google Cloud Storage.
type GCSConfig struct {
	Bucket string
	// CredentialsFile is an optional service account key file. Application
	// default credentials are used when empty.
	CredentialsFile string
}

// GCSStorage wraps LocalStorage and uploads exports to a GCS bucket.
type GCSStorage struct {
	*LocalStorage
	client *gcs.Client
	bucket string
}

// NewGCSStorage creates a new GCSStorage instance. Extra client options are
// appended after the credentials option.
func NewGCSStorage(ctx context.Context, tempDir string, cfg GCSConfig, opts ...option.ClientOption) (*GCSStorage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSStorage{
		LocalStorage: local,
		client:       client,
		bucket:       cfg.Bucket,
	}, nil
}

// Upload streams data into the bucket object key and returns its URL.
func (s *GCSStorage) Upload(ctx context.Context, key, contentType string, data io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	// single multipart request instead of a resumable session
	w.ChunkSize = 0
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish GCS upload: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
}

// Close releases the GCS client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
