package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore writes snapshots to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client, bucket string) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// PutObject uploads data to the bucket and returns a gs:// URI.
func (s *GCSStore) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("upload object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("upload object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
