// Package gcs stores receipt objects in a Google Cloud Storage bucket. The
// client authenticates with Application Default Credentials.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

type Storage struct {
	client *storage.Client
	bucket string
}

func New(ctx context.Context, bucket string) (*Storage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Storage{client: client, bucket: bucket}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(objectName(key)).NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy object to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (s *Storage) Fetch(ctx context.Context, key string) ([]byte, error) {
	name := objectName(key)
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("receipt object %s/%s does not exist: %w", s.bucket, name, err)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "open GCS object reader", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "read GCS object", err)
	}
	return data, nil
}

// objectName accepts either a bare object key or a gs://bucket/key URI.
func objectName(key string) string {
	key = strings.TrimSpace(key)
	if trimmed, ok := strings.CutPrefix(key, "gs://"); ok {
		if _, name, found := strings.Cut(trimmed, "/"); found {
			return name
		}
		return trimmed
	}
	return strings.TrimPrefix(key, "/")
}
