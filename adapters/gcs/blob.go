// Package gcs stores payment proofs in Google Cloud Storage and returns
// V4 signed download URLs.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"campkit/enrollment"
)

// Config selects the bucket and signed URL lifetime.
type Config struct {
	Bucket string        `json:"bucket" env:"CAMPKIT_GCS_BUCKET"`
	URLTTL time.Duration `json:"url_ttl" env:"CAMPKIT_GCS_URL_TTL"`
}

// objectWriter opens a writer for a new object. Tests swap it out.
type objectWriter func(ctx context.Context, key, contentType string) io.WriteCloser

// urlSigner signs a GET URL for an object.
type urlSigner func(key string, expires time.Time) (string, error)

type Store struct {
	client *storage.Client
	bucket string
	ttl    time.Duration
	write  objectWriter
	sign   urlSigner
	now    func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

func NewWithClient(client *storage.Client, cfg Config) *Store {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 7 * 24 * time.Hour
	}
	s := &Store{client: client, bucket: cfg.Bucket, ttl: cfg.URLTTL, now: time.Now}
	s.write = func(ctx context.Context, key, contentType string) io.WriteCloser {
		w := client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = "private, max-age=3600"
		return w
	}
	s.sign = func(key string, expires time.Time) (string, error) {
		return client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
			Scheme:  storage.SigningSchemeV4,
			Method:  "GET",
			Expires: expires,
		})
	}
	return s
}

// Upload writes the proof and returns a signed URL for it.
func (s *Store) Upload(ctx context.Context, enrollmentID string, file enrollment.File) (string, error) {
	if enrollmentID == "" {
		return "", errors.New("enrollment id is required")
	}
	key := enrollment.ProofKey(enrollmentID, file.Name)
	w := s.write(ctx, key, file.DetectContentType())
	if _, err := io.Copy(w, bytes.NewReader(file.Data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write to storage: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}
	url, err := s.sign(key, s.now().Add(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ enrollment.BlobStore = (*Store)(nil)
