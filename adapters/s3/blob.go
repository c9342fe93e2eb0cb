// Package s3 stores payment proofs in any S3-compatible bucket and returns
// presigned GET URLs.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"campkit/enrollment"
)

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string        `json:"endpoint,omitempty" env:"CAMPKIT_S3_ENDPOINT"`
	Bucket    string        `json:"bucket" env:"CAMPKIT_S3_BUCKET"`
	Region    string        `json:"region" env:"CAMPKIT_S3_REGION"`
	AccessKey string        `json:"access_key,omitempty" env:"CAMPKIT_S3_ACCESS_KEY"`
	SecretKey string        `json:"secret_key,omitempty" env:"CAMPKIT_S3_SECRET_KEY"`
	URLTTL    time.Duration `json:"url_ttl" env:"CAMPKIT_S3_URL_TTL"`
}

// putter is the slice of the S3 API used for uploads.
type putter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Store struct {
	client  putter
	presign presigner
	bucket  string
	ttl     time.Duration
}

func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 bucket, access key and secret key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)
	return newStore(client, s3.NewPresignClient(client), cfg), nil
}

func newStore(c putter, p presigner, cfg Config) *Store {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 7 * 24 * time.Hour
	}
	return &Store{client: c, presign: p, bucket: cfg.Bucket, ttl: cfg.URLTTL}
}

// Upload puts the proof object and returns a presigned GET URL for it.
func (s *Store) Upload(ctx context.Context, enrollmentID string, file enrollment.File) (string, error) {
	if enrollmentID == "" {
		return "", errors.New("enrollment id is required")
	}
	key := enrollment.ProofKey(enrollmentID, file.Name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(file.Data),
		ContentLength: aws.Int64(int64(len(file.Data))),
		ContentType:   aws.String(file.DetectContentType()),
		Metadata:      map[string]string{"enrollment-id": enrollmentID},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

var _ enrollment.BlobStore = (*Store)(nil)
