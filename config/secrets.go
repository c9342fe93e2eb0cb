package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret is absent from the store.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves named secrets.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads KEY from the environment, falling back to the
// file named by KEY_FILE (container secret mounts).
type EnvironmentSecretStore struct {
	lookup   func(string) (string, bool)
	readFile func(string) ([]byte, error)
}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{lookup: os.LookupEnv, readFile: os.ReadFile}
}

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.lookup(key); ok && v != "" {
		return v, nil
	}
	if path, ok := s.lookup(key + "_FILE"); ok && path != "" {
		b, err := s.readFile(path)
		if err != nil {
			return "", fmt.Errorf("read secret %s: %w", key, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// GetWithDefault returns def when the secret cannot be resolved.
func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// LoadSecretsFromEnv fills credentials from the environment secret store.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	return c.LoadSecrets(ctx, NewEnvironmentSecretStore())
}

// LoadSecrets fills credentials the selected adapters need. A secret the
// configuration cannot run without is an error; optional ones are left as is.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) error {
	var errs []error

	optional := func(key string, dst *string) {
		if v, err := store.Get(ctx, key); err == nil {
			*dst = v
		} else if !errors.Is(err, ErrSecretNotFound) {
			errs = append(errs, err)
		}
	}
	required := func(key string, dst *string) {
		v, err := store.Get(ctx, key)
		if err != nil {
			if *dst == "" {
				errs = append(errs, err)
			}
			return
		}
		*dst = v
	}

	switch c.Storage.Adapter {
	case "redis":
		optional("CAMPKIT_REDIS_PASSWORD", &c.Storage.Redis.Password)
	case "sql":
		required("CAMPKIT_SQL_DSN", &c.Storage.SQL.DSN)
	}
	if c.Blob.Adapter == "s3" {
		required("CAMPKIT_S3_ACCESS_KEY", &c.Blob.S3.AccessKey)
		required("CAMPKIT_S3_SECRET_KEY", &c.Blob.S3.SecretKey)
	}
	if len(c.Integrations.WebhookURLs) > 0 {
		optional("CAMPKIT_WEBHOOK_SECRET", &c.Integrations.WebhookSecret)
	}

	var keys string
	optional("CAMPKIT_SECURITY_API_KEYS", &keys)
	if keys != "" {
		c.Security.APIKeys = c.Security.APIKeys[:0]
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}

	return errors.Join(errs...)
}
