package config

import (
	"fmt"
	"strings"
	"time"
)

// LoadProfile returns the named profile with environment overrides applied.
// Known profiles: development, testing, staging, production.
func LoadProfile(name string) (*Config, error) {
	cfg, err := profile(name)
	if err != nil {
		return nil, err
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s profile: %w", name, err)
	}
	return cfg, nil
}

func profile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = strings.ToLower(strings.TrimSpace(name))

	switch Environment(cfg.Profile) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"

	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Logging.Level = "warn"
		cfg.Enrollment.CommitTimeout = 2 * time.Second
		cfg.Enrollment.UploadTimeout = 2 * time.Second
		cfg.Enrollment.AvailabilityTimeout = time.Second
		cfg.Enrollment.ProofRetryBaseDelay = 10 * time.Millisecond
		cfg.Enrollment.ProofRetryMaxDelay = 100 * time.Millisecond

	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true

	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Storage.Adapter = "sql"
		cfg.Storage.SQL.MaxOpenConns = 25
		cfg.Storage.SQL.MaxIdleConns = 10
		cfg.Blob.Adapter = "gcs"
		cfg.Blob.GCS.Bucket = "campkit-payment-proofs"
		cfg.Logging.Level = "warn"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 120
		cfg.Security.RateLimit.BurstSize = 20

	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
