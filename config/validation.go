package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"campkit/adapters/sqlx"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}
	if s.LeaderboardSize < 0 {
		errs = append(errs, "leaderboard_size cannot be negative")
	}

	return joinErrs(errs)
}

var storageAdapters = []string{"memory", "redis", "sql", "file", "firestore"}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	if !slices.Contains(storageAdapters, s.Adapter) {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(storageAdapters, ", ")))
	}

	switch s.Adapter {
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis config: addr cannot be empty")
		}
	case "sql":
		switch s.SQL.Driver {
		case sqlx.DriverPostgres, sqlx.DriverMySQL, sqlx.DriverSQLite:
		default:
			errs = append(errs, fmt.Sprintf("sql config: unsupported driver %q", s.SQL.Driver))
		}
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	case "firestore":
		if s.Firestore.ProjectID == "" {
			errs = append(errs, "firestore config: project_id cannot be empty")
		}
	}

	return joinErrs(errs)
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

var blobAdapters = []string{"memory", "gcs", "s3"}

// Validate validates proof storage configuration
func (b *BlobConfig) Validate() error {
	var errs []string

	if !slices.Contains(blobAdapters, b.Adapter) {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(blobAdapters, ", ")))
	}
	if b.MaxProofBytes <= 0 {
		errs = append(errs, "max_proof_bytes must be positive")
	}
	switch b.Adapter {
	case "gcs":
		if b.GCS.Bucket == "" {
			errs = append(errs, "gcs config: bucket cannot be empty")
		}
	case "s3":
		if b.S3.Bucket == "" {
			errs = append(errs, "s3 config: bucket cannot be empty")
		}
		if b.S3.Endpoint != "" {
			if u, err := url.Parse(b.S3.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, "s3 config: endpoint must be an absolute URL")
			}
		}
	}

	return joinErrs(errs)
}

// Validate validates enrollment timeouts and limits
func (e *EnrollmentConfig) Validate() error {
	var errs []string

	if e.CommitTimeout <= 0 {
		errs = append(errs, "commit_timeout must be positive")
	}
	if e.UploadTimeout <= 0 {
		errs = append(errs, "upload_timeout must be positive")
	}
	if e.AvailabilityTimeout <= 0 {
		errs = append(errs, "availability_timeout must be positive")
	}
	if e.AvailabilityCacheSize < 0 {
		errs = append(errs, "availability_cache_size cannot be negative")
	}
	if e.WizardSessionTTL <= 0 {
		errs = append(errs, "wizard_session_ttl must be positive")
	}
	if e.WizardSessionLimit <= 0 {
		errs = append(errs, "wizard_session_limit must be positive")
	}
	if e.ProofRetryBaseDelay <= 0 {
		errs = append(errs, "proof_retry_base_delay must be positive")
	}
	if e.ProofRetryMaxDelay < e.ProofRetryBaseDelay {
		errs = append(errs, "proof_retry_max_delay must be >= proof_retry_base_delay")
	}

	return joinErrs(errs)
}

// Validate validates outbound integrations
func (i *IntegrationsConfig) Validate() error {
	var errs []string
	for n, raw := range i.WebhookURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("webhook_urls[%d] must be an http(s) URL", n))
		}
	}
	if len(i.WebhookURLs) > 0 && i.WebhookTimeout <= 0 {
		errs = append(errs, "webhook_timeout must be positive")
	}
	return joinErrs(errs)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, l.Level) {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, l.Format) {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	if !slices.Contains(validOutputs, l.Output) {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	return joinErrs(errs)
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	var errs []string

	if m.Enabled {
		if m.Address == "" {
			errs = append(errs, "address cannot be empty when metrics are enabled")
		}
		if m.Path == "" || !strings.HasPrefix(m.Path, "/") {
			errs = append(errs, "path must start with / when metrics are enabled")
		}
	}

	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
