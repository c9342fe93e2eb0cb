package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campkit/adapters/firestore"
	"campkit/adapters/gcs"
	"campkit/adapters/redis"
	"campkit/adapters/s3"
	"campkit/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"CAMPKIT_ENV"`
	Profile     string      `json:"profile" env:"CAMPKIT_PROFILE"`

	Server       ServerConfig       `json:"server"`
	Storage      StorageConfig      `json:"storage"`
	Blob         BlobConfig         `json:"blob"`
	Enrollment   EnrollmentConfig   `json:"enrollment"`
	Integrations IntegrationsConfig `json:"integrations"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Security     SecurityConfig     `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"CAMPKIT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"CAMPKIT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"CAMPKIT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"CAMPKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"CAMPKIT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"CAMPKIT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"CAMPKIT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"CAMPKIT_SERVER_SHUTDOWN_TIMEOUT"`
	// LeaderboardSize caps the in-process leaderboard answers; 0 means 100.
	LeaderboardSize int `json:"leaderboard_size" env:"CAMPKIT_SERVER_LEADERBOARD_SIZE"`
}

// StorageConfig selects where progress, trips, and enrollments live.
type StorageConfig struct {
	Adapter   string           `json:"adapter" env:"CAMPKIT_STORAGE_ADAPTER"`
	Redis     redis.Config     `json:"redis,omitempty"`
	SQL       sqlx.Config      `json:"sql,omitempty"`
	File      FileConfig       `json:"file,omitempty"`
	Firestore firestore.Config `json:"firestore,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"CAMPKIT_STORAGE_FILE_PATH"`
}

// BlobConfig selects where payment proofs are uploaded.
type BlobConfig struct {
	Adapter       string     `json:"adapter" env:"CAMPKIT_BLOB_ADAPTER"`
	MaxProofBytes int64      `json:"max_proof_bytes" env:"CAMPKIT_BLOB_MAX_PROOF_BYTES"`
	GCS           gcs.Config `json:"gcs,omitempty"`
	S3            s3.Config  `json:"s3,omitempty"`
}

// EnrollmentConfig tunes the wizard's I/O and background retries.
type EnrollmentConfig struct {
	CommitTimeout         time.Duration `json:"commit_timeout" env:"CAMPKIT_ENROLLMENT_COMMIT_TIMEOUT"`
	UploadTimeout         time.Duration `json:"upload_timeout" env:"CAMPKIT_ENROLLMENT_UPLOAD_TIMEOUT"`
	AvailabilityTimeout   time.Duration `json:"availability_timeout" env:"CAMPKIT_ENROLLMENT_AVAILABILITY_TIMEOUT"`
	AvailabilityCacheSize int           `json:"availability_cache_size" env:"CAMPKIT_ENROLLMENT_AVAILABILITY_CACHE_SIZE"`
	AvailabilityCacheTTL  time.Duration `json:"availability_cache_ttl" env:"CAMPKIT_ENROLLMENT_AVAILABILITY_CACHE_TTL"`
	WizardSessionTTL      time.Duration `json:"wizard_session_ttl" env:"CAMPKIT_ENROLLMENT_WIZARD_TTL"`
	WizardSessionLimit    int           `json:"wizard_session_limit" env:"CAMPKIT_ENROLLMENT_WIZARD_LIMIT"`
	ProofRetryAttempts    uint64        `json:"proof_retry_attempts" env:"CAMPKIT_ENROLLMENT_PROOF_RETRIES"`
	ProofRetryBaseDelay   time.Duration `json:"proof_retry_base_delay" env:"CAMPKIT_ENROLLMENT_PROOF_RETRY_DELAY"`
	ProofRetryMaxDelay    time.Duration `json:"proof_retry_max_delay" env:"CAMPKIT_ENROLLMENT_PROOF_RETRY_MAX_DELAY"`
}

// IntegrationsConfig lists outbound hooks.
type IntegrationsConfig struct {
	WebhookURLs      []string      `json:"webhook_urls,omitempty" env:"CAMPKIT_WEBHOOK_URLS"`
	WebhookSecret    string        `json:"webhook_secret,omitempty" env:"CAMPKIT_WEBHOOK_SECRET"`
	WebhookRetries   uint64        `json:"webhook_retries" env:"CAMPKIT_WEBHOOK_RETRIES"`
	WebhookTimeout   time.Duration `json:"webhook_timeout" env:"CAMPKIT_WEBHOOK_TIMEOUT"`
	WebhookQueueSize int           `json:"webhook_queue_size" env:"CAMPKIT_WEBHOOK_QUEUE_SIZE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"CAMPKIT_LOG_LEVEL"`
	Format     string            `json:"format" env:"CAMPKIT_LOG_FORMAT"`
	Output     string            `json:"output" env:"CAMPKIT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"CAMPKIT_LOG_ATTRIBUTES"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" env:"CAMPKIT_METRICS_ENABLED"`
	Address   string `json:"address" env:"CAMPKIT_METRICS_ADDR"`
	Path      string `json:"path" env:"CAMPKIT_METRICS_PATH"`
	Namespace string `json:"namespace" env:"CAMPKIT_METRICS_NAMESPACE"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"CAMPKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"CAMPKIT_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"CAMPKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"CAMPKIT_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"CAMPKIT_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load builds configuration from defaults, then the JSON file named by
// CAMPKIT_CONFIG_FILE or the profile named by CAMPKIT_PROFILE, then
// environment variables. The result is validated.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("CAMPKIT_CONFIG_FILE")); path != "" {
		return LoadFromFile(path)
	}
	cfg := DefaultConfig()
	if name := strings.TrimSpace(os.Getenv("CAMPKIT_PROFILE")); name != "" {
		p, err := profile(name)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	return finish(cfg)
}

// LoadFromFile reads a JSON file over the defaults. Environment variables
// still override file values.
func LoadFromFile(path string) (*Config, error) {
	clean, err := checkConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	data, err := os.ReadFile(clean) // #nosec G304 -- extension and existence checked
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", clean, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", clean, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// checkConfigPath returns the cleaned path of an existing .json file.
func checkConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("config file path cannot be empty")
	}
	clean := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(clean)); ext != ".json" {
		return "", fmt.Errorf("config file must be .json, got %q", ext)
	}
	if _, err := os.Stat(clean); err != nil {
		return "", fmt.Errorf("config file not accessible: %w", err)
	}
	return clean, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			LeaderboardSize:   100,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(),
			File: FileConfig{
				Path: "./data/campkit.json",
			},
		},
		Blob: BlobConfig{
			Adapter:       "memory",
			MaxProofBytes: 10 << 20,
			GCS:           gcs.Config{URLTTL: 7 * 24 * time.Hour},
			S3:            s3.Config{Region: "us-east-1", URLTTL: 7 * 24 * time.Hour},
		},
		Enrollment: EnrollmentConfig{
			CommitTimeout:         10 * time.Second,
			UploadTimeout:         30 * time.Second,
			AvailabilityTimeout:   5 * time.Second,
			AvailabilityCacheSize: 1024,
			AvailabilityCacheTTL:  30 * time.Second,
			WizardSessionTTL:      30 * time.Minute,
			WizardSessionLimit:    10000,
			ProofRetryAttempts:    5,
			ProofRetryBaseDelay:   time.Second,
			ProofRetryMaxDelay:    time.Minute,
		},
		Integrations: IntegrationsConfig{
			WebhookRetries:   4,
			WebhookTimeout:   5 * time.Second,
			WebhookQueueSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Address:   ":9090",
			Path:      "/metrics",
			Namespace: "campkit",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Blob.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("blob config: %v", err))
	}
	if err := c.Enrollment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("enrollment config: %v", err))
	}
	if err := c.Integrations.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("integrations config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	const redacted = "[REDACTED]"
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = redacted
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = redacted
	}
	if cfg.Blob.S3.SecretKey != "" {
		cfg.Blob.S3.SecretKey = redacted
	}
	if cfg.Integrations.WebhookSecret != "" {
		cfg.Integrations.WebhookSecret = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{redacted}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
