package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campkit/core"

	"github.com/redis/go-redis/v9"
)

// ErrStaleProgress is returned when a write would lower the stored points
// total, meaning another writer got there first.
var ErrStaleProgress = errors.New("stale progress write")

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"CAMPKIT_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"CAMPKIT_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"CAMPKIT_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"CAMPKIT_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"CAMPKIT_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"CAMPKIT_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"CAMPKIT_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"CAMPKIT_REDIS_WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key, e.g. "campkit".
	KeyPrefix string `json:"key_prefix" env:"CAMPKIT_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "campkit",
	}
}

// Store keeps one progress document per camper.
// Data structure:
// - {prefix}:camper:{user_id}:progress -> JSON UserProgress
// - {prefix}:camper:{user_id}:points -> int64 points total guarding writes
// - {prefix}:camper:{user_id}:badges -> set of badge ids
type Store struct {
	client *redis.Client
	prefix string
}

// NewClient dials Redis and verifies the connection.
func NewClient(config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// New creates a new Redis-backed store with the provided configuration
func New(config Config) (*Store, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Client exposes the underlying connection so other adapters can share it.
func (s *Store) Client() *redis.Client { return s.client }

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(user core.UserID, suffix string) string {
	return joinKey(s.prefix, "camper", string(user), suffix)
}

func joinKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

// putProgressScript writes the document only if the points total does not
// go backwards. KEYS: progress, points, badges. ARGV: json, total, badges...
var putProgressScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[2]) or '0')
	local total = tonumber(ARGV[2])
	if total < current then
		return redis.error_reply('stale')
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[2])
	for i = 3, #ARGV do
		redis.call('SADD', KEYS[3], ARGV[i])
	end
	return 1
`)

// PutProgress stores the document atomically with its badge set.
func (s *Store) PutProgress(ctx context.Context, progress core.UserProgress) error {
	if progress.UserID == "" {
		return core.ErrEmptyUserID
	}
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	args := make([]any, 0, 2+len(progress.Badges))
	args = append(args, data, progress.TotalPoints)
	for _, b := range progress.Badges {
		args = append(args, string(b.BadgeID))
	}
	keys := []string{
		s.key(progress.UserID, "progress"),
		s.key(progress.UserID, "points"),
		s.key(progress.UserID, "badges"),
	}
	if err := putProgressScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		if strings.Contains(err.Error(), "stale") {
			return fmt.Errorf("%w: user %s", ErrStaleProgress, progress.UserID)
		}
		return fmt.Errorf("failed to put progress: %w", err)
	}
	return nil
}

// GetProgress loads the document, returning fresh progress for unknown users.
func (s *Store) GetProgress(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	data, err := s.client.Get(ctx, s.key(user, "progress")).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.NewUserProgress(user), nil
	}
	if err != nil {
		return core.UserProgress{}, fmt.Errorf("failed to get progress: %w", err)
	}
	var p core.UserProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return core.UserProgress{}, fmt.Errorf("decode progress: %w", err)
	}
	if p.Badges == nil {
		p.Badges = []core.EarnedBadge{}
	}
	if p.CompletedTrips == nil {
		p.CompletedTrips = []string{}
	}
	return p, nil
}

// HasBadge checks the badge set without decoding the document.
func (s *Store) HasBadge(ctx context.Context, user core.UserID, badge core.BadgeID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key(user, "badges"), string(badge)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check badge: %w", err)
	}
	return ok, nil
}
