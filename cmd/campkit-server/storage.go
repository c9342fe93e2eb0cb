package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"campkit/adapters/firestore"
	"campkit/adapters/gcs"
	"campkit/adapters/jsonfile"
	mem "campkit/adapters/memory"
	redisAdapter "campkit/adapters/redis"
	s3Adapter "campkit/adapters/s3"
	sqlxAdapter "campkit/adapters/sqlx"
	"campkit/config"
	"campkit/engine"
	"campkit/enrollment"
	"campkit/leaderboard"
)

// Stores is the persistence selected by configuration.
type Stores struct {
	Progress    engine.ProgressStore
	Enrollments enrollment.Repository
	Ranker      engine.Ranker
}

// setupStores opens the configured adapter. Adapters that only hold progress
// (redis, file) keep enrollments in SQL when a DSN is configured, otherwise
// in memory.
func setupStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close storage", "error", err)
			}
		}
	}
	fail := func(err error) (*Stores, func(), error) {
		cleanup()
		return nil, nil, err
	}

	s := &Stores{}
	switch cfg.Storage.Adapter {
	case "memory", "":
		s.Progress = mem.New()
		s.Enrollments = mem.NewEnrollments()
	case "redis":
		rs, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return fail(fmt.Errorf("redis storage: %w", err))
		}
		closers = append(closers, rs.Close)
		s.Progress = rs
		s.Ranker = redisAdapter.NewLeaderboard(rs.Client(), cfg.Storage.Redis.KeyPrefix, logger)
	case "sql":
		ss, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return fail(fmt.Errorf("sql storage: %w", err))
		}
		closers = append(closers, ss.Close)
		s.Progress, s.Enrollments = ss, ss
	case "file":
		fs, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return fail(fmt.Errorf("file storage: %w", err))
		}
		s.Progress = fs
	case "firestore":
		fs, err := firestore.New(ctx, cfg.Storage.Firestore)
		if err != nil {
			return fail(fmt.Errorf("firestore storage: %w", err))
		}
		closers = append(closers, fs.Close)
		s.Progress, s.Enrollments = fs, fs
	default:
		return fail(fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter))
	}

	if s.Enrollments == nil {
		if cfg.Storage.SQL.DSN != "" {
			ss, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
			if err != nil {
				return fail(fmt.Errorf("sql enrollments: %w", err))
			}
			closers = append(closers, ss.Close)
			s.Enrollments = ss
		} else {
			logger.Warn("enrollments are kept in memory", "storage_adapter", cfg.Storage.Adapter)
			s.Enrollments = mem.NewEnrollments()
		}
	}
	if s.Ranker == nil {
		s.Ranker = leaderboard.NewSkipList()
	}
	return s, cleanup, nil
}

// setupBlobs opens the payment-proof store.
func setupBlobs(ctx context.Context, cfg *config.Config) (enrollment.BlobStore, func(), error) {
	switch cfg.Blob.Adapter {
	case "memory", "":
		return mem.NewBlobs(), func() {}, nil
	case "gcs":
		st, err := gcs.New(ctx, cfg.Blob.GCS)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs blobs: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	case "s3":
		st, err := s3Adapter.New(cfg.Blob.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 blobs: %w", err)
		}
		return st, func() {}, nil
	}
	return nil, nil, errors.New("unknown blob adapter: " + cfg.Blob.Adapter)
}
