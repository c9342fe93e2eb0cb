package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "campkit/adapters/memory"
	"campkit/config"
	"campkit/core"
	"campkit/enrollment"
	"campkit/leaderboard"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSetupStoresMemory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "memory"
	s, cleanup, err := setupStores(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &mem.Store{}, s.Progress)
	assert.IsType(t, &mem.Enrollments{}, s.Enrollments)
	assert.IsType(t, &leaderboard.SkipList{}, s.Ranker)
}

func TestSetupStoresFileKeepsEnrollmentsInSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(dir, "progress.json")
	cfg.Storage.SQL.Driver = "sqlite"
	cfg.Storage.SQL.DSN = filepath.Join(dir, "campkit.db")
	cfg.Storage.SQL.MaxOpenConns = 1
	cfg.Storage.SQL.AutoMigrate = true

	s, cleanup, err := setupStores(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.Enrollments.PutTrip(ctx, enrollment.Trip{ID: "trip-1", Capacity: 1}))
	av, err := s.Enrollments.CheckAvailability(ctx, "trip-1")
	require.NoError(t, err)
	assert.True(t, av.Available)
	require.NoError(t, s.Progress.PutProgress(ctx, core.NewUserProgress("alice")))
}

func TestSetupStoresUnknown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "tape"
	_, _, err := setupStores(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestSetupBlobs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Blob.Adapter = "memory"
	b, cleanup, err := setupBlobs(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, &mem.Blobs{}, b)

	cfg.Blob.Adapter = "s3"
	_, _, err = setupBlobs(context.Background(), cfg)
	assert.Error(t, err, "s3 without bucket or keys")

	cfg.Blob.Adapter = "floppy"
	_, _, err = setupBlobs(context.Background(), cfg)
	assert.Error(t, err)
}

func TestMetricsServerExposesDomainCounters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	cfg.Metrics.Namespace = "campkit"

	reg := provideRegistry()
	hooks, cleanup, err := provideHooks(cfg, quietLogger(), reg)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, hooks.Metrics)
	assert.Len(t, hooks.list(), 2)

	hooks.Metrics.OnEvent(core.NewPointsAdded("alice", core.ActionPhotoShared, 5, 5))

	ms := provideMetricsServer(cfg, reg)
	require.NotNil(t, ms.Server)
	rec := httptest.NewRecorder()
	ms.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "campkit_points_awarded_total")

	cfg.Metrics.Enabled = false
	assert.Nil(t, provideMetricsServer(cfg, reg).Server)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
