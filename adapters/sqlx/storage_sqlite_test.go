package sqlx_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "campkit/adapters/sqlx"
	"campkit/core"
	"campkit/enrollment"
)

func newSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "campkit.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	s, err := storage.New(context.Background(), storage.Config{Driver: storage.DriverSQLite, DSN: dsn, MaxOpenConns: 1, AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_ProgressRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	p := core.NewUserProgress("camper")
	p.TotalPoints = 340
	p.Level = 4
	p.CurrentStreak = 3
	p.LongestStreak = 5
	p.LastActiveDay = "2026-06-02"
	p.EcoActions = 6
	p.UpdatedAt = time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	p.AddCompletedTrip("trip-b")
	p.AddCompletedTrip("trip-a")
	p.AddBadge(core.BadgeExplorer, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	p.AddBadge(core.BadgeRisingStar, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.PutProgress(ctx, p))

	p.TotalPoints = 400
	p.AddBadge(core.BadgeAdventurer, time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.PutProgress(ctx, p))

	got, err := s.GetProgress(ctx, "camper")
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.TotalPoints)
	assert.Equal(t, 6, got.EcoActions)
	assert.Equal(t, "2026-06-02", got.LastActiveDay)
	assert.Equal(t, []string{"trip-b", "trip-a"}, got.CompletedTrips)
	require.Len(t, got.Badges, 3)
	assert.Equal(t, core.BadgeExplorer, got.Badges[0].BadgeID)
	assert.Equal(t, core.BadgeAdventurer, got.Badges[2].BadgeID)
	assert.True(t, got.Badges[1].EarnedAt.Equal(p.Badges[1].EarnedAt))
}

func TestSQLite_EnrollmentRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	starts := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutTrip(ctx, enrollment.Trip{ID: "trip-1", Name: "Mont Cameroun", Capacity: 2, Price: 25000, StartsAt: starts}))

	payload := enrollment.Payload{
		AcceptedTerms: true,
		Details:       enrollment.Details{PickupPoint: "Buea", NeedsTransport: true},
		Medical:       enrollment.Medical{Allergies: "peanuts", MedicalInfoConfirmed: true},
		Payment:       enrollment.Payment{Method: enrollment.PaymentMobileMoney, TransactionNumber: "MM-1", TotalAmount: 25000},
	}
	e, err := s.Create(ctx, "trip-1", " Camper ", payload)
	require.NoError(t, err)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "trip-1", got.TripID)
	assert.Equal(t, "camper", got.UserID)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, e.ReservationNumber, got.ReservationNumber)

	trip, err := s.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trip.Enrolled)
	assert.True(t, trip.StartsAt.Equal(starts))

	require.NoError(t, s.SetPaymentProof(ctx, e.ID, "https://proofs/x.png"))
	assert.ErrorIs(t, s.SetPaymentProof(ctx, "missing", "u"), enrollment.ErrNotFound)

	list, err := s.ListByUser(ctx, "CAMPER")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://proofs/x.png", list[0].PaymentProofURL)

	_, err = s.UpdateStatus(ctx, e.ID, enrollment.StatusConfirmed, enrollment.StatusCompleted)
	assert.ErrorIs(t, err, enrollment.ErrInvalidTransition)
	cancelled, err := s.UpdateStatus(ctx, e.ID, enrollment.StatusPending, enrollment.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCancelled, cancelled.Status)
	trip, _ = s.GetTrip(ctx, "trip-1")
	assert.Equal(t, 0, trip.Enrolled)

	_, err = s.UpdateStatus(ctx, "missing", enrollment.StatusPending, enrollment.StatusCancelled)
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func TestSQLite_NoOversell(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutTrip(ctx, enrollment.Trip{ID: "trip-1", Capacity: 3}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, "trip-1", fmt.Sprintf("c%d", i), enrollment.Payload{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, enrollment.ErrTripFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, full)

	_, err := s.Create(ctx, "nope", "c", enrollment.Payload{})
	assert.ErrorIs(t, err, enrollment.ErrTripNotFound)

	av, err := s.CheckAvailability(ctx, "trip-1")
	require.NoError(t, err)
	assert.False(t, av.Available)
}

func TestSQLite_PutTripKeepsEnrolled(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutTrip(ctx, enrollment.Trip{ID: "trip-1", Capacity: 3}))
	_, err := s.Create(ctx, "trip-1", "c", enrollment.Payload{})
	require.NoError(t, err)
	require.NoError(t, s.PutTrip(ctx, enrollment.Trip{ID: "trip-1", Name: "renamed", Capacity: 5, Enrolled: 0}))
	trip, err := s.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", trip.Name)
	assert.Equal(t, 1, trip.Enrolled)
	_, err = s.GetTrip(ctx, "missing")
	assert.ErrorIs(t, err, enrollment.ErrTripNotFound)
}
