// Package firestore stores progress, trips, and enrollments in Cloud Firestore.
//
// Collections: progress/{user_id}, trips/{trip_id}, enrollments/{id}.
// ListByUser needs a composite index on enrollments (user_id ASC, created_at DESC).
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campkit/core"
	"campkit/enrollment"
)

const (
	progressCollection    = "progress"
	tripsCollection       = "trips"
	enrollmentsCollection = "enrollments"
)

// Config selects the project and database.
type Config struct {
	ProjectID string `json:"project_id" env:"CAMPKIT_FIRESTORE_PROJECT"`
	Database  string `json:"database,omitempty" env:"CAMPKIT_FIRESTORE_DATABASE"`
}

type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// New dials Firestore. An empty Database uses the default database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var (
		client *firestore.Client
		err    error
	)
	if cfg.Database != "" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) GetProgress(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	doc, err := s.client.Collection(progressCollection).Doc(string(user)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return core.NewUserProgress(user), nil
	}
	if err != nil {
		return core.UserProgress{}, fmt.Errorf("get progress: %w", err)
	}
	var p core.UserProgress
	if err := doc.DataTo(&p); err != nil {
		return core.UserProgress{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	p.UserID = user
	if p.Badges == nil {
		p.Badges = []core.EarnedBadge{}
	}
	if p.CompletedTrips == nil {
		p.CompletedTrips = []string{}
	}
	return p, nil
}

func (s *Store) PutProgress(ctx context.Context, p core.UserProgress) error {
	if p.UserID == "" {
		return core.ErrEmptyUserID
	}
	if _, err := s.client.Collection(progressCollection).Doc(string(p.UserID)).Set(ctx, p); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (s *Store) PutTrip(ctx context.Context, trip enrollment.Trip) error {
	if trip.ID == "" {
		return errors.New("trip id is required")
	}
	if trip.Capacity < 0 {
		return errors.New("trip capacity cannot be negative")
	}
	ref := s.client.Collection(tripsCollection).Doc(trip.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			trip.Enrolled = 0
		case err != nil:
			return err
		default:
			var old enrollment.Trip
			if err := snap.DataTo(&old); err != nil {
				return fmt.Errorf("unmarshal trip: %w", err)
			}
			trip.Enrolled = old.Enrolled
		}
		return tx.Set(ref, trip)
	})
}

func (s *Store) GetTrip(ctx context.Context, tripID string) (enrollment.Trip, error) {
	doc, err := s.client.Collection(tripsCollection).Doc(tripID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return enrollment.Trip{}, enrollment.ErrTripNotFound
	}
	if err != nil {
		return enrollment.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	var t enrollment.Trip
	if err := doc.DataTo(&t); err != nil {
		return enrollment.Trip{}, fmt.Errorf("unmarshal trip: %w", err)
	}
	t.ID = doc.Ref.ID
	return t, nil
}

func (s *Store) CheckAvailability(ctx context.Context, tripID string) (enrollment.Availability, error) {
	t, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return enrollment.Availability{}, err
	}
	return enrollment.Availability{Available: t.Remaining() > 0, Remaining: t.Remaining()}, nil
}

// Create reads the trip, increments its seat count, and creates the
// enrollment in one transaction.
func (s *Store) Create(ctx context.Context, tripID, userID string, payload enrollment.Payload) (enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	now := s.now().UTC()
	e := enrollment.Enrollment{
		ID:                enrollment.NewID(),
		TripID:            tripID,
		UserID:            userID,
		Status:            enrollment.StatusPending,
		Payload:           payload,
		ReservationNumber: enrollment.NewReservationNumber(now),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tripRef := s.client.Collection(tripsCollection).Doc(tripID)
	enrRef := s.client.Collection(enrollmentsCollection).Doc(e.ID)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(tripRef)
		if status.Code(err) == codes.NotFound {
			return enrollment.ErrTripNotFound
		}
		if err != nil {
			return err
		}
		var t enrollment.Trip
		if err := snap.DataTo(&t); err != nil {
			return fmt.Errorf("unmarshal trip: %w", err)
		}
		if t.Remaining() <= 0 {
			return enrollment.ErrTripFull
		}
		if err := tx.Update(tripRef, []firestore.Update{{Path: "enrolled", Value: firestore.Increment(1)}}); err != nil {
			return err
		}
		return tx.Create(enrRef, e)
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (enrollment.Enrollment, error) {
	doc, err := s.client.Collection(enrollmentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("get enrollment: %w", err)
	}
	return decodeEnrollment(doc)
}

func decodeEnrollment(doc *firestore.DocumentSnapshot) (enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	if err := doc.DataTo(&e); err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("unmarshal enrollment: %w", err)
	}
	e.ID = doc.Ref.ID
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	iter := s.client.Collection(enrollmentsCollection).
		Where("user_id", "==", userID).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []enrollment.Enrollment
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeEnrollment(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SetPaymentProof(ctx context.Context, id, url string) error {
	_, err := s.client.Collection(enrollmentsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "payment_proof_url", Value: url},
		{Path: "updated_at", Value: s.now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		return enrollment.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update proof: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to enrollment.Status) (enrollment.Enrollment, error) {
	ref := s.client.Collection(enrollmentsCollection).Doc(id)
	var out enrollment.Enrollment
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return enrollment.ErrNotFound
		}
		if err != nil {
			return err
		}
		e, err := decodeEnrollment(snap)
		if err != nil {
			return err
		}
		if e.Status != from {
			return fmt.Errorf("%w: stored status is %s", enrollment.ErrInvalidTransition, e.Status)
		}
		// reads must precede writes in a transaction
		var releaseTrip bool
		tripRef := s.client.Collection(tripsCollection).Doc(e.TripID)
		if to == enrollment.StatusCancelled {
			tsnap, err := tx.Get(tripRef)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if err == nil {
				var t enrollment.Trip
				if err := tsnap.DataTo(&t); err != nil {
					return fmt.Errorf("unmarshal trip: %w", err)
				}
				releaseTrip = t.Enrolled > 0
			}
		}
		now := s.now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updated_at", Value: now},
		}); err != nil {
			return err
		}
		if releaseTrip {
			if err := tx.Update(tripRef, []firestore.Update{{Path: "enrolled", Value: firestore.Increment(-1)}}); err != nil {
				return err
			}
		}
		e.Status, e.UpdatedAt = to, now
		out = e
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return out, nil
}

var _ enrollment.Repository = (*Store)(nil)
