package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"campkit/enrollment"
)

// Enrollments is an in-memory enrollment repository. One mutex covers trips
// and enrollments so seat reservation and insert happen together.
type Enrollments struct {
	mu          sync.Mutex
	trips       map[string]enrollment.Trip
	enrollments map[string]enrollment.Enrollment
	now         func() time.Time
}

func NewEnrollments() *Enrollments {
	return &Enrollments{
		trips:       map[string]enrollment.Trip{},
		enrollments: map[string]enrollment.Enrollment{},
		now:         time.Now,
	}
}

func (r *Enrollments) PutTrip(_ context.Context, trip enrollment.Trip) error {
	if trip.ID == "" {
		return fmt.Errorf("trip id is required")
	}
	if trip.Capacity < 0 {
		return fmt.Errorf("trip capacity cannot be negative")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// seats already taken survive an update
	if old, ok := r.trips[trip.ID]; ok {
		trip.Enrolled = old.Enrolled
	}
	r.trips[trip.ID] = trip
	return nil
}

func (r *Enrollments) GetTrip(_ context.Context, tripID string) (enrollment.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[tripID]
	if !ok {
		return enrollment.Trip{}, enrollment.ErrTripNotFound
	}
	return t, nil
}

func (r *Enrollments) CheckAvailability(ctx context.Context, tripID string) (enrollment.Availability, error) {
	t, err := r.GetTrip(ctx, tripID)
	if err != nil {
		return enrollment.Availability{}, err
	}
	return enrollment.Availability{Available: t.Remaining() > 0, Remaining: t.Remaining()}, nil
}

// Create reserves a seat and stores the enrollment under the same lock.
func (r *Enrollments) Create(_ context.Context, tripID, userID string, payload enrollment.Payload) (enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[tripID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrTripNotFound
	}
	if t.Remaining() <= 0 {
		return enrollment.Enrollment{}, enrollment.ErrTripFull
	}
	t.Enrolled++
	r.trips[tripID] = t

	now := r.now().UTC()
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
	r.enrollments[e.ID] = e
	return e, nil
}

func (r *Enrollments) Get(_ context.Context, id string) (enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return e, nil
}

func (r *Enrollments) ListByUser(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []enrollment.Enrollment
	for _, e := range r.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Enrollments) SetPaymentProof(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return enrollment.ErrNotFound
	}
	e.PaymentProofURL = url
	e.UpdatedAt = r.now().UTC()
	r.enrollments[id] = e
	return nil
}

func (r *Enrollments) UpdateStatus(_ context.Context, id string, from, to enrollment.Status) (enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	if e.Status != from {
		return enrollment.Enrollment{}, fmt.Errorf("%w: stored status is %s", enrollment.ErrInvalidTransition, e.Status)
	}
	if to == enrollment.StatusCancelled {
		if t, ok := r.trips[e.TripID]; ok && t.Enrolled > 0 {
			t.Enrolled--
			r.trips[e.TripID] = t
		}
	}
	e.Status = to
	e.UpdatedAt = r.now().UTC()
	r.enrollments[id] = e
	return e, nil
}

var _ enrollment.Repository = (*Enrollments)(nil)
