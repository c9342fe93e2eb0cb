package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campkit/core"
)

// TripCompleter records a finished trip in a camper's progress.
// *engine.ProgressService satisfies it.
type TripCompleter interface {
	CompleteTrip(ctx context.Context, user core.UserID, tripID string) ([]core.Badge, error)
}

// Manager drives enrollments after the wizard has committed them.
type Manager struct {
	repo      Repository
	blobs     BlobStore
	completer TripCompleter
	events    Publisher
	logger    *slog.Logger
	timeout   time.Duration
}

type ManagerOption func(*Manager)

func WithTripCompleter(c TripCompleter) ManagerOption { return func(m *Manager) { m.completer = c } }
func WithPublisher(p Publisher) ManagerOption         { return func(m *Manager) { m.events = p } }

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithUploadTimeout bounds AttachProof.
func WithUploadTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewManager(repo Repository, blobs BlobStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		blobs:   blobs,
		logger:  slog.Default(),
		timeout: DefaultTimeouts.Upload,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Get(ctx context.Context, id string) (Enrollment, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]Enrollment, error) {
	userID, err := NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	return m.repo.ListByUser(ctx, userID)
}

// Transition moves an enrollment along its lifecycle. Completing an
// enrollment records the trip in the camper's progress.
func (m *Manager) Transition(ctx context.Context, id string, to Status) (Enrollment, error) {
	e, err := m.repo.Get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if err := CheckTransition(e, to); err != nil {
		return Enrollment{}, err
	}
	updated, err := m.repo.UpdateStatus(ctx, id, e.Status, to)
	if err != nil {
		return Enrollment{}, err
	}
	m.logger.Info("enrollment status changed",
		"enrollment_id", id, "trip_id", e.TripID, "from", e.Status, "to", to)
	m.publish(ctx, enrollmentEvent(core.EventEnrollmentStatus, updated))

	if to == StatusCompleted && m.completer != nil {
		if _, err := m.completer.CompleteTrip(ctx, core.UserID(updated.UserID), updated.TripID); err != nil {
			return updated, fmt.Errorf("record completed trip: %w", err)
		}
	}
	return updated, nil
}

// AttachProof uploads a payment proof for an existing enrollment.
func (m *Manager) AttachProof(ctx context.Context, id string, file File) (Enrollment, error) {
	if len(file.Data) == 0 {
		return Enrollment{}, &ValidationError{Step: StepPayment, Message: MsgPaymentProof}
	}
	e, err := m.repo.Get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status == StatusCancelled {
		return Enrollment{}, fmt.Errorf("%w: enrollment is cancelled", ErrInvalidTransition)
	}
	url, err := uploadAndAttach(ctx, m.repo, m.blobs, m.timeout, id, file)
	if err != nil {
		m.logger.Warn("payment proof upload failed", "enrollment_id", id, "trip_id", e.TripID, "error", err)
		return Enrollment{}, err
	}
	e.PaymentProofURL = url
	m.publish(ctx, enrollmentEvent(core.EventProofUploaded, e))
	return e, nil
}

func (m *Manager) publish(ctx context.Context, ev core.Event) {
	if m.events != nil {
		m.events.Publish(ctx, ev)
	}
}
