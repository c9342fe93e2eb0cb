package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	libsqlx "github.com/jmoiron/sqlx"

	"campkit/enrollment"
)

type tripRow struct {
	ID       string       `db:"id"`
	Name     string       `db:"name"`
	Capacity int          `db:"capacity"`
	Enrolled int          `db:"enrolled"`
	Price    int64        `db:"price"`
	StartsAt sql.NullTime `db:"starts_at"`
}

func (r tripRow) trip() enrollment.Trip {
	t := enrollment.Trip{ID: r.ID, Name: r.Name, Capacity: r.Capacity, Enrolled: r.Enrolled, Price: r.Price}
	if r.StartsAt.Valid {
		t.StartsAt = r.StartsAt.Time.UTC()
	}
	return t
}

type enrollmentRow struct {
	ID                string    `db:"id"`
	TripID            string    `db:"trip_id"`
	UserID            string    `db:"user_id"`
	Status            string    `db:"status"`
	Payload           string    `db:"payload"`
	PaymentProofURL   string    `db:"payment_proof_url"`
	ReservationNumber string    `db:"reservation_number"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r enrollmentRow) enrollment() (enrollment.Enrollment, error) {
	e := enrollment.Enrollment{
		ID:                r.ID,
		TripID:            r.TripID,
		UserID:            r.UserID,
		Status:            enrollment.Status(r.Status),
		PaymentProofURL:   r.PaymentProofURL,
		ReservationNumber: r.ReservationNumber,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Payload), &e.Payload); err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("decode payload: %w", err)
	}
	return e, nil
}

const enrollmentColumns = `id, trip_id, user_id, status, payload, payment_proof_url, reservation_number, created_at, updated_at`

func (s *Store) PutTrip(ctx context.Context, trip enrollment.Trip) error {
	if trip.ID == "" {
		return errors.New("trip id is required")
	}
	if trip.Capacity < 0 {
		return errors.New("trip capacity cannot be negative")
	}
	startsAt := sql.NullTime{Time: trip.StartsAt.UTC(), Valid: !trip.StartsAt.IsZero()}
	return s.inTx(ctx, func(tx *libsqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, s.q(`SELECT EXISTS(SELECT 1 FROM trips WHERE id = ?)`), trip.ID); err != nil {
			return fmt.Errorf("check trip: %w", err)
		}
		var err error
		if exists {
			_, err = tx.ExecContext(ctx, s.q(`UPDATE trips SET name = ?, capacity = ?, price = ?, starts_at = ? WHERE id = ?`),
				trip.Name, trip.Capacity, trip.Price, startsAt, trip.ID)
		} else {
			_, err = tx.ExecContext(ctx, s.q(`INSERT INTO trips (id, name, capacity, enrolled, price, starts_at) VALUES (?, ?, ?, 0, ?, ?)`),
				trip.ID, trip.Name, trip.Capacity, trip.Price, startsAt)
		}
		if err != nil {
			return fmt.Errorf("write trip: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTrip(ctx context.Context, tripID string) (enrollment.Trip, error) {
	var row tripRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT id, name, capacity, enrolled, price, starts_at FROM trips WHERE id = ?`), tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.Trip{}, enrollment.ErrTripNotFound
	}
	if err != nil {
		return enrollment.Trip{}, fmt.Errorf("query trip: %w", err)
	}
	return row.trip(), nil
}

func (s *Store) CheckAvailability(ctx context.Context, tripID string) (enrollment.Availability, error) {
	t, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return enrollment.Availability{}, err
	}
	return enrollment.Availability{Available: t.Remaining() > 0, Remaining: t.Remaining()}, nil
}

// Create reserves a seat with a conditional increment and inserts the
// enrollment in the same transaction.
func (s *Store) Create(ctx context.Context, tripID, userID string, payload enrollment.Payload) (enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("encode payload: %w", err)
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
	err = s.inTx(ctx, func(tx *libsqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE trips SET enrolled = enrolled + 1 WHERE id = ? AND enrolled < capacity`), tripID)
		if err != nil {
			return fmt.Errorf("reserve seat: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve seat: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, s.q(`SELECT EXISTS(SELECT 1 FROM trips WHERE id = ?)`), tripID); err != nil {
				return fmt.Errorf("check trip: %w", err)
			}
			if !exists {
				return enrollment.ErrTripNotFound
			}
			return enrollment.ErrTripFull
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO enrollments (`+enrollmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.ID, e.TripID, e.UserID, string(e.Status), string(data), "", e.ReservationNumber, e.CreatedAt, e.UpdatedAt); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (enrollment.Enrollment, error) {
	return s.get(ctx, s.db, id)
}

func (s *Store) get(ctx context.Context, q libsqlx.QueryerContext, id string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := libsqlx.GetContext(ctx, q, &row, s.q(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("query enrollment: %w", err)
	}
	return row.enrollment()
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	userID, err := enrollment.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	var rows []enrollmentRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? ORDER BY created_at DESC`), userID); err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	out := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		e, err := r.enrollment()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SetPaymentProof(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE enrollments SET payment_proof_url = ?, updated_at = ? WHERE id = ?`), url, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update proof: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return enrollment.ErrNotFound
	}
	return nil
}

// UpdateStatus applies a compare-and-set on status and releases the seat on cancel.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to enrollment.Status) (enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := s.inTx(ctx, func(tx *libsqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE enrollments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			string(to), s.now().UTC(), id, string(from))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if n == 0 {
			e, err := s.get(ctx, tx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: stored status is %s", enrollment.ErrInvalidTransition, e.Status)
		}
		e, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if to == enrollment.StatusCancelled {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE trips SET enrolled = enrolled - 1 WHERE id = ? AND enrolled > 0`), e.TripID); err != nil {
				return fmt.Errorf("release seat: %w", err)
			}
		}
		out = e
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return out, nil
}

var _ enrollment.Repository = (*Store)(nil)
