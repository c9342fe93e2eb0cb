package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"campkit/core"
)

var (
	ErrNotFound          = errors.New("enrollment not found")
	ErrTripNotFound      = errors.New("trip not found")
	ErrTripFull          = errors.New("trip is full")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// PaymentMethod identifies how a camper pays.
type PaymentMethod string

const (
	PaymentOnSite       PaymentMethod = "on-site"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
	PaymentMobileMoney  PaymentMethod = "mobile-money"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentOnSite, PaymentBankTransfer, PaymentMobileMoney:
		return true
	}
	return false
}

// RequiresProof reports whether the method needs a transaction number and proof image.
func (m PaymentMethod) RequiresProof() bool { return m != PaymentOnSite }

// Details is the step 2 payload. Every field is optional.
type Details struct {
	DietaryRestrictions string `json:"dietary_restrictions,omitempty" firestore:"dietary_restrictions" db:"dietary_restrictions" validate:"omitempty,max=500"`
	NeedsTransport      bool   `json:"needs_transport" firestore:"needs_transport" db:"needs_transport"`
	PickupPoint         string `json:"pickup_point,omitempty" firestore:"pickup_point" db:"pickup_point" validate:"omitempty,max=200"`
	EmergencyContact    string `json:"emergency_contact,omitempty" firestore:"emergency_contact" db:"emergency_contact" validate:"omitempty,max=200"`
	EmergencyPhone      string `json:"emergency_phone,omitempty" firestore:"emergency_phone" db:"emergency_phone" validate:"omitempty,e164"`
}

// Medical is the step 3 payload.
type Medical struct {
	Conditions           string `json:"conditions,omitempty" firestore:"conditions" db:"medical_conditions" validate:"omitempty,max=1000"`
	Allergies            string `json:"allergies,omitempty" firestore:"allergies" db:"allergies" validate:"omitempty,max=500"`
	Medications          string `json:"medications,omitempty" firestore:"medications" db:"medications" validate:"omitempty,max=500"`
	MedicalInfoConfirmed bool   `json:"medical_info_confirmed" firestore:"medical_info_confirmed" db:"medical_info_confirmed"`
}

// Payment is the step 4 payload. TotalAmount is in cents.
type Payment struct {
	Method            PaymentMethod `json:"method" firestore:"method" db:"payment_method"`
	TransactionNumber string        `json:"transaction_number,omitempty" firestore:"transaction_number" db:"transaction_number" validate:"omitempty,max=64"`
	TotalAmount       int64         `json:"total_amount" firestore:"total_amount" db:"total_amount" validate:"gte=0"`
}

// Payload is everything the wizard collects before commit.
type Payload struct {
	AcceptedTerms bool    `json:"accepted_terms" firestore:"accepted_terms"`
	Details       Details `json:"details" firestore:"details"`
	Medical       Medical `json:"medical" firestore:"medical"`
	Payment       Payment `json:"payment" firestore:"payment"`
}

// Enrollment is a camper's registration for a trip.
type Enrollment struct {
	ID                string    `json:"id" firestore:"-"`
	TripID            string    `json:"trip_id" firestore:"trip_id"`
	UserID            string    `json:"user_id" firestore:"user_id"`
	Status            Status    `json:"status" firestore:"status"`
	Payload           Payload   `json:"payload" firestore:"payload"`
	PaymentProofURL   string    `json:"payment_proof_url,omitempty" firestore:"payment_proof_url"`
	ReservationNumber string    `json:"reservation_number" firestore:"reservation_number"`
	CreatedAt         time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" firestore:"updated_at"`
}

// Trip is the capacity-bearing part of a scheduled excursion.
type Trip struct {
	ID       string    `json:"id" firestore:"-" db:"id"`
	Name     string    `json:"name" firestore:"name" db:"name"`
	Capacity int       `json:"capacity" firestore:"capacity" db:"capacity"`
	Enrolled int       `json:"enrolled" firestore:"enrolled" db:"enrolled"`
	Price    int64     `json:"price" firestore:"price" db:"price"`
	StartsAt time.Time `json:"starts_at" firestore:"starts_at" db:"starts_at"`
}

// Remaining returns free seats, never negative.
func (t Trip) Remaining() int {
	if r := t.Capacity - t.Enrolled; r > 0 {
		return r
	}
	return 0
}

// Availability is the advisory answer of an availability check.
type Availability struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
}

// AvailabilityChecker answers best-effort seat availability.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, tripID string) (Availability, error)
}

// Repository persists trips and enrollments.
//
// Create must reserve a seat atomically with inserting the enrollment and
// return ErrTripFull when none remain. The returned enrollment carries the
// store-assigned id and reservation number.
type Repository interface {
	AvailabilityChecker
	PutTrip(ctx context.Context, trip Trip) error
	GetTrip(ctx context.Context, tripID string) (Trip, error)
	Create(ctx context.Context, tripID, userID string, payload Payload) (Enrollment, error)
	Get(ctx context.Context, id string) (Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]Enrollment, error)
	SetPaymentProof(ctx context.Context, id, url string) error
	// UpdateStatus moves an enrollment from one status to another, releasing the
	// seat when to is StatusCancelled. It fails with ErrInvalidTransition if the
	// stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (Enrollment, error)
}

// File is an uploaded payment proof.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// BlobStore stores payment proofs and returns a retrievable URL.
type BlobStore interface {
	Upload(ctx context.Context, enrollmentID string, file File) (string, error)
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// CheckTransition validates a transition including the confirmation gates.
func CheckTransition(e Enrollment, to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	if to == StatusConfirmed || to == StatusCompleted {
		if !e.Payload.AcceptedTerms {
			return fmt.Errorf("%w: terms not accepted", ErrInvalidTransition)
		}
		if !e.Payload.Medical.MedicalInfoConfirmed {
			return fmt.Errorf("%w: medical information not confirmed", ErrInvalidTransition)
		}
	}
	return nil
}

// NormalizeUserID applies the progress store's identity rules so that
// enrollments and progress agree on who a camper is.
func NormalizeUserID(userID string) (string, error) {
	id, err := core.NormalizeUserID(core.UserID(userID))
	return string(id), err
}

// NewID returns a fresh enrollment id.
func NewID() string { return uuid.NewString() }

// NewReservationNumber returns a human-referenceable number such as
// CA-20261019-7F3K2Q. The random part comes from a v4 UUID.
func NewReservationNumber(now time.Time) string {
	id := uuid.New()
	const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	var b strings.Builder
	b.Grow(6)
	for i := 0; i < 6; i++ {
		b.WriteByte(alphabet[int(id[i])%len(alphabet)])
	}
	return fmt.Sprintf("CA-%s-%s", now.UTC().Format("20060102"), b.String())
}

// ProofKey returns the object key for a payment proof: proofs/{enrollment}/{uuid}{ext}.
func ProofKey(enrollmentID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return fmt.Sprintf("proofs/%s/%s%s", enrollmentID, uuid.NewString(), ext)
}

// DetectContentType returns the declared type or sniffs it from the data.
func (f File) DetectContentType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return http.DetectContentType(f.Data)
}
