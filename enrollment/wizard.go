package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"campkit/core"
)

// Step is a wizard screen.
type Step int

const (
	StepConfirm Step = iota + 1
	StepDetails
	StepMedical
	StepPayment
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepConfirm:
		return "confirm"
	case StepDetails:
		return "details"
	case StepMedical:
		return "medical"
	case StepPayment:
		return "payment"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Publisher receives enrollment events. *engine.EventBus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev core.Event)
}

// ProofQueue accepts failed proof uploads for a later attempt.
type ProofQueue interface {
	Enqueue(enrollmentID string, file File) bool
}

// Timeouts bound each wizard I/O call.
type Timeouts struct {
	Availability time.Duration
	Commit       time.Duration
	Upload       time.Duration
}

// DefaultTimeouts are used for any zero field.
var DefaultTimeouts = Timeouts{
	Availability: 5 * time.Second,
	Commit:       10 * time.Second,
	Upload:       30 * time.Second,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Availability <= 0 {
		t.Availability = DefaultTimeouts.Availability
	}
	if t.Commit <= 0 {
		t.Commit = DefaultTimeouts.Commit
	}
	if t.Upload <= 0 {
		t.Upload = DefaultTimeouts.Upload
	}
	return t
}

// Deps are the collaborators a wizard talks to. Repo and Blobs are required.
type Deps struct {
	Repo         Repository
	Availability AvailabilityChecker // defaults to Repo
	Blobs        BlobStore
	Events       Publisher
	Proofs       ProofQueue
	Logger       *slog.Logger
	Timeouts     Timeouts
}

func (d Deps) normalized() (Deps, error) {
	if d.Repo == nil || d.Blobs == nil {
		return d, errors.New("wizard requires a repository and a blob store")
	}
	if d.Availability == nil {
		d.Availability = d.Repo
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Timeouts = d.Timeouts.withDefaults()
	return d, nil
}

var validate = validator.New()

// Wizard walks one camper through enrollment for one trip. It is safe for
// concurrent use, but calls are serialized.
type Wizard struct {
	mu   sync.Mutex
	deps Deps

	tripID string
	userID string

	step    Step
	payload Payload
	proof   *File
	lastErr string
	closed  bool

	availDone chan struct{}
	avail     Availability
	availErr  error

	enrollment *Enrollment
	proofErr   error
}

// Open starts a wizard on the confirm step and launches the advisory
// availability check in the background.
func Open(ctx context.Context, deps Deps, tripID, userID string) (*Wizard, error) {
	d, err := deps.normalized()
	if err != nil {
		return nil, err
	}
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return nil, errors.New("trip id is required")
	}
	userID, err = NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	w := &Wizard{
		deps:      d,
		tripID:    tripID,
		userID:    userID,
		step:      StepConfirm,
		availDone: make(chan struct{}),
	}
	go w.checkAvailability(context.WithoutCancel(ctx))
	return w, nil
}

func (w *Wizard) checkAvailability(ctx context.Context) {
	defer close(w.availDone)
	ctx, cancel := context.WithTimeout(ctx, w.deps.Timeouts.Availability)
	defer cancel()
	a, err := w.deps.Availability.CheckAvailability(ctx, w.tripID)
	if err != nil {
		w.deps.Logger.Warn("availability check failed", "trip_id", w.tripID, "user_id", w.userID, "error", err)
	}
	w.mu.Lock()
	w.avail, w.availErr = a, err
	w.mu.Unlock()
}

// AvailabilityChecked is closed once the background check has finished.
func (w *Wizard) AvailabilityChecked() <-chan struct{} { return w.availDone }

// Availability returns the advisory check result. checked is false while the
// check is still running.
func (w *Wizard) Availability() (a Availability, checked bool, err error) {
	select {
	case <-w.availDone:
	default:
		return Availability{}, false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.avail, true, w.availErr
}

func (w *Wizard) TripID() string { return w.tripID }
func (w *Wizard) UserID() string { return w.userID }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Error returns the message of the last failed transition, if any.
func (w *Wizard) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Wizard) Payload() Payload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payload
}

// Enrollment returns the committed record once the wizard is done.
func (w *Wizard) Enrollment() (Enrollment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enrollment == nil {
		return Enrollment{}, false
	}
	return *w.enrollment, true
}

// ProofError reports a failed post-commit upload.
func (w *Wizard) ProofError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.proofErr
}

// HasProof reports whether a payment proof is attached.
func (w *Wizard) HasProof() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.proof != nil
}

func (w *Wizard) editable() error {
	if w.closed {
		return ErrWizardClosed
	}
	if w.step == StepDone {
		return ErrWizardDone
	}
	return nil
}

func (w *Wizard) SetAcceptedTerms(v bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.payload.AcceptedTerms = v
	return nil
}

func (w *Wizard) SetDetails(d Details) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if err := validate.Struct(d); err != nil {
		return &ValidationError{Step: StepDetails, Message: fieldMessage(err)}
	}
	w.payload.Details = d
	return nil
}

func (w *Wizard) SetMedical(m Medical) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if err := validate.Struct(m); err != nil {
		return &ValidationError{Step: StepMedical, Message: fieldMessage(err)}
	}
	w.payload.Medical = m
	return nil
}

func (w *Wizard) SetPayment(p Payment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	p.TransactionNumber = strings.TrimSpace(p.TransactionNumber)
	if err := validate.Struct(p); err != nil {
		return &ValidationError{Step: StepPayment, Message: fieldMessage(err)}
	}
	w.payload.Payment = p
	return nil
}

// SetProof attaches the payment-proof image uploaded after commit.
func (w *Wizard) SetProof(f File) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return &ValidationError{Step: StepPayment, Message: MsgPaymentProof}
	}
	if f.ContentType != "" && !strings.HasPrefix(f.ContentType, "image/") && f.ContentType != "application/pdf" {
		return &ValidationError{Step: StepPayment, Message: "payment proof must be an image"}
	}
	cp := f
	cp.Data = append([]byte(nil), f.Data...)
	w.proof = &cp
	return nil
}

// Next validates the current step and advances. Leaving the payment step
// commits the enrollment.
func (w *Wizard) Next(ctx context.Context) (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return w.step, err
	}
	if err := w.guard(w.step); err != nil {
		w.lastErr = err.Message
		return w.step, err
	}
	if w.step == StepPayment {
		if err := w.commit(ctx); err != nil {
			w.lastErr = UserMessage(err)
			return w.step, err
		}
		w.lastErr = ""
		w.step = StepDone
		w.uploadProof(ctx)
		return w.step, nil
	}
	w.lastErr = ""
	w.step++
	return w.step, nil
}

// Back returns to the previous step keeping form data.
func (w *Wizard) Back() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return w.step, err
	}
	w.lastErr = ""
	if w.step > StepConfirm {
		w.step--
	}
	return w.step, nil
}

// Close discards all unsaved form data. A committed enrollment stays stored.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.payload = Payload{}
	w.proof = nil
	w.lastErr = ""
}

func (w *Wizard) guard(s Step) *ValidationError {
	switch s {
	case StepConfirm:
		if !w.payload.AcceptedTerms {
			return &ValidationError{Step: StepConfirm, Message: MsgAcceptTerms}
		}
	case StepMedical:
		if !w.payload.Medical.MedicalInfoConfirmed {
			return &ValidationError{Step: StepMedical, Message: MsgConfirmMedical}
		}
	case StepPayment:
		// earlier gates are rechecked since their fields stay editable
		if err := w.guard(StepConfirm); err != nil {
			return err
		}
		if err := w.guard(StepMedical); err != nil {
			return err
		}
		m := w.payload.Payment.Method
		if !m.Valid() {
			return &ValidationError{Step: StepPayment, Message: MsgSelectPayment}
		}
		if m.RequiresProof() {
			if w.payload.Payment.TransactionNumber == "" {
				return &ValidationError{Step: StepPayment, Message: MsgTransactionNumber}
			}
			if w.proof == nil {
				return &ValidationError{Step: StepPayment, Message: MsgPaymentProof}
			}
		}
	}
	return nil
}

func (w *Wizard) commit(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, w.deps.Timeouts.Commit)
	defer cancel()
	e, err := w.deps.Repo.Create(cctx, w.tripID, w.userID, w.payload)
	if err != nil {
		ce := newCommitError(err)
		w.deps.Logger.Error("enrollment commit failed",
			"trip_id", w.tripID, "user_id", w.userID, "retryable", ce.Retryable, "error", err)
		return ce
	}
	w.enrollment = &e
	w.deps.Logger.Info("enrollment committed",
		"trip_id", e.TripID, "user_id", e.UserID, "enrollment_id", e.ID, "reservation_number", e.ReservationNumber)
	w.publish(ctx, enrollmentEvent(core.EventEnrollmentCreated, e))
	return nil
}

// uploadProof runs after commit. Failure never undoes the enrollment.
func (w *Wizard) uploadProof(ctx context.Context) {
	if w.proof == nil || w.enrollment == nil {
		return
	}
	e := w.enrollment
	file := *w.proof
	url, err := uploadAndAttach(ctx, w.deps.Repo, w.deps.Blobs, w.deps.Timeouts.Upload, e.ID, file)
	if err != nil {
		w.proofErr = err
		w.deps.Logger.Warn("payment proof upload failed",
			"trip_id", e.TripID, "enrollment_id", e.ID, "error", err)
		ev := enrollmentEvent(core.EventProofFailed, *e)
		ev.Metadata = map[string]any{"error": err.Error()}
		w.publish(ctx, ev)
		if w.deps.Proofs != nil && !w.deps.Proofs.Enqueue(e.ID, file) {
			w.deps.Logger.Warn("proof retry queue full", "enrollment_id", e.ID)
		}
		return
	}
	e.PaymentProofURL = url
	w.proof = nil
	w.publish(ctx, enrollmentEvent(core.EventProofUploaded, *e))
}

func (w *Wizard) publish(ctx context.Context, ev core.Event) {
	if w.deps.Events != nil {
		w.deps.Events.Publish(ctx, ev)
	}
}

// uploadAndAttach stores the file and records its URL on the enrollment.
func uploadAndAttach(ctx context.Context, repo Repository, blobs BlobStore, timeout time.Duration, enrollmentID string, file File) (string, error) {
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	url, err := blobs.Upload(uctx, enrollmentID, file)
	if err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	if err := repo.SetPaymentProof(uctx, enrollmentID, url); err != nil {
		return "", fmt.Errorf("record proof url: %w", err)
	}
	return url, nil
}

func enrollmentEvent(typ core.EventType, e Enrollment) core.Event {
	ev := core.NewEvent(typ, core.UserID(e.UserID))
	ev.TripID = e.TripID
	ev.EnrollmentID = e.ID
	ev.Reservation = e.ReservationNumber
	ev.Status = string(e.Status)
	return ev
}

func fieldMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "max":
			return fmt.Sprintf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param())
		case "e164":
			return fmt.Sprintf("%s must be an international phone number", strings.ToLower(fe.Field()))
		case "gte":
			return fmt.Sprintf("%s cannot be negative", strings.ToLower(fe.Field()))
		}
		return fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
	}
	return err.Error()
}
