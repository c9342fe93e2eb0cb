package enrollment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "campkit/adapters/memory"
	"campkit/core"
	"campkit/enrollment"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Publish(_ context.Context, ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type queue struct {
	mu   sync.Mutex
	jobs []string
}

func (q *queue) Enqueue(id string, _ enrollment.File) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, id)
	return true
}

type flakyRepo struct {
	*mem.Enrollments
	createErr error
	block     bool
}

func (f *flakyRepo) Create(ctx context.Context, tripID, userID string, p enrollment.Payload) (enrollment.Enrollment, error) {
	if f.block {
		<-ctx.Done()
		return enrollment.Enrollment{}, ctx.Err()
	}
	if f.createErr != nil {
		return enrollment.Enrollment{}, f.createErr
	}
	return f.Enrollments.Create(ctx, tripID, userID, p)
}

type failingAvailability struct{}

func (failingAvailability) CheckAvailability(context.Context, string) (enrollment.Availability, error) {
	return enrollment.Availability{}, errors.New("availability service down")
}

type fixture struct {
	repo   *mem.Enrollments
	blobs  *mem.Blobs
	events *recorder
	deps   enrollment.Deps
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	repo := mem.NewEnrollments()
	require.NoError(t, repo.PutTrip(context.Background(), enrollment.Trip{ID: "trip-1", Name: "Lac Blanc", Capacity: capacity, Price: 15000}))
	f := &fixture{repo: repo, blobs: mem.NewBlobs(), events: &recorder{}}
	f.deps = enrollment.Deps{Repo: repo, Blobs: f.blobs, Events: f.events}
	return f
}

func open(t *testing.T, deps enrollment.Deps) *enrollment.Wizard {
	t.Helper()
	w, err := enrollment.Open(context.Background(), deps, "trip-1", "camper-1")
	require.NoError(t, err)
	<-w.AvailabilityChecked()
	return w
}

func advanceToPayment(t *testing.T, w *enrollment.Wizard) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, w.SetAcceptedTerms(true))
	_, err := w.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SetDetails(enrollment.Details{DietaryRestrictions: "vegetarian"}))
	_, err = w.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, w.SetMedical(enrollment.Medical{Allergies: "pollen", MedicalInfoConfirmed: true}))
	step, err := w.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, enrollment.StepPayment, step)
}

func TestTermsNotAcceptedStaysOnConfirm(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)

	step, err := w.Next(context.Background())
	var ve *enrollment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must accept terms", ve.Message)
	assert.Equal(t, enrollment.StepConfirm, step)
	assert.Equal(t, enrollment.StepConfirm, w.Step())
	assert.Equal(t, "must accept terms", w.Error())
}

func TestOnSitePaymentCommitsWithoutProof(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	advanceToPayment(t, w)

	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite, TotalAmount: 15000}))
	step, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDone, step)

	e, ok := w.Enrollment()
	require.True(t, ok)
	assert.Regexp(t, `^CA-\d{8}-[0-9A-Z]{6}$`, e.ReservationNumber)
	assert.Equal(t, enrollment.StatusPending, e.Status)
	assert.Empty(t, e.PaymentProofURL)
	assert.Equal(t, []core.EventType{core.EventEnrollmentCreated}, f.events.types())

	stored, err := f.repo.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "trip-1", stored.TripID)
	assert.Equal(t, "camper-1", stored.UserID)
	assert.Equal(t, w.Payload(), stored.Payload)

	_, err = w.Back()
	assert.ErrorIs(t, err, enrollment.ErrWizardDone)
	assert.ErrorIs(t, w.SetAcceptedTerms(false), enrollment.ErrWizardDone)
}

func TestGateCombinations(t *testing.T) {
	for _, terms := range []bool{false, true} {
		for _, medical := range []bool{false, true} {
			t.Run(fmt.Sprintf("terms=%v/medical=%v", terms, medical), func(t *testing.T) {
				f := newFixture(t, 10)
				w := open(t, f.deps)
				ctx := context.Background()

				require.NoError(t, w.SetAcceptedTerms(terms))
				require.NoError(t, w.SetMedical(enrollment.Medical{MedicalInfoConfirmed: medical}))
				require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))
				for i := 0; i < 6; i++ {
					if _, err := w.Next(ctx); err != nil {
						break
					}
				}
				_, committed := w.Enrollment()
				if terms && medical {
					assert.Equal(t, enrollment.StepDone, w.Step())
					assert.True(t, committed)
					return
				}
				assert.NotEqual(t, enrollment.StepDone, w.Step())
				assert.False(t, committed)
				if !terms {
					assert.Equal(t, enrollment.StepConfirm, w.Step())
				} else {
					assert.Equal(t, enrollment.StepMedical, w.Step())
					assert.Equal(t, "must confirm medical information", w.Error())
				}
			})
		}
	}
}

func TestRevokedTermsBlockCommit(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	advanceToPayment(t, w)
	require.NoError(t, w.SetAcceptedTerms(false))
	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))

	_, err := w.Next(context.Background())
	var ve *enrollment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, enrollment.StepConfirm, ve.Step)
	assert.Equal(t, enrollment.StepPayment, w.Step())
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	advanceToPayment(t, w)
	ctx := context.Background()

	_, err := w.Next(ctx)
	assert.EqualError(t, err, "must select a payment method")

	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentMobileMoney}))
	_, err = w.Next(ctx)
	assert.EqualError(t, err, "transaction number is required")

	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentMobileMoney, TransactionNumber: " MM-42 "}))
	_, err = w.Next(ctx)
	assert.EqualError(t, err, "payment proof is required")
	assert.Equal(t, "MM-42", w.Payload().Payment.TransactionNumber)

	var ve *enrollment.ValidationError
	require.ErrorAs(t, w.SetProof(enrollment.File{Name: "empty.png"}), &ve)
	require.ErrorAs(t, w.SetProof(enrollment.File{Name: "x.exe", ContentType: "application/octet-stream", Data: []byte{1}}), &ve)

	require.NoError(t, w.SetProof(enrollment.File{Name: "receipt.png", ContentType: "image/png", Data: []byte("png")}))
	step, err := w.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDone, step)

	e, _ := w.Enrollment()
	require.NotEmpty(t, e.PaymentProofURL)
	stored, _ := f.repo.Get(ctx, e.ID)
	assert.Equal(t, e.PaymentProofURL, stored.PaymentProofURL)
	file, ok := f.blobs.Get(e.PaymentProofURL)
	require.True(t, ok)
	assert.Equal(t, "png", string(file.Data))
	assert.Equal(t, []core.EventType{core.EventEnrollmentCreated, core.EventProofUploaded}, f.events.types())
}

func TestUploadFailureStillCompletes(t *testing.T) {
	f := newFixture(t, 10)
	q := &queue{}
	f.deps.Proofs = q
	f.blobs.SetFail(errors.New("bucket unavailable"))
	w := open(t, f.deps)
	advanceToPayment(t, w)

	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentBankTransfer, TransactionNumber: "TX-1"}))
	require.NoError(t, w.SetProof(enrollment.File{Name: "receipt.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}))
	step, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDone, step)

	e, ok := w.Enrollment()
	require.True(t, ok)
	assert.Empty(t, e.PaymentProofURL)
	assert.Error(t, w.ProofError())
	assert.Equal(t, []string{e.ID}, q.jobs)
	assert.Equal(t, []core.EventType{core.EventEnrollmentCreated, core.EventProofFailed}, f.events.types())
}

func TestCommitFailureStaysOnPayment(t *testing.T) {
	f := newFixture(t, 10)
	repo := &flakyRepo{Enrollments: f.repo, createErr: errors.New("connection reset")}
	f.deps.Repo = repo
	w := open(t, f.deps)
	advanceToPayment(t, w)
	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))

	step, err := w.Next(context.Background())
	var ce *enrollment.CommitError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Retryable)
	assert.Equal(t, enrollment.StepPayment, step)
	assert.NotEmpty(t, w.Error())
	_, ok := w.Enrollment()
	assert.False(t, ok)

	repo.createErr = nil
	step, err = w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDone, step)
	assert.Empty(t, w.Error())
}

func TestCommitTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.Repo = &flakyRepo{Enrollments: f.repo, block: true}
	f.deps.Timeouts = enrollment.Timeouts{Commit: 20 * time.Millisecond}
	w := open(t, f.deps)
	advanceToPayment(t, w)
	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))

	_, err := w.Next(context.Background())
	var ce *enrollment.CommitError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, enrollment.StepPayment, w.Step())
}

func TestFullTripFailsAtCommit(t *testing.T) {
	f := newFixture(t, 1)
	first := open(t, f.deps)
	second := open(t, f.deps)

	a, _, err := second.Availability()
	require.NoError(t, err)
	assert.True(t, a.Available)

	for _, w := range []*enrollment.Wizard{first, second} {
		advanceToPayment(t, w)
		require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))
	}
	_, err = first.Next(context.Background())
	require.NoError(t, err)

	_, err = second.Next(context.Background())
	assert.ErrorIs(t, err, enrollment.ErrTripFull)
	var ce *enrollment.CommitError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Retryable)
	assert.Equal(t, "this trip is full", second.Error())
	assert.Equal(t, enrollment.StepPayment, second.Step())
}

func TestAvailabilityFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.Availability = failingAvailability{}
	w := open(t, f.deps)

	_, checked, err := w.Availability()
	assert.True(t, checked)
	assert.Error(t, err)

	require.NoError(t, w.SetAcceptedTerms(true))
	step, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDetails, step)
}

func TestBackKeepsDataAndClearsError(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	ctx := context.Background()
	require.NoError(t, w.SetAcceptedTerms(true))
	_, _ = w.Next(ctx)
	_, _ = w.Next(ctx)
	_, err := w.Next(ctx)
	require.Error(t, err)
	require.NotEmpty(t, w.Error())

	step, err := w.Back()
	require.NoError(t, err)
	assert.Equal(t, enrollment.StepDetails, step)
	assert.Empty(t, w.Error())
	assert.True(t, w.Payload().AcceptedTerms)

	_, _ = w.Back()
	step, _ = w.Back()
	assert.Equal(t, enrollment.StepConfirm, step)
}

func TestCloseDiscardsDataButKeepsEnrollment(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	advanceToPayment(t, w)
	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))
	_, err := w.Next(context.Background())
	require.NoError(t, err)
	e, _ := w.Enrollment()

	w.Close()
	assert.Equal(t, enrollment.Payload{}, w.Payload())
	_, err = w.Next(context.Background())
	assert.ErrorIs(t, err, enrollment.ErrWizardClosed)

	_, err = f.repo.Get(context.Background(), e.ID)
	assert.NoError(t, err)
}

func TestFieldValidation(t *testing.T) {
	f := newFixture(t, 10)
	w := open(t, f.deps)
	var ve *enrollment.ValidationError
	require.ErrorAs(t, w.SetDetails(enrollment.Details{EmergencyPhone: "not a phone"}), &ve)
	assert.Equal(t, enrollment.StepDetails, ve.Step)
	require.ErrorAs(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite, TotalAmount: -1}), &ve)
	assert.Equal(t, enrollment.StepPayment, ve.Step)
}

func TestOpenRequiresIDsAndDeps(t *testing.T) {
	f := newFixture(t, 10)
	_, err := enrollment.Open(context.Background(), f.deps, "", "u")
	assert.Error(t, err)
	_, err = enrollment.Open(context.Background(), enrollment.Deps{}, "trip-1", "u")
	assert.Error(t, err)
}

func TestWizardNormalizesUserID(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	w, err := enrollment.Open(ctx, f.deps, "trip-1", "  Camper-1 ")
	require.NoError(t, err)
	<-w.AvailabilityChecked()
	assert.Equal(t, "camper-1", w.UserID())

	advanceToPayment(t, w)
	require.NoError(t, w.SetPayment(enrollment.Payment{Method: enrollment.PaymentOnSite}))
	_, err = w.Next(ctx)
	require.NoError(t, err)

	m := enrollment.NewManager(f.repo, f.blobs)
	list, err := m.ListByUser(ctx, "CAMPER-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "camper-1", list[0].UserID)

	_, err = enrollment.Open(ctx, f.deps, "trip-1", "   ")
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
	_, err = m.ListByUser(ctx, "")
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}
