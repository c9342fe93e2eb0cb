package enrollment

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrWizardClosed = errors.New("wizard closed")
	ErrWizardDone   = errors.New("enrollment already committed")
)

// Validation messages shown to campers.
const (
	MsgAcceptTerms       = "must accept terms"
	MsgConfirmMedical    = "must confirm medical information"
	MsgSelectPayment     = "must select a payment method"
	MsgTransactionNumber = "transaction number is required"
	MsgPaymentProof      = "payment proof is required"
)

// ValidationError is an unmet step guard. Message is user-facing.
type ValidationError struct {
	Step    Step
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CommitError wraps a failed enrollment create. Retryable is false when
// retrying cannot succeed, such as a full trip.
type CommitError struct {
	Err       error
	Retryable bool
}

func (e *CommitError) Error() string { return "commit enrollment: " + e.Err.Error() }

func (e *CommitError) Unwrap() error { return e.Err }

func newCommitError(err error) *CommitError {
	retryable := !errors.Is(err, ErrTripFull) && !errors.Is(err, ErrTripNotFound)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out: %w", err)
	}
	return &CommitError{Err: err, Retryable: retryable}
}

// UserMessage renders an error for display on the current step.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch {
	case errors.Is(err, ErrTripFull):
		return "this trip is full"
	case errors.Is(err, ErrTripNotFound):
		return "this trip is no longer available"
	case errors.Is(err, context.DeadlineExceeded):
		return "the enrollment service did not respond in time, please retry"
	}
	var ce *CommitError
	if errors.As(err, &ce) {
		return "enrollment could not be saved, please retry"
	}
	return err.Error()
}
