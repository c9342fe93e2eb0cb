package sdk

import (
	"context"
	"net/http"
	"net/url"

	"campkit/enrollment"
)

// Wizard is a remote enrollment wizard session. Every call returns the
// session state after the server applied it.
type Wizard struct {
	c  *Client
	ID string
}

// OpenWizard starts an enrollment wizard for a camper on a trip.
func (c *Client) OpenWizard(ctx context.Context, tripID, userID string) (*Wizard, WizardState, error) {
	if userID == "" {
		return nil, WizardState{}, ErrEmptyUserID
	}
	var st WizardState
	err := c.doJSON(ctx, http.MethodPost, "/trips/"+url.PathEscape(tripID)+"/wizards", map[string]string{"user_id": userID}, &st)
	if err != nil {
		return nil, WizardState{}, err
	}
	return &Wizard{c: c, ID: st.ID}, st, nil
}

func (w *Wizard) path(suffix string) string { return "/wizards/" + url.PathEscape(w.ID) + suffix }

func (w *Wizard) call(ctx context.Context, method, suffix string, in any) (WizardState, error) {
	var st WizardState
	err := w.c.doJSON(ctx, method, w.path(suffix), in, &st)
	return st, err
}

func (w *Wizard) State(ctx context.Context) (WizardState, error) {
	return w.call(ctx, http.MethodGet, "", nil)
}

func (w *Wizard) AcceptTerms(ctx context.Context, accepted bool) (WizardState, error) {
	return w.call(ctx, http.MethodPut, "/terms", map[string]bool{"accepted_terms": accepted})
}

func (w *Wizard) SetDetails(ctx context.Context, d enrollment.Details) (WizardState, error) {
	return w.call(ctx, http.MethodPut, "/details", d)
}

func (w *Wizard) SetMedical(ctx context.Context, m enrollment.Medical) (WizardState, error) {
	return w.call(ctx, http.MethodPut, "/medical", m)
}

func (w *Wizard) SetPayment(ctx context.Context, p enrollment.Payment) (WizardState, error) {
	return w.call(ctx, http.MethodPut, "/payment", p)
}

// UploadProof attaches the payment proof before commit.
func (w *Wizard) UploadProof(ctx context.Context, file enrollment.File) (WizardState, error) {
	var st WizardState
	err := w.c.upload(ctx, w.path("/proof"), file, &st)
	return st, err
}

// Next validates the current step and advances. Leaving the payment step commits.
func (w *Wizard) Next(ctx context.Context) (WizardState, error) {
	return w.call(ctx, http.MethodPost, "/next", nil)
}

func (w *Wizard) Back(ctx context.Context) (WizardState, error) {
	return w.call(ctx, http.MethodPost, "/back", nil)
}

// Close discards the session. A committed enrollment is kept.
func (w *Wizard) Close(ctx context.Context) error {
	req, err := w.c.newRequest(ctx, http.MethodDelete, w.path(""), nil, "")
	if err != nil {
		return err
	}
	return w.c.send(req, nil)
}
