package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"campkit/core"
	"campkit/enrollment"
)

// ActionResult is the outcome of RecordAction.
type ActionResult struct {
	Points      int64        `json:"points"`
	TotalPoints int64        `json:"total_points"`
	Level       int64        `json:"level"`
	LeveledUp   bool         `json:"leveled_up"`
	Badges      []core.Badge `json:"badges"`
}

// LeaderboardEntry is one ranked camper.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Rank   int    `json:"rank"`
}

// DashboardBadge is a catalog badge flagged with whether the camper holds it.
type DashboardBadge struct {
	core.Badge
	Earned bool `json:"earned"`
}

// Dashboard mirrors GET /users/{id}/dashboard.
type Dashboard struct {
	Progress    core.UserProgress       `json:"progress"`
	Level       core.LevelInfo          `json:"level"`
	Badges      []DashboardBadge        `json:"badges"`
	Enrollments []enrollment.Enrollment `json:"enrollments"`
	Rank        int                     `json:"rank,omitempty"`
}

// WizardAvailability is the advisory seat check shown on the first step.
type WizardAvailability struct {
	Checked   bool   `json:"checked"`
	Available bool   `json:"available"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

// WizardState mirrors a wizard session.
type WizardState struct {
	ID           string                 `json:"id"`
	TripID       string                 `json:"trip_id"`
	UserID       string                 `json:"user_id"`
	Step         string                 `json:"step"`
	Error        string                 `json:"error,omitempty"`
	Availability WizardAvailability     `json:"availability"`
	Payload      enrollment.Payload     `json:"payload"`
	HasProof     bool                   `json:"has_proof"`
	Enrollment   *enrollment.Enrollment `json:"enrollment,omitempty"`
	ProofError   string                 `json:"proof_error,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// APIError is the error envelope returned by the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
