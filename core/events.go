package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventPointsAdded       EventType = "points_added"
	EventBadgeAwarded      EventType = "badge_awarded"
	EventLevelUp           EventType = "level_up"
	EventStreakMilestone   EventType = "streak_milestone"
	EventTripCompleted     EventType = "trip_completed"
	EventEnrollmentCreated EventType = "enrollment_created"
	EventEnrollmentStatus  EventType = "enrollment_status"
	EventProofUploaded     EventType = "proof_uploaded"
	EventProofFailed       EventType = "proof_upload_failed"
)

// Event represents an immutable domain event.
type Event struct {
	Type         EventType      `json:"type"`
	Time         time.Time      `json:"time"`
	UserID       UserID         `json:"user_id"`
	Action       ActionKind     `json:"action,omitempty"`
	Delta        int64          `json:"delta,omitempty"`
	Total        int64          `json:"total,omitempty"`
	Badge        BadgeID        `json:"badge,omitempty"`
	Level        int64          `json:"level,omitempty"`
	Streak       int            `json:"streak,omitempty"`
	TripID       string         `json:"trip_id,omitempty"`
	EnrollmentID string         `json:"enrollment_id,omitempty"`
	Reservation  string         `json:"reservation_number,omitempty"`
	Status       string         `json:"status,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewEvent stamps an event of the given type for user.
func NewEvent(typ EventType, user UserID) Event {
	return Event{Type: typ, Time: time.Now().UTC(), UserID: user}
}

func NewPointsAdded(user UserID, action ActionKind, delta int64, total int64) Event {
	ev := NewEvent(EventPointsAdded, user)
	ev.Action, ev.Delta, ev.Total = action, delta, total
	return ev
}

func NewBadgeAwarded(user UserID, badge BadgeID) Event {
	ev := NewEvent(EventBadgeAwarded, user)
	ev.Badge = badge
	return ev
}

func NewLevelUp(user UserID, level int64) Event {
	ev := NewEvent(EventLevelUp, user)
	ev.Level = level
	return ev
}
