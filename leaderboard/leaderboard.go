package leaderboard

import "campkit/core"

// Entry is one camper's standing.
type Entry struct {
	User   core.UserID `json:"user_id"`
	Points int64       `json:"points"`
	Rank   int         `json:"rank,omitempty"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, points int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}
