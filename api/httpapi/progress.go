package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"campkit/core"
	"campkit/enrollment"
	"campkit/leaderboard"
)

func (s *server) progressRoutes(r chi.Router) {
	r.Get("/badges", s.listBadges)
	r.Get("/actions", s.listActions)
	r.Get("/leaderboard", s.leaderboard)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/progress", s.getProgress)
		r.Get("/dashboard", s.dashboard)
		r.Get("/enrollments", s.listUserEnrollments)
		r.Post("/actions", s.recordAction)
		r.Post("/trips/{tripID}/complete", s.completeTrip)
		r.Post("/badges/{badgeID}", s.awardBadge)
	})
}

func userParam(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	user, err := core.NormalizeUserID(core.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return "", false
	}
	return user, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

func (s *server) listBadges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, core.Catalog())
}

type actionPoints struct {
	Action core.ActionKind `json:"action"`
	Points int64           `json:"points"`
}

// listActions returns the base point value of every scored action.
func (s *server) listActions(w http.ResponseWriter, _ *http.Request) {
	actions := core.Actions()
	out := make([]actionPoints, 0, len(actions))
	for _, a := range actions {
		pts, _ := core.BasePoints(a)
		out = append(out, actionPoints{Action: a, Points: pts})
	}
	writeJSON(w, out)
}

func (s *server) leaderboard(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 10)
	if n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_n", "n must be positive", nil)
		return
	}
	if n > s.opts.LeaderboardMax {
		n = s.opts.LeaderboardMax
	}
	entries := s.deps.Progress.Leaderboard(n)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, entries)
}

func (s *server) getProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Progress.GetProgress(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, p)
}

type dashboardBadge struct {
	core.Badge
	Earned bool `json:"earned"`
}

type dashboardView struct {
	Progress    core.UserProgress       `json:"progress"`
	Level       core.LevelInfo          `json:"level"`
	Badges      []dashboardBadge        `json:"badges"`
	Enrollments []enrollment.Enrollment `json:"enrollments"`
	Rank        int                     `json:"rank,omitempty"`
}

// dashboard gathers progress, enrollments, and rank concurrently.
func (s *server) dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	var view dashboardView
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		p, err := s.deps.Progress.GetProgress(ctx, user)
		if err != nil {
			return err
		}
		view.Progress = p
		view.Level = core.DescribeLevel(s.deps.Progress.Leveling(), p.TotalPoints)
		return nil
	})
	g.Go(func() error {
		list, err := s.deps.Manager.ListByUser(ctx, string(user))
		if err != nil {
			return err
		}
		view.Enrollments = list
		return nil
	})
	g.Go(func() error {
		view.Rank, _ = s.deps.Progress.Rank(user)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if view.Enrollments == nil {
		view.Enrollments = []enrollment.Enrollment{}
	}
	catalog := core.Catalog()
	view.Badges = make([]dashboardBadge, 0, len(catalog))
	for _, b := range catalog {
		view.Badges = append(view.Badges, dashboardBadge{Badge: b, Earned: view.Progress.HasBadge(b.ID)})
	}
	writeJSON(w, view)
}

func (s *server) recordAction(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	var pc core.PointsContext
	if !decodeJSON(w, r, &pc) {
		return
	}
	res, err := s.deps.Progress.RecordAction(r.Context(), user, pc)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *server) completeTrip(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	badges, err := s.deps.Progress.CompleteTrip(r.Context(), user, chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if badges == nil {
		badges = []core.Badge{}
	}
	writeJSON(w, map[string]any{"badges": badges})
}

func (s *server) awardBadge(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	badge := core.BadgeID(chi.URLParam(r, "badgeID"))
	if err := core.ValidateBadgeID(badge); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_badge", err.Error(), nil)
		return
	}
	if err := s.deps.Progress.AwardBadge(r.Context(), user, badge); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *server) listUserEnrollments(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Manager.ListByUser(r.Context(), string(user))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []enrollment.Enrollment{}
	}
	writeJSON(w, list)
}
