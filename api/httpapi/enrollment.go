package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campkit/enrollment"
)

type availabilityInvalidator interface {
	Invalidate(tripID string)
}

// invalidateAvailability drops a cached answer after seats change.
func (s *server) invalidateAvailability(tripID string) {
	if c, ok := s.deps.Enrollment.Availability.(availabilityInvalidator); ok {
		c.Invalidate(tripID)
	}
}

func (s *server) tripRoutes(r chi.Router) {
	r.Route("/trips/{tripID}", func(r chi.Router) {
		r.Put("/", s.putTrip)
		r.Get("/", s.getTrip)
		r.Get("/availability", s.tripAvailability)
	})
}

func (s *server) enrollmentRoutes(r chi.Router) {
	r.Route("/enrollments/{enrollmentID}", func(r chi.Router) {
		r.Get("/", s.getEnrollment)
		r.Post("/status", s.transitionEnrollment)
		r.Post("/proof", s.attachProof)
	})
}

type tripRequest struct {
	Name     string    `json:"name" validate:"max=200"`
	Capacity int       `json:"capacity" validate:"gte=0"`
	Price    int64     `json:"price" validate:"gte=0"`
	StartsAt time.Time `json:"starts_at"`
}

func (s *server) putTrip(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_trip", err.Error(), nil)
		return
	}
	id := chi.URLParam(r, "tripID")
	trip := enrollment.Trip{ID: id, Name: req.Name, Capacity: req.Capacity, Price: req.Price, StartsAt: req.StartsAt.UTC()}
	if err := s.deps.Enrollment.Repo.PutTrip(r.Context(), trip); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.invalidateAvailability(id)
	stored, err := s.deps.Enrollment.Repo.GetTrip(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, stored)
}

func (s *server) getTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.deps.Enrollment.Repo.GetTrip(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, trip)
}

func (s *server) tripAvailability(w http.ResponseWriter, r *http.Request) {
	checker := s.deps.Enrollment.Availability
	if checker == nil {
		checker = s.deps.Enrollment.Repo
	}
	a, err := checker.CheckAvailability(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, a)
}

func (s *server) getEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Manager.Get(r.Context(), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, e)
}

type statusRequest struct {
	Status enrollment.Status `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

func (s *server) transitionEnrollment(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error(), nil)
		return
	}
	e, err := s.deps.Manager.Transition(r.Context(), chi.URLParam(r, "enrollmentID"), req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.Status == enrollment.StatusCancelled {
		s.invalidateAvailability(e.TripID)
	}
	writeJSON(w, e)
}

func (s *server) attachProof(w http.ResponseWriter, r *http.Request) {
	file, ok := s.readProof(w, r)
	if !ok {
		return
	}
	e, err := s.deps.Manager.AttachProof(r.Context(), chi.URLParam(r, "enrollmentID"), file)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, e)
}
