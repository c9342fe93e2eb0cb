package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"campkit/enrollment"
)

// sessions holds open wizards by id. Evicted or expired wizards are closed.
type sessions struct {
	lru *expirable.LRU[string, *enrollment.Wizard]
}

func newSessions(limit int, ttl time.Duration) *sessions {
	onEvict := func(_ string, w *enrollment.Wizard) { w.Close() }
	return &sessions{lru: expirable.NewLRU[string, *enrollment.Wizard](limit, onEvict, ttl)}
}

func (s *sessions) add(w *enrollment.Wizard) string {
	id := enrollment.NewID()
	s.lru.Add(id, w)
	return id
}

func (s *sessions) get(id string) (*enrollment.Wizard, bool) { return s.lru.Get(id) }

func (s *sessions) remove(id string) bool { return s.lru.Remove(id) }

type availabilityView struct {
	Checked   bool   `json:"checked"`
	Available bool   `json:"available"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

type wizardView struct {
	ID           string                 `json:"id"`
	TripID       string                 `json:"trip_id"`
	UserID       string                 `json:"user_id"`
	Step         string                 `json:"step"`
	Error        string                 `json:"error,omitempty"`
	Availability availabilityView       `json:"availability"`
	Payload      enrollment.Payload     `json:"payload"`
	HasProof     bool                   `json:"has_proof"`
	Enrollment   *enrollment.Enrollment `json:"enrollment,omitempty"`
	ProofError   string                 `json:"proof_error,omitempty"`
}

func newWizardView(id string, w *enrollment.Wizard) wizardView {
	v := wizardView{
		ID:       id,
		TripID:   w.TripID(),
		UserID:   w.UserID(),
		Step:     w.Step().String(),
		Error:    w.Error(),
		Payload:  w.Payload(),
		HasProof: w.HasProof(),
	}
	a, checked, err := w.Availability()
	v.Availability = availabilityView{Checked: checked, Available: a.Available, Remaining: a.Remaining}
	if err != nil {
		v.Availability.Error = enrollment.UserMessage(err)
	}
	if e, ok := w.Enrollment(); ok {
		v.Enrollment = &e
	}
	if err := w.ProofError(); err != nil {
		v.ProofError = enrollment.UserMessage(err)
	}
	return v
}

func (s *server) wizardRoutes(r chi.Router) {
	r.Post("/trips/{tripID}/wizards", s.openWizard)
	r.Route("/wizards/{wizardID}", func(r chi.Router) {
		r.Get("/", s.getWizard)
		r.Delete("/", s.closeWizard)
		r.Put("/terms", s.setTerms)
		r.Put("/details", s.setDetails)
		r.Put("/medical", s.setMedical)
		r.Put("/payment", s.setPayment)
		r.Post("/proof", s.setProof)
		r.Post("/next", s.nextStep)
		r.Post("/back", s.previousStep)
	})
}

func (s *server) wizard(w http.ResponseWriter, r *http.Request) (string, *enrollment.Wizard, bool) {
	id := chi.URLParam(r, "wizardID")
	wz, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "wizard_not_found", "wizard not found or expired", nil)
		return "", nil, false
	}
	return id, wz, true
}

type openWizardRequest struct {
	UserID string `json:"user_id"`
}

func (s *server) openWizard(w http.ResponseWriter, r *http.Request) {
	var req openWizardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wz, err := enrollment.Open(r.Context(), s.deps.Enrollment, chi.URLParam(r, "tripID"), req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}
	id := s.sessions.add(wz)
	writeJSONStatus(w, http.StatusCreated, newWizardView(id, wz))
}

func (s *server) getWizard(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	writeJSON(w, newWizardView(id, wz))
}

func (s *server) closeWizard(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.remove(chi.URLParam(r, "wizardID")) {
		writeError(w, http.StatusNotFound, "wizard_not_found", "wizard not found or expired", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// updateWizard decodes the body into T and applies it with set.
func updateWizard[T any](s *server, set func(*enrollment.Wizard, T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, wz, ok := s.wizard(w, r)
		if !ok {
			return
		}
		var body T
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := set(wz, body); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, newWizardView(id, wz))
	}
}

type termsRequest struct {
	AcceptedTerms bool `json:"accepted_terms"`
}

func (s *server) setTerms(w http.ResponseWriter, r *http.Request) {
	updateWizard(s, func(wz *enrollment.Wizard, b termsRequest) error { return wz.SetAcceptedTerms(b.AcceptedTerms) })(w, r)
}

func (s *server) setDetails(w http.ResponseWriter, r *http.Request) {
	updateWizard(s, (*enrollment.Wizard).SetDetails)(w, r)
}

func (s *server) setMedical(w http.ResponseWriter, r *http.Request) {
	updateWizard(s, (*enrollment.Wizard).SetMedical)(w, r)
}

func (s *server) setPayment(w http.ResponseWriter, r *http.Request) {
	updateWizard(s, (*enrollment.Wizard).SetPayment)(w, r)
}

func (s *server) setProof(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	file, ok := s.readProof(w, r)
	if !ok {
		return
	}
	if err := wz.SetProof(file); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, newWizardView(id, wz))
}

// nextStep advances the wizard. A failed guard or commit still returns the
// view so clients can render the step error.
func (s *server) nextStep(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	step, err := wz.Next(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if step == enrollment.StepDone {
		s.invalidateAvailability(wz.TripID())
	}
	writeJSON(w, newWizardView(id, wz))
}

func (s *server) previousStep(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if _, err := wz.Back(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, newWizardView(id, wz))
}

// readProof reads the "file" part of a multipart upload, capped at MaxProofBytes.
func (s *server) readProof(w http.ResponseWriter, r *http.Request) (enrollment.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxProofBytes+1<<20)
	if err := r.ParseMultipartForm(s.opts.MaxProofBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "proof_too_large", "payment proof is too large", nil)
			return enrollment.File{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
		return enrollment.File{}, false
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart field \"file\" is required", nil)
		return enrollment.File{}, false
	}
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, s.opts.MaxProofBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
		return enrollment.File{}, false
	}
	if int64(len(data)) > s.opts.MaxProofBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "proof_too_large", "payment proof is too large", nil)
		return enrollment.File{}, false
	}
	return enrollment.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}
