package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"campkit/core"
)

func enrollmentCreated() core.Event {
	ev := core.NewEvent(core.EventEnrollmentCreated, "u1")
	ev.TripID, ev.EnrollmentID, ev.Reservation = "trip-1", "enr-1", "CA-20260701-ABCDEF"
	return ev
}

func TestSinkPostsEnrollmentEvents(t *testing.T) {
	var hits int32
	var got core.Event
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		sig = r.Header.Get(SignatureHeader)
		if sig != Sign([]byte("s3cret"), body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithSecret("s3cret"))
	sink.OnEvent(core.NewPointsAdded("u1", core.ActionPhotoShared, 5, 5)) // filtered out
	sink.OnEvent(enrollmentCreated())
	sink.Close()

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if got.Reservation != "CA-20260701-ABCDEF" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSinkRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetry(time.Millisecond, 5))
	sink.OnEvent(enrollmentCreated())
	sink.Close()

	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSinkDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetry(time.Millisecond, 5), WithTypes())
	sink.OnEvent(core.NewLevelUp("u1", 3))
	sink.Close()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestSinkWithoutEndpointsIsNoop(t *testing.T) {
	sink := New(nil)
	sink.OnEvent(enrollmentCreated())
	sink.Close()
	sink.OnEvent(enrollmentCreated())
}
