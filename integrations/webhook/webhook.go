// Package webhook delivers domain events to external HTTP endpoints, such as
// the operator's booking back office.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"campkit/core"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Campkit-Signature"

// DefaultTypes are the events delivered when no filter is configured.
var DefaultTypes = []core.EventType{
	core.EventEnrollmentCreated,
	core.EventEnrollmentStatus,
	core.EventProofUploaded,
	core.EventProofFailed,
}

// Sink queues events and POSTs them to every endpoint from a background worker.
// Transport errors, 429 and 5xx responses are retried with exponential backoff;
// other 4xx responses are dropped.
type Sink struct {
	client     *http.Client
	endpoints  []string
	types      map[core.EventType]bool
	secret     []byte
	logger     *slog.Logger
	base       time.Duration
	maxRetries uint64

	queue chan core.Event
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 5s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTypes limits delivery to the given event types. An empty list delivers everything.
func WithTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetry sets the first backoff delay and the number of retries after the first attempt.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(s *Sink) {
		if base > 0 {
			s.base = base
		}
		s.maxRetries = maxRetries
	}
}

// WithQueueSize bounds the number of events waiting for delivery.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan core.Event, n)
		}
	}
}

// New creates a webhook sink and starts its delivery worker.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client:     &http.Client{Timeout: 5 * time.Second},
		logger:     slog.Default(),
		base:       500 * time.Millisecond,
		maxRetries: 4,
		queue:      make(chan core.Event, 512),
		stop:       make(chan struct{}),
	}
	WithTypes(DefaultTypes...)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	s.wg.Add(1)
	go s.run()
	return s
}

// OnEvent enqueues the event without blocking. Events are dropped with a
// warning when the queue is full.
func (s *Sink) OnEvent(e core.Event) {
	if len(s.endpoints) == 0 || (len(s.types) > 0 && !s.types[e.Type]) {
		return
	}
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("webhook queue full, event dropped", "type", e.Type, "enrollment_id", e.EnrollmentID)
	}
}

// Close delivers what is already queued, then stops the worker.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *Sink) run() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case e := <-s.queue:
			s.deliverAll(ctx, e)
		case <-s.stop:
			for {
				select {
				case e := <-s.queue:
					s.deliverAll(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) deliverAll(ctx context.Context, e core.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("webhook encode failed", "type", e.Type, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		if err := s.deliver(ctx, ep, body); err != nil {
			s.logger.Warn("webhook delivery failed", "endpoint", ep, "type", e.Type, "error", err)
		}
	}
}

func (s *Sink) deliver(ctx context.Context, endpoint string, body []byte) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if len(s.secret) > 0 {
			req.Header.Set(SignatureHeader, Sign(s.secret, body))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("endpoint returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
	})
}

// Sign returns the signature sent in SignatureHeader.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
