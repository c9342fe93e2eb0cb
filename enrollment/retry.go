package enrollment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"campkit/core"
)

type proofJob struct {
	enrollmentID string
	file         File
}

// ProofRetrier re-attempts payment-proof uploads that failed after commit,
// with exponential backoff.
type ProofRetrier struct {
	repo       Repository
	blobs      BlobStore
	events     Publisher
	logger     *slog.Logger
	base       time.Duration
	maxDelay   time.Duration
	maxRetries uint64
	timeout    time.Duration

	queue chan proofJob
	wg    sync.WaitGroup
	stop  chan struct{}
	once  sync.Once
}

// RetrierConfig tunes a ProofRetrier. Zero values take defaults.
type RetrierConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries uint64
	QueueSize  int
	Workers    int
	Timeout    time.Duration
}

func NewProofRetrier(repo Repository, blobs BlobStore, events Publisher, logger *slog.Logger, cfg RetrierConfig) *ProofRetrier {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeouts.Upload
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &ProofRetrier{
		repo:       repo,
		blobs:      blobs,
		events:     events,
		logger:     logger,
		base:       cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		queue:      make(chan proofJob, cfg.QueueSize),
		stop:       make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Enqueue schedules a retry. It returns false when the queue is full or the
// retrier is stopped.
func (r *ProofRetrier) Enqueue(enrollmentID string, file File) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.queue <- proofJob{enrollmentID: enrollmentID, file: file}:
		return true
	default:
		return false
	}
}

// Close stops the workers. Jobs still waiting are abandoned and logged.
func (r *ProofRetrier) Close() {
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()
		for {
			select {
			case j := <-r.queue:
				r.logger.Warn("proof retry abandoned on shutdown", "enrollment_id", j.enrollmentID)
			default:
				return
			}
		}
	})
}

func (r *ProofRetrier) run() {
	defer r.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stop
		cancel()
	}()
	for {
		select {
		case <-r.stop:
			return
		case j := <-r.queue:
			r.attempt(ctx, j)
		}
	}
}

func (r *ProofRetrier) attempt(ctx context.Context, j proofJob) {
	b := retry.NewExponential(r.base)
	b = retry.WithCappedDuration(r.maxDelay, b)
	b = retry.WithMaxRetries(r.maxRetries, b)

	var url string
	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		u, err := uploadAndAttach(ctx, r.repo, r.blobs, r.timeout, j.enrollmentID, j.file)
		if err != nil {
			r.logger.Debug("proof retry attempt failed", "enrollment_id", j.enrollmentID, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		url = u
		return nil
	})
	if err != nil {
		r.logger.Warn("proof retry gave up", "enrollment_id", j.enrollmentID, "attempts", attempts, "error", err)
		return
	}
	r.logger.Info("payment proof uploaded on retry", "enrollment_id", j.enrollmentID, "attempts", attempts)
	if r.events == nil {
		return
	}
	e, err := r.repo.Get(ctx, j.enrollmentID)
	if err != nil {
		e = Enrollment{ID: j.enrollmentID, PaymentProofURL: url}
	}
	r.events.Publish(ctx, enrollmentEvent(core.EventProofUploaded, e))
}
