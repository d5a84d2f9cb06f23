// Package application runs the outbox dispatch worker: the periodic job
// that attempts delivery of pending OutboxMessage rows through an opaque
// transport, honoring an exponential backoff gate.
package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/observability/metrics"
	outbox "settlementcore/internal/outbox/domain"
)

// defaultInterval, defaultBatchSize, defaultMaxRetries, defaultBaseDelay and
// maxBackoff set the dispatcher's cadence and backoff schedule.
const (
	defaultInterval   = 10 * time.Second
	defaultBatchSize  = 20
	defaultMaxRetries = 8
	defaultBaseDelay  = 30 * time.Second
	maxBackoff        = 30 * time.Minute
)

// Outcome is the closed set of results a transport attempt can produce.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	TransientFailure
)

// Transport delivers one outbox message and reports the outcome. response is
// an opaque string recorded alongside the outcome (e.g. a downstream
// acknowledgement id or error detail).
type Transport interface {
	Send(ctx context.Context, msg outbox.OutboxMessage) (outcome Outcome, response string, err error)
}

// Logger is the minimal logging contract the worker depends on.
type Logger interface {
	Printf(format string, args ...any)
}

// Worker periodically attempts delivery of dispatchable outbox messages.
type Worker struct {
	repo       outbox.Repository
	transport  Transport
	interval   time.Duration
	batchSize  int
	maxRetries int
	baseDelay  time.Duration
	logger     Logger
}

// NewWorker constructs the outbox dispatch worker.
func NewWorker(repo outbox.Repository, transport Transport, interval time.Duration, batchSize, maxRetries int, baseDelay time.Duration, logger Logger) (*Worker, error) {
	if repo == nil {
		return nil, errors.New("outbox worker: nil repository")
	}
	if transport == nil {
		return nil, errors.New("outbox worker: nil transport")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Worker{
		repo:       repo,
		transport:  transport,
		interval:   interval,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}, nil
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle attempts delivery for one batch of dispatchable messages,
// applying the backoff gate per message before it counts as dispatchable
// for real (the repository's own scheduled_for filter handles the coarse
// cut; this re-checks the exact gate using attempts/last_attempt since the
// gate's base depends on the message's own attempt count).
func (w *Worker) RunCycle(ctx context.Context) {
	now := time.Now().UTC()
	messages, err := w.repo.FindDispatchable(ctx, w.batchSize, w.maxRetries, now)
	if err != nil {
		w.logf("outbox worker: find dispatchable: %v", err)
		return
	}

	for _, msg := range messages {
		if !backoffElapsed(msg, w.baseDelay, now) {
			continue
		}
		w.dispatchOne(ctx, msg, now)
	}
}

func (w *Worker) dispatchOne(ctx context.Context, msg outbox.OutboxMessage, attemptedAt time.Time) {
	outcome, response, err := w.transport.Send(ctx, msg)
	if err != nil {
		outcome = TransientFailure
		response = err.Error()
	}

	switch outcome {
	case Accepted:
		if err := w.repo.MarkSent(ctx, msg.ID, response, attemptedAt); err != nil {
			w.logf("outbox worker: mark sent %s: %v", msg.ID, err)
		}
		metrics.IncOutboxDispatched("accepted")
	case Rejected:
		if err := w.repo.MarkFailed(ctx, msg.ID, response); err != nil {
			w.logf("outbox worker: mark failed %s: %v", msg.ID, err)
		}
		metrics.IncOutboxDispatched("rejected")
	default: // TransientFailure
		if err := w.repo.MarkTransientFailure(ctx, msg.ID, response, attemptedAt); err != nil {
			w.logf("outbox worker: mark transient failure %s: %v", msg.ID, err)
		}
		metrics.IncOutboxDispatched("transient_failure")
	}
}

// backoffElapsed is the retry gate: now >= last_attempt +
// base_delay*2^(attempts-1), capped at 30 minutes. A message with no prior
// attempt is always eligible.
func backoffElapsed(msg outbox.OutboxMessage, baseDelay time.Duration, now time.Time) bool {
	if msg.Attempts <= 0 || msg.LastAttemptAt.IsZero() {
		return true
	}
	delay := baseDelay
	for i := 0; i < msg.Attempts-1; i++ {
		delay *= 2
		if delay >= maxBackoff {
			delay = maxBackoff
			break
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return !now.Before(msg.LastAttemptAt.Add(delay))
}

func (w *Worker) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
