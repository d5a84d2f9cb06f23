// Package application runs the inbox router worker: the periodic job that
// drains InboxMessage rows through the router.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	inbox "settlementcore/internal/inbox/domain"
	"settlementcore/internal/observability/metrics"
	"settlementcore/internal/router"
)

// defaultInterval and defaultBatchSize set the inbox router's cadence:
// 10s interval, batch of 10.
const (
	defaultInterval  = 10 * time.Second
	defaultBatchSize = 10
)

// Logger is the minimal logging contract the worker depends on.
type Logger interface {
	Printf(format string, args ...any)
}

// Router is the subset of router.Router the worker depends on.
type Router interface {
	Route(ctx context.Context, documentName, processType string, body router.Payload) error
}

// Worker periodically drains inbox messages, dispatching each through the
// router and recording success or failure.
type Worker struct {
	repo      inbox.Repository
	router    Router
	interval  time.Duration
	batchSize int
	logger    Logger
}

// NewWorker constructs the inbox worker.
func NewWorker(repo inbox.Repository, r Router, interval time.Duration, batchSize int, logger Logger) (*Worker, error) {
	if repo == nil {
		return nil, errors.New("inbox worker: nil repository")
	}
	if r == nil {
		return nil, errors.New("inbox worker: nil router")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Worker{repo: repo, router: r, interval: interval, batchSize: batchSize, logger: logger}, nil
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

// RunCycle processes one batch of retryable inbox messages. An error
// routing a message increments its attempts and records the
// error rather than failing the whole batch; success marks it processed.
func (w *Worker) RunCycle(ctx context.Context) {
	messages, err := w.repo.FindBatch(ctx, w.batchSize)
	if err != nil {
		w.logf("inbox worker: find batch: %v", err)
		return
	}

	for _, msg := range messages {
		var payload router.Payload
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			w.markFailed(ctx, msg, err)
			continue
		}

		if err := w.router.Route(ctx, msg.DocumentName, msg.ProcessType, payload); err != nil {
			w.markFailed(ctx, msg, err)
			continue
		}

		if err := w.repo.MarkProcessed(ctx, msg.ID, time.Now().UTC()); err != nil {
			w.logf("inbox worker: mark processed %s: %v", msg.ID, err)
		}
		metrics.IncInboxProcessed(metrics.ResultSuccess)
	}
}

func (w *Worker) markFailed(ctx context.Context, msg inbox.InboxMessage, cause error) {
	if err := w.repo.MarkFailed(ctx, msg.ID, cause.Error()); err != nil {
		w.logf("inbox worker: mark failed %s: %v", msg.ID, err)
	}
	metrics.IncInboxProcessed(metrics.ResultError)
	metrics.IncInboxRetryAttempt()
	if msg.Attempts+1 >= 5 {
		metrics.IncInboxDeadLettered()
	}
}

func (w *Worker) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
