// Package domain holds the InboxMessage the router worker drains: every
// inbound market document lands here before the router classifies and
// applies it.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// maxAttempts bounds how many times the worker retries a message before it
// is left for manual triage.
const maxAttempts = 5

// ErrEmptyMessageID is returned when an InboxMessage carries no message id.
var ErrEmptyMessageID = errors.New("inbox: empty message id")

// InboxMessage is one durably queued inbound document, keyed by its unique
// wire message id for idempotent dequeue: duplicates are silently
// dropped.
type InboxMessage struct {
	ID           string
	MessageID    string
	DocumentName string
	ProcessType  string
	SenderGLN    string
	ReceiverGLN  string
	Body         json.RawMessage
	Attempts     int
	IsProcessed  bool
	LastError    string
	ReceivedAt   time.Time
	ProcessedAt  time.Time
}

// Validate checks inbox message invariants.
func (m InboxMessage) Validate() error {
	if m.MessageID == "" {
		return ErrEmptyMessageID
	}
	return nil
}

// Retryable reports whether the worker should still attempt this message.
func (m InboxMessage) Retryable() bool {
	return !m.IsProcessed && m.Attempts < maxAttempts
}

// Repository manages inbox message persistence.
type Repository interface {
	// Enqueue inserts a new message, silently deduplicating on MessageID
	// and never surfacing the duplicate to the router.
	Enqueue(ctx context.Context, msg *InboxMessage) error
	// FindBatch returns up to limit unprocessed, retryable messages, oldest
	// first.
	FindBatch(ctx context.Context, limit int) ([]InboxMessage, error)
	// MarkProcessed marks a message as successfully handled.
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	// MarkFailed increments attempts and stores the error, leaving the
	// message unprocessed for the next cycle.
	MarkFailed(ctx context.Context, id string, errMsg string) error
}
