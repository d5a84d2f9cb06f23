// Package postgres persists OutboxMessage rows, mirroring the inbox
// repository's insert/find-batch/mark shape.
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	outbox "settlementcore/internal/outbox/domain"
)

// Repository is a Postgres implementation of outbox.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new outbox message.
func (r *Repository) Insert(ctx context.Context, msg *outbox.OutboxMessage) error {
	if r == nil || r.db == nil {
		return errors.New("outbox repo: nil db")
	}
	if msg == nil {
		return errors.New("outbox repo: nil message")
	}
	if msg.ID == "" {
		msg.ID = buildOutboxRowID(msg.EventType, msg.Payload)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = outbox.StatusPending
	}
	var scheduledFor any
	if !msg.ScheduledFor.IsZero() {
		scheduledFor = msg.ScheduledFor
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO outbox_messages (
	id, event_type, sender_gln, receiver_gln, payload, status, attempts, scheduled_for, created_at
) VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8)
ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.EventType, msg.SenderGLN, msg.ReceiverGLN, msg.Payload, msg.Status, scheduledFor, msg.CreatedAt)
	return err
}

// FindDispatchable returns up to limit pending messages eligible for a
// dispatch attempt: status pending, attempts < maxRetries, and
// (scheduled_for is null or <= now). The exponential backoff gate itself is
// re-checked by the worker since it depends on attempts in a way a single
// predicate would duplicate.
func (r *Repository) FindDispatchable(ctx context.Context, limit int, maxRetries int, now time.Time) ([]outbox.OutboxMessage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("outbox repo: nil db")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, event_type, sender_gln, receiver_gln, payload, status, attempts, last_attempt_at, scheduled_for, last_error, response, created_at
FROM outbox_messages
WHERE status = 'pending' AND attempts < $1 AND (scheduled_for IS NULL OR scheduled_for <= $2)
ORDER BY created_at ASC
LIMIT $3`, maxRetries, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.OutboxMessage
	for rows.Next() {
		var m outbox.OutboxMessage
		var lastAttempt, scheduledFor sql.NullTime
		var lastError, response sql.NullString
		if err := rows.Scan(&m.ID, &m.EventType, &m.SenderGLN, &m.ReceiverGLN, &m.Payload, &m.Status, &m.Attempts, &lastAttempt, &scheduledFor, &lastError, &response, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.LastError = lastError.String
		if lastAttempt.Valid {
			m.LastAttemptAt = lastAttempt.Time.UTC()
		}
		if scheduledFor.Valid {
			m.ScheduledFor = scheduledFor.Time.UTC()
		}
		m.Response = response.String
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id string, response string, sentAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("outbox repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE outbox_messages SET status = 'sent', response = $1, last_attempt_at = $2 WHERE id = $3`,
		response, sentAt, id)
	return err
}

// MarkFailed dead-letters a message: no further retry.
func (r *Repository) MarkFailed(ctx context.Context, id string, response string) error {
	if r == nil || r.db == nil {
		return errors.New("outbox repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE outbox_messages SET status = 'failed', response = $1 WHERE id = $2`, response, id)
	return err
}

// MarkTransientFailure increments attempts, records the attempt time and the
// error, leaving the message eligible for a later cycle.
func (r *Repository) MarkTransientFailure(ctx context.Context, id string, errMsg string, attemptedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("outbox repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE outbox_messages SET attempts = attempts + 1, last_attempt_at = $1, last_error = $2 WHERE id = $3`, attemptedAt, errMsg, id)
	return err
}

func buildOutboxRowID(eventType string, payload []byte) string {
	hash := sha256.New()
	hash.Write([]byte(eventType))
	hash.Write(payload)
	sum := hash.Sum(nil)
	return "outbox-" + hex.EncodeToString(sum[:8])
}
