// Package postgres persists InboxMessage rows.
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	inbox "settlementcore/internal/inbox/domain"
)

// Repository is a Postgres implementation of inbox.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Enqueue inserts a new message, silently deduplicating on MessageID.
func (r *Repository) Enqueue(ctx context.Context, msg *inbox.InboxMessage) error {
	if r == nil || r.db == nil {
		return errors.New("inbox repo: nil db")
	}
	if msg == nil {
		return errors.New("inbox repo: nil message")
	}
	if msg.ID == "" {
		msg.ID = buildMessageRowID(msg.MessageID)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO inbox_messages (
	id, message_id, document_name, process_type, sender_gln, receiver_gln, body,
	attempts, is_processed, received_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,0,false,$8)
ON CONFLICT (message_id) DO NOTHING`,
		msg.ID, msg.MessageID, msg.DocumentName, msg.ProcessType, msg.SenderGLN, msg.ReceiverGLN, []byte(msg.Body), msg.ReceivedAt)
	return err
}

// FindBatch returns up to limit unprocessed, retryable messages, oldest
// first.
func (r *Repository) FindBatch(ctx context.Context, limit int) ([]inbox.InboxMessage, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("inbox repo: nil db")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, message_id, document_name, process_type, sender_gln, receiver_gln, body, attempts, is_processed, received_at
FROM inbox_messages
WHERE is_processed = false AND attempts < 5
ORDER BY received_at ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inbox.InboxMessage
	for rows.Next() {
		var m inbox.InboxMessage
		var body []byte
		if err := rows.Scan(&m.ID, &m.MessageID, &m.DocumentName, &m.ProcessType, &m.SenderGLN, &m.ReceiverGLN, &body, &m.Attempts, &m.IsProcessed, &m.ReceivedAt); err != nil {
			return nil, err
		}
		m.Body = body
		m.ReceivedAt = m.ReceivedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkProcessed marks a message as successfully handled.
func (r *Repository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("inbox repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE inbox_messages SET is_processed = true, processed_at = $1 WHERE id = $2`, processedAt, id)
	return err
}

// MarkFailed increments attempts and stores the error, leaving the message
// unprocessed for the next cycle.
func (r *Repository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	if r == nil || r.db == nil {
		return errors.New("inbox repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE inbox_messages SET attempts = attempts + 1, last_error = $1 WHERE id = $2`, errMsg, id)
	return err
}

func buildMessageRowID(messageID string) string {
	hash := sha256.Sum256([]byte(messageID))
	return "inbox-" + hex.EncodeToString(hash[:8])
}
