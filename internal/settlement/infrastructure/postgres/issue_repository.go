package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"settlementcore/internal/ids"
	settlement "settlementcore/internal/settlement/domain"
)

// messageSeparator joins SettlementIssue.Messages into a single text column,
// following the same string-join convention the reconciliation tooling uses
// for its semantic lists.
const messageSeparator = "|"

// SettlementIssueRepository is a Postgres implementation of
// settlement.SettlementIssueRepository.
type SettlementIssueRepository struct {
	db *sql.DB
}

// NewSettlementIssueRepository constructs a repository.
func NewSettlementIssueRepository(db *sql.DB) *SettlementIssueRepository {
	return &SettlementIssueRepository{db: db}
}

// FindOpen returns the open issue for (gsrn, time series id, version), if any.
func (r *SettlementIssueRepository) FindOpen(ctx context.Context, gsrn ids.GSRN, timeSeriesID string, version int) (*settlement.SettlementIssue, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement issue repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, time_series_id, version, kind, messages, status, created_at, resolved_at
FROM settlement_issues
WHERE gsrn = $1 AND time_series_id = $2 AND version = $3 AND status = 'open'
LIMIT 1`, string(gsrn), timeSeriesID, version)

	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Upsert creates or updates the Open issue for the same dedup key
// (gsrn, time_series_id, version): if an open issue already exists it is
// replaced with the fresh message list, otherwise a new row is inserted.
func (r *SettlementIssueRepository) Upsert(ctx context.Context, issue *settlement.SettlementIssue) error {
	if r == nil || r.db == nil {
		return errors.New("settlement issue repo: nil db")
	}
	if issue == nil {
		return errors.New("settlement issue repo: nil issue")
	}

	existing, err := r.FindOpen(ctx, issue.GSRN, issue.TimeSeriesID, issue.Version)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing != nil {
		issue.ID = existing.ID
		issue.CreatedAt = existing.CreatedAt
		_, err := r.db.ExecContext(ctx, `
UPDATE settlement_issues SET kind = $1, messages = $2, status = 'open'
WHERE id = $3`, string(issue.Kind), strings.Join(issue.Messages, messageSeparator), issue.ID)
		return err
	}

	if issue.ID == "" {
		issue.ID = buildIssueID(string(issue.GSRN), issue.TimeSeriesID, issue.Version)
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.Status = settlement.IssueStatusOpen

	_, err = r.db.ExecContext(ctx, `
INSERT INTO settlement_issues (id, gsrn, time_series_id, version, kind, messages, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, messages = EXCLUDED.messages, status = 'open'`,
		issue.ID, string(issue.GSRN), issue.TimeSeriesID, issue.Version,
		string(issue.Kind), strings.Join(issue.Messages, messageSeparator), string(issue.Status), issue.CreatedAt)
	return err
}

// ResolveOpen marks any Open issue for (gsrn, time_series_id) as Resolved,
// regardless of version.
func (r *SettlementIssueRepository) ResolveOpen(ctx context.Context, gsrn ids.GSRN, timeSeriesID string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("settlement issue repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE settlement_issues SET status = 'resolved', resolved_at = $1
WHERE gsrn = $2 AND time_series_id = $3 AND status = 'open'`,
		resolvedAt, string(gsrn), timeSeriesID)
	return err
}

func scanIssue(row rowScanner) (*settlement.SettlementIssue, error) {
	var issue settlement.SettlementIssue
	var gsrn, kind, status, messages string
	var resolvedAt sql.NullTime
	if err := row.Scan(&issue.ID, &gsrn, &issue.TimeSeriesID, &issue.Version, &kind, &messages, &status, &issue.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	issue.GSRN = ids.GSRN(gsrn)
	issue.Kind = settlement.IssueKind(kind)
	issue.Status = settlement.IssueStatus(status)
	if messages != "" {
		issue.Messages = strings.Split(messages, messageSeparator)
	}
	if resolvedAt.Valid {
		issue.ResolvedAt = resolvedAt.Time.UTC()
	}
	issue.CreatedAt = issue.CreatedAt.UTC()
	return &issue, nil
}

func buildIssueID(gsrn, timeSeriesID string, version int) string {
	base := gsrn + "|" + timeSeriesID + "|" + strconv.Itoa(version)
	hash := sha256.Sum256([]byte(base))
	return "issue-" + hex.EncodeToString(hash[:8])
}
