package settlement

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
)

// IssueStatus enumerates a SettlementIssue's lifecycle.
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
	// IssueStatusDismissed is set by manual triage only; the worker never
	// dismisses an issue itself.
	IssueStatusDismissed IssueStatus = "dismissed"
)

// IssueKind enumerates why a settlement candidate was blocked. Persisted as
// short strings.
type IssueKind string

const (
	// IssueKindMissingPriceElements means a required price category, spot
	// price set or supplier margin does not exist at all.
	IssueKindMissingPriceElements IssueKind = "missing_price_elements"
	// IssueKindPriceCoverageGap means a required price exists but its points
	// do not span the settlement period at the declared resolution.
	IssueKindPriceCoverageGap IssueKind = "price_coverage_gap"
)

// SettlementIssue records why a settlement candidate was blocked by the
// validator. Deduplicated by (metering_point, time_series,
// version) with status Open.
type SettlementIssue struct {
	ID           string
	GSRN         ids.GSRN
	TimeSeriesID string
	Version      int
	Kind         IssueKind
	Messages     []string
	Status       IssueStatus
	CreatedAt    time.Time
	ResolvedAt   time.Time
}

// Validate checks issue invariants.
func (i SettlementIssue) Validate() error {
	if i.GSRN == "" {
		return ErrEmptyGSRN
	}
	if i.TimeSeriesID == "" {
		return ErrEmptyTimeSeriesID
	}
	if i.Kind == "" {
		return errors.New("settlement issue: empty kind")
	}
	if len(i.Messages) == 0 {
		return errors.New("settlement issue: no messages")
	}
	return nil
}

// SettlementIssueRepository manages issue persistence.
type SettlementIssueRepository interface {
	// FindOpen returns the open issue for (gsrn, time series id, version), if
	// any.
	FindOpen(ctx context.Context, gsrn ids.GSRN, timeSeriesID string, version int) (*SettlementIssue, error)
	// Upsert creates or updates an Open issue for the same dedup key.
	Upsert(ctx context.Context, issue *SettlementIssue) error
	// ResolveOpen marks any Open issue for (gsrn, time series id) as
	// Resolved, regardless of version, once a later candidate for the same
	// metering point and time series clears validation.
	ResolveOpen(ctx context.Context, gsrn ids.GSRN, timeSeriesID string, resolvedAt time.Time) error
}
