package application

import (
	"context"
	"errors"
	"time"

	pricing "settlementcore/internal/pricing/domain"
)

// SpotIngester periodically pulls day-ahead wholesale prices for a set of
// price areas and persists them. Matches the cycle shape of the other
// background workers: wake, do bounded work, sleep, observe shutdown.
type SpotIngester struct {
	source     pricing.SpotPriceSource
	repo       pricing.SpotPriceRepository
	priceAreas []string
	interval   time.Duration
	logger     Logger
}

// NewSpotIngester constructs a spot-price ingester.
func NewSpotIngester(source pricing.SpotPriceSource, repo pricing.SpotPriceRepository, priceAreas []string, interval time.Duration, logger Logger) (*SpotIngester, error) {
	if source == nil {
		return nil, errors.New("spot ingester: nil source")
	}
	if repo == nil {
		return nil, errors.New("spot ingester: nil repository")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &SpotIngester{source: source, repo: repo, priceAreas: priceAreas, interval: interval, logger: logger}, nil
}

// RunCycle fetches and persists the day-ahead prices for day for every
// configured price area (Start passes tomorrow's date). Transient failures (HTTP errors) are logged and
// skipped per area; the ingester continues with the next area and retries
// on the next cycle.
func (i *SpotIngester) RunCycle(ctx context.Context, day time.Time) {
	for _, area := range i.priceAreas {
		prices, err := i.source.FetchDayAhead(ctx, area, day)
		if err != nil {
			if i.logger != nil {
				i.logger.Printf("spot ingester: fetch %s %s: %v", area, day.Format("2006-01-02"), err)
			}
			continue
		}
		if len(prices) == 0 {
			continue
		}
		if err := i.repo.Save(ctx, prices); err != nil && i.logger != nil {
			i.logger.Printf("spot ingester: save %s %s: %v", area, day.Format("2006-01-02"), err)
		}
	}
}

// Start runs the ingester loop until ctx is cancelled, observing shutdown
// between cycles.
func (i *SpotIngester) Start(ctx context.Context) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			// Day-ahead prices for the next day are typically published in
			// the afternoon; fetch tomorrow's prices each cycle.
			tomorrow := tick.UTC().AddDate(0, 0, 1)
			i.RunCycle(ctx, time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
}
