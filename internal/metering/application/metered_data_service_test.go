package application_test

import (
	"context"
	"testing"
	"time"

	"settlementcore/internal/ids"
	application "settlementcore/internal/metering/application"
	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

type memMeteringPointRepo struct {
	points map[ids.GSRN]*masterdata.MeteringPoint
}

func newMemMeteringPointRepo() *memMeteringPointRepo {
	return &memMeteringPointRepo{points: make(map[ids.GSRN]*masterdata.MeteringPoint)}
}

func (r *memMeteringPointRepo) Get(_ context.Context, gsrn ids.GSRN) (*masterdata.MeteringPoint, error) {
	mp, ok := r.points[gsrn]
	if !ok {
		return nil, nil
	}
	cp := *mp
	return &cp, nil
}

func (r *memMeteringPointRepo) Save(_ context.Context, mp *masterdata.MeteringPoint) error {
	cp := *mp
	r.points[mp.GSRN] = &cp
	return nil
}

type memTimeSeriesRepo struct {
	byID   map[string]*metering.TimeSeries
	nextID int
}

func newMemTimeSeriesRepo() *memTimeSeriesRepo {
	return &memTimeSeriesRepo{byID: make(map[string]*metering.TimeSeries)}
}

func (r *memTimeSeriesRepo) FindLatest(_ context.Context, gsrn ids.GSRN, p period.Period) (*metering.TimeSeries, error) {
	for _, ts := range r.byID {
		if ts.GSRN == gsrn && ts.IsLatest && ts.Period.Start.Equal(p.Start) {
			cp := *ts
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTimeSeriesRepo) Get(_ context.Context, id string) (*metering.TimeSeries, error) {
	ts, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *ts
	return &cp, nil
}

func (r *memTimeSeriesRepo) CreateVersion(_ context.Context, next *metering.TimeSeries, previous *metering.TimeSeries) error {
	if previous != nil {
		if existing, ok := r.byID[previous.ID]; ok {
			existing.IsLatest = false
		}
	}
	if next.ID == "" {
		r.nextID++
		next.ID = "ts-mem-" + string(rune('0'+r.nextID))
	}
	cp := *next
	r.byID[next.ID] = &cp
	return nil
}

func (r *memTimeSeriesRepo) FindSettleable(_ context.Context, limit int) ([]metering.TimeSeries, error) {
	var out []metering.TimeSeries
	for _, ts := range r.byID {
		if ts.IsLatest {
			out = append(out, *ts)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func mustGSRN(t *testing.T, v string) ids.GSRN {
	t.Helper()
	g, err := ids.NewGSRN(v)
	if err != nil {
		t.Fatalf("gsrn: %v", err)
	}
	return g
}

func TestHandleMeteredData_SkipsUnknownMeteringPoint(t *testing.T) {
	mpRepo := newMemMeteringPointRepo()
	tsRepo := newMemTimeSeriesRepo()
	svc, err := application.NewMeteredDataService(mpRepo, tsRepo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.HandleMeteredData(context.Background(), application.MeteredDataUpdate{
		GSRN:   "571234567890123456",
		Period: period.Period{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("expected skip (nil error), got %v", err)
	}
	if len(tsRepo.byID) != 0 {
		t.Fatalf("expected no time series persisted")
	}
}

func TestHandleMeteredData_CreatesVersionOne(t *testing.T) {
	mpRepo := newMemMeteringPointRepo()
	tsRepo := newMemTimeSeriesRepo()
	gsrn := mustGSRN(t, "571234567890123456")
	mpRepo.points[gsrn] = &masterdata.MeteringPoint{GSRN: gsrn, GridAreaCode: "DK1", GridCompanyGLN: "5790000000001"}

	svc, err := application.NewMeteredDataService(mpRepo, tsRepo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	err = svc.HandleMeteredData(context.Background(), application.MeteredDataUpdate{
		GSRN:          string(gsrn),
		Period:        period.Period{Start: start, End: end},
		Resolution:    masterdata.ResolutionHour,
		TransactionID: "txn-1",
		ReceivedAt:    start,
		Observations: []metering.Observation{
			{Timestamp: start, Quantity: money.NewQuantityFromFloat(1.5), Quality: metering.QualityMeasured},
		},
	})
	if err != nil {
		t.Fatalf("handle metered data: %v", err)
	}
	if len(tsRepo.byID) != 1 {
		t.Fatalf("expected exactly one time series row, got %d", len(tsRepo.byID))
	}
	for _, ts := range tsRepo.byID {
		if ts.Version != 1 || !ts.IsLatest {
			t.Fatalf("expected version 1, is_latest=true, got %+v", ts)
		}
	}
}

func TestHandleMeteredData_BumpsVersionAndFlipsPrevious(t *testing.T) {
	mpRepo := newMemMeteringPointRepo()
	tsRepo := newMemTimeSeriesRepo()
	gsrn := mustGSRN(t, "571234567890123456")
	mpRepo.points[gsrn] = &masterdata.MeteringPoint{GSRN: gsrn, GridAreaCode: "DK1", GridCompanyGLN: "5790000000001"}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	tsRepo.byID["ts-existing"] = &metering.TimeSeries{
		ID: "ts-existing", GSRN: gsrn, Period: period.Period{Start: start, End: end},
		Resolution: masterdata.ResolutionHour, Version: 1, IsLatest: true,
	}

	svc, err := application.NewMeteredDataService(mpRepo, tsRepo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.HandleMeteredData(context.Background(), application.MeteredDataUpdate{
		GSRN:          string(gsrn),
		Period:        period.Period{Start: start, End: end},
		Resolution:    masterdata.ResolutionHour,
		TransactionID: "txn-2",
		ReceivedAt:    start.Add(time.Hour),
		Observations: []metering.Observation{
			{Timestamp: start, Quantity: money.NewQuantityFromFloat(2.0), Quality: metering.QualityRevised},
		},
	})
	if err != nil {
		t.Fatalf("handle metered data: %v", err)
	}

	if tsRepo.byID["ts-existing"].IsLatest {
		t.Fatalf("expected previous version's is_latest flipped to false")
	}

	found := false
	for id, ts := range tsRepo.byID {
		if id == "ts-existing" {
			continue
		}
		if ts.Version != 2 || !ts.IsLatest {
			t.Fatalf("expected new version 2, is_latest=true, got %+v", ts)
		}
		found = true
	}
	if !found {
		t.Fatalf("expected a new version-2 row to be created")
	}
}
