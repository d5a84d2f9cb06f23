package application_test

import (
	"context"
	"testing"
	"time"

	"settlementcore/internal/ids"
	application "settlementcore/internal/masterdata/application"
	masterdata "settlementcore/internal/masterdata/domain"
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

type memSupplyRepo struct {
	byID map[string]*masterdata.Supply
}

func newMemSupplyRepo() *memSupplyRepo {
	return &memSupplyRepo{byID: make(map[string]*masterdata.Supply)}
}

func (r *memSupplyRepo) ActiveAt(_ context.Context, gsrn ids.GSRN, t time.Time) (*masterdata.Supply, error) {
	for _, s := range r.byID {
		if s.GSRN == gsrn && s.Period.Contains(t) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSupplyRepo) OpenEnded(_ context.Context, gsrn ids.GSRN) (*masterdata.Supply, error) {
	for _, s := range r.byID {
		if s.GSRN == gsrn && s.Period.OpenEnded {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSupplyRepo) Save(_ context.Context, s *masterdata.Supply) error {
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func mustGSRN(t *testing.T, v string) ids.GSRN {
	t.Helper()
	g, err := ids.NewGSRN(v)
	if err != nil {
		t.Fatalf("gsrn: %v", err)
	}
	return g
}

func TestHandleMasterDataUpdate_SkipsUnknownMeteringPoint(t *testing.T) {
	repo := newMemMeteringPointRepo()
	svc, err := application.NewMasterDataService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.HandleMasterDataUpdate(context.Background(), application.MasterDataUpdate{GSRN: "571234567890123456"})
	if err != nil {
		t.Fatalf("expected skip (nil error), got %v", err)
	}
}

func TestHandleMasterDataUpdate_PartialUpdateAppliesOnlyPresentFields(t *testing.T) {
	repo := newMemMeteringPointRepo()
	gsrn := mustGSRN(t, "571234567890123456")
	repo.points[gsrn] = &masterdata.MeteringPoint{
		GSRN:            gsrn,
		Type:            masterdata.MeteringPointConsumption,
		GridAreaCode:    "DK1",
		GridCompanyGLN:  "5790000000001",
		ConnectionState: masterdata.ConnectionStateConnected,
	}
	svc, err := application.NewMasterDataService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	newArea := "DK2"
	err = svc.HandleMasterDataUpdate(context.Background(), application.MasterDataUpdate{
		GSRN: string(gsrn),
		Patch: masterdata.MeteringPointPatch{
			GridAreaCode: &newArea,
		},
	})
	if err != nil {
		t.Fatalf("handle update: %v", err)
	}

	got := repo.points[gsrn]
	if got.GridAreaCode != "DK2" {
		t.Fatalf("grid area not updated: got %s", got.GridAreaCode)
	}
	if got.ConnectionState != masterdata.ConnectionStateConnected {
		t.Fatalf("connection state should be untouched, got %s", got.ConnectionState)
	}
}

func TestHandleMoveIn_OpensNewSupply(t *testing.T) {
	mpRepo := newMemMeteringPointRepo()
	supplyRepo := newMemSupplyRepo()
	gsrn := mustGSRN(t, "571234567890123456")
	mpRepo.points[gsrn] = &masterdata.MeteringPoint{GSRN: gsrn, GridAreaCode: "DK1", GridCompanyGLN: "5790000000001"}

	svc, err := application.NewSupplyLifecycleService(mpRepo, supplyRepo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err = svc.HandleMoveIn(context.Background(), application.MoveIn{
		GSRN:          string(gsrn),
		SupplyID:      "supply-1",
		CustomerID:    "cust-1",
		EffectiveDate: start,
	})
	if err != nil {
		t.Fatalf("handle move-in: %v", err)
	}

	supply := supplyRepo.byID["supply-1"]
	if supply == nil || !supply.Period.OpenEnded {
		t.Fatalf("expected open-ended supply, got %+v", supply)
	}
	if !mpRepo.points[gsrn].HasActiveSupply {
		t.Fatalf("expected metering point to be flagged as having active supply")
	}
}

func TestHandleMoveIn_RejectsSecondOpenEndedSupply(t *testing.T) {
	mpRepo := newMemMeteringPointRepo()
	supplyRepo := newMemSupplyRepo()
	gsrn := mustGSRN(t, "571234567890123456")
	mpRepo.points[gsrn] = &masterdata.MeteringPoint{GSRN: gsrn, GridAreaCode: "DK1", GridCompanyGLN: "5790000000001"}
	supplyRepo.byID["existing"] = &masterdata.Supply{
		ID: "existing", GSRN: gsrn, CustomerID: "cust-0",
		Period: period.NewOpenEnded(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	svc, err := application.NewSupplyLifecycleService(mpRepo, supplyRepo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.HandleMoveIn(context.Background(), application.MoveIn{
		GSRN: string(gsrn), SupplyID: "supply-2", CustomerID: "cust-1",
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != masterdata.ErrOverlappingOpenSupply {
		t.Fatalf("expected ErrOverlappingOpenSupply, got %v", err)
	}
}
