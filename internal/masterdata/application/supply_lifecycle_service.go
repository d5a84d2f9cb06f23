package application

import (
	"context"
	"errors"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	"settlementcore/internal/period"
)

// MoveIn is the normalized BRS-009 move-in payload: a customer begins
// supply at a metering point from effectiveDate.
type MoveIn struct {
	GSRN          string
	SupplyID      string
	CustomerID    string
	EffectiveDate time.Time
}

// MoveOut is the normalized BRS-009 move-out payload: the open-ended supply
// at a metering point closes at effectiveDate.
type MoveOut struct {
	GSRN          string
	EffectiveDate time.Time
}

// SupplyChangeConfirmation is the normalized BRS-001 payload: confirmation
// that an incoming or outgoing supplier change closes the prior open-ended
// supply and opens a new one.
type SupplyChangeConfirmation struct {
	GSRN          string
	NewSupplyID   string
	NewCustomerID string
	EffectiveDate time.Time
}

// SupplyLifecycleService applies BRS-001/009 lifecycle events to supplies.
type SupplyLifecycleService struct {
	mpRepo     masterdata.MeteringPointRepository
	supplyRepo masterdata.SupplyRepository
	logger     Logger
}

// NewSupplyLifecycleService constructs the service.
func NewSupplyLifecycleService(mpRepo masterdata.MeteringPointRepository, supplyRepo masterdata.SupplyRepository, logger Logger) (*SupplyLifecycleService, error) {
	if mpRepo == nil {
		return nil, errors.New("supply lifecycle service: nil metering point repository")
	}
	if supplyRepo == nil {
		return nil, errors.New("supply lifecycle service: nil supply repository")
	}
	return &SupplyLifecycleService{mpRepo: mpRepo, supplyRepo: supplyRepo, logger: logger}, nil
}

// HandleMoveIn opens a new supply at a metering point. Data-absence (no such
// metering point) is logged and skipped, not fatal.
func (s *SupplyLifecycleService) HandleMoveIn(ctx context.Context, in MoveIn) error {
	gsrn, err := parseGSRN(in.GSRN)
	if err != nil {
		return err
	}
	mp, err := s.mpRepo.Get(ctx, gsrn)
	if err != nil {
		return err
	}
	if mp == nil {
		s.logSkip("BRS-009 move-in", in.GSRN)
		return nil
	}

	if existing, err := s.supplyRepo.OpenEnded(ctx, gsrn); err != nil {
		return err
	} else if existing != nil {
		return masterdata.ErrOverlappingOpenSupply
	}

	newSupply := &masterdata.Supply{
		ID:         in.SupplyID,
		GSRN:       gsrn,
		CustomerID: in.CustomerID,
		Period:     period.NewOpenEnded(in.EffectiveDate),
	}
	if err := newSupply.Validate(); err != nil {
		return err
	}
	if err := s.supplyRepo.Save(ctx, newSupply); err != nil {
		return err
	}

	mp.HasActiveSupply = true
	return s.mpRepo.Save(ctx, mp)
}

// HandleMoveOut closes the open-ended supply at a metering point.
func (s *SupplyLifecycleService) HandleMoveOut(ctx context.Context, out MoveOut) error {
	gsrn, err := parseGSRN(out.GSRN)
	if err != nil {
		return err
	}
	mp, err := s.mpRepo.Get(ctx, gsrn)
	if err != nil {
		return err
	}
	if mp == nil {
		s.logSkip("BRS-009 move-out", out.GSRN)
		return nil
	}

	open, err := s.supplyRepo.OpenEnded(ctx, gsrn)
	if err != nil {
		return err
	}
	if open == nil {
		s.logSkip("BRS-009 move-out (no open supply)", out.GSRN)
		return nil
	}

	closed, err := period.NewClosed(open.Period.Start, out.EffectiveDate)
	if err != nil {
		return err
	}
	open.Period = closed
	if err := s.supplyRepo.Save(ctx, open); err != nil {
		return err
	}

	mp.HasActiveSupply = false
	return s.mpRepo.Save(ctx, mp)
}

// HandleSupplyChangeConfirmation closes the current open-ended supply and
// opens a new one for the incoming supplier's customer, per BRS-001.
func (s *SupplyLifecycleService) HandleSupplyChangeConfirmation(ctx context.Context, confirm SupplyChangeConfirmation) error {
	gsrn, err := parseGSRN(confirm.GSRN)
	if err != nil {
		return err
	}
	mp, err := s.mpRepo.Get(ctx, gsrn)
	if err != nil {
		return err
	}
	if mp == nil {
		s.logSkip("BRS-001 supply change", confirm.GSRN)
		return nil
	}

	if open, err := s.supplyRepo.OpenEnded(ctx, gsrn); err != nil {
		return err
	} else if open != nil {
		closed, err := period.NewClosed(open.Period.Start, confirm.EffectiveDate)
		if err != nil {
			return err
		}
		open.Period = closed
		if err := s.supplyRepo.Save(ctx, open); err != nil {
			return err
		}
	}

	newSupply := &masterdata.Supply{
		ID:         confirm.NewSupplyID,
		GSRN:       gsrn,
		CustomerID: confirm.NewCustomerID,
		Period:     period.NewOpenEnded(confirm.EffectiveDate),
	}
	if err := newSupply.Validate(); err != nil {
		return err
	}
	if err := s.supplyRepo.Save(ctx, newSupply); err != nil {
		return err
	}

	mp.HasActiveSupply = true
	return s.mpRepo.Save(ctx, mp)
}

func (s *SupplyLifecycleService) logSkip(op, gsrn string) {
	if s.logger != nil {
		s.logger.Printf("masterdata: %s: metering point %s not found or has no open supply, skipping", op, gsrn)
	}
}
