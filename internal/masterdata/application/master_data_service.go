package application

import (
	"context"
	"errors"

	masterdata "settlementcore/internal/masterdata/domain"
)

// ErrMeteringPointNotFound signals a data-absence condition: the handler
// logs and skips rather than failing the message.
var ErrMeteringPointNotFound = errors.New("masterdata: metering point not found (skip)")

// MasterDataUpdate is the normalized BRS-006 payload: a partial update to a
// metering point's master data fields.
type MasterDataUpdate struct {
	GSRN  string
	Patch masterdata.MeteringPointPatch
}

// Logger is the minimal logging contract handlers depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// MasterDataService applies BRS-006 master-data updates to metering points.
type MasterDataService struct {
	repo   masterdata.MeteringPointRepository
	logger Logger
}

// NewMasterDataService constructs the service.
func NewMasterDataService(repo masterdata.MeteringPointRepository, logger Logger) (*MasterDataService, error) {
	if repo == nil {
		return nil, errors.New("masterdata service: nil repository")
	}
	return &MasterDataService{repo: repo, logger: logger}, nil
}

// HandleMasterDataUpdate applies a BRS-006 partial update. An absent
// metering point is a data-absence condition: log and skip, do not fail
// the message.
func (s *MasterDataService) HandleMasterDataUpdate(ctx context.Context, update MasterDataUpdate) error {
	gsrn, err := parseGSRN(update.GSRN)
	if err != nil {
		return err
	}

	mp, err := s.repo.Get(ctx, gsrn)
	if err != nil {
		return err
	}
	if mp == nil {
		if s.logger != nil {
			s.logger.Printf("masterdata: metering point %s not found, skipping BRS-006 update", update.GSRN)
		}
		return nil
	}

	mp.ApplyPartialUpdate(update.Patch)
	if err := mp.Validate(); err != nil {
		return err
	}
	return s.repo.Save(ctx, mp)
}
