package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	"settlementcore/internal/money"
)

// CustomerRepository is a Postgres implementation of masterdata.CustomerRepository.
type CustomerRepository struct {
	db *sql.DB
}

// NewCustomerRepository constructs a repository.
func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Get loads a customer by id.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*masterdata.Customer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("customer repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, supplier_identity_id, created_at, updated_at
FROM customers
WHERE id = $1
LIMIT 1`, id)
	var c masterdata.Customer
	if err := row.Scan(&c.ID, &c.SupplierIdentityID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// Save upserts a customer.
func (r *CustomerRepository) Save(ctx context.Context, c *masterdata.Customer) error {
	if r == nil || r.db == nil {
		return errors.New("customer repo: nil db")
	}
	if c == nil {
		return errors.New("customer repo: nil customer")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO customers (id, supplier_identity_id)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET supplier_identity_id = EXCLUDED.supplier_identity_id, updated_at = NOW()`,
		c.ID, c.SupplierIdentityID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

// SupplierProductRepository is a Postgres implementation of
// masterdata.SupplierProductRepository.
type SupplierProductRepository struct {
	db *sql.DB
}

// NewSupplierProductRepository constructs a repository.
func NewSupplierProductRepository(db *sql.DB) *SupplierProductRepository {
	return &SupplierProductRepository{db: db}
}

// Get loads a supplier product by id.
func (r *SupplierProductRepository) Get(ctx context.Context, id string) (*masterdata.SupplierProduct, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supplier product repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, pricing_model FROM supplier_products WHERE id = $1 LIMIT 1`, id)
	var p masterdata.SupplierProduct
	if err := row.Scan(&p.ID, &p.Name, &p.PricingModel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SupplyProductPeriodRepository is a Postgres implementation of
// masterdata.SupplyProductPeriodRepository.
type SupplyProductPeriodRepository struct {
	db *sql.DB
}

// NewSupplyProductPeriodRepository constructs a repository.
func NewSupplyProductPeriodRepository(db *sql.DB) *SupplyProductPeriodRepository {
	return &SupplyProductPeriodRepository{db: db}
}

// ActiveAt returns the product period active for supplyID at instant t.
func (r *SupplyProductPeriodRepository) ActiveAt(ctx context.Context, supplyID string, t time.Time) (*masterdata.SupplyProductPeriod, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply product period repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, supply_id, product_id, period_start, period_end, open_ended
FROM supply_product_periods
WHERE supply_id = $1 AND period_start <= $2 AND (open_ended OR period_end > $2)
LIMIT 1`, supplyID, t)

	var pp masterdata.SupplyProductPeriod
	var periodEnd sql.NullTime
	var openEnded bool
	if err := row.Scan(&pp.ID, &pp.SupplyID, &pp.ProductID, &pp.Period.Start, &periodEnd, &openEnded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	pp.Period.OpenEnded = openEnded
	if !openEnded && periodEnd.Valid {
		pp.Period.End = periodEnd.Time.UTC()
	}
	return &pp, nil
}

// SupplierMarginRepository is a Postgres implementation of
// masterdata.SupplierMarginRepository: the stepwise (product, valid_from)
// margin function.
type SupplierMarginRepository struct {
	db *sql.DB
}

// NewSupplierMarginRepository constructs a repository.
func NewSupplierMarginRepository(db *sql.DB) *SupplierMarginRepository {
	return &SupplierMarginRepository{db: db}
}

// RateAt returns the margin rate in effect for productID at instant t: the
// row with the greatest valid_from <= t.
func (r *SupplierMarginRepository) RateAt(ctx context.Context, productID string, t time.Time) (money.UnitPrice, bool, error) {
	if r == nil || r.db == nil {
		return money.ZeroUnitPrice, false, errors.New("supplier margin repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT rate_per_kwh
FROM supplier_margins
WHERE product_id = $1 AND valid_from <= $2
ORDER BY valid_from DESC
LIMIT 1`, productID, t)

	var rateFloat float64
	if err := row.Scan(&rateFloat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return money.ZeroUnitPrice, false, nil
		}
		return money.ZeroUnitPrice, false, err
	}
	return money.NewUnitPriceFromFloat(rateFloat), true, nil
}
