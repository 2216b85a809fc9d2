package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const vendorColumnList = `id, user_id, business_name, business_type, business_address, status, is_verified, created_at`

// VendorRepo implements ports.VendorRepository. Vendor rows are written by
// the approval workflow, never by this service.
type VendorRepo struct {
	pool Pool
}

// NewVendorRepo creates a new VendorRepo.
func NewVendorRepo(pool Pool) *VendorRepo {
	return &VendorRepo{pool: pool}
}

// GetByID fetches a vendor by UUID.
func (r *VendorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Vendor, error) {
	query := `SELECT ` + vendorColumnList + ` FROM vendors WHERE id = $1`

	v, err := scanVendor(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get vendor by id: %w", err)
	}
	return v, nil
}

// GetByUserID fetches the vendor owned by a user.
func (r *VendorRepo) GetByUserID(ctx context.Context, userID string) (*domain.Vendor, error) {
	query := `SELECT ` + vendorColumnList + ` FROM vendors WHERE user_id = $1 ORDER BY created_at LIMIT 1`

	v, err := scanVendor(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("get vendor by user: %w", err)
	}
	return v, nil
}

// Counts returns total and pending vendor counts.
func (r *VendorRepo) Counts(ctx context.Context) (*ports.VendorCounts, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'PENDING') FROM vendors`

	c := &ports.VendorCounts{}
	if err := r.pool.QueryRow(ctx, query).Scan(&c.Total, &c.Pending); err != nil {
		return nil, fmt.Errorf("count vendors: %w", err)
	}
	return c, nil
}

func scanVendor(row pgx.Row) (*domain.Vendor, error) {
	v := &domain.Vendor{}
	err := row.Scan(
		&v.ID, &v.UserID, &v.BusinessName, &v.BusinessType,
		&v.BusinessAddress, &v.Status, &v.IsVerified, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}
