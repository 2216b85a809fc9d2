package memory

import (
	"context"
	"sort"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RateRepo implements ports.RateRepository on a Store.
type RateRepo struct {
	s *Store
}

func NewRateRepo(s *Store) *RateRepo { return &RateRepo{s: s} }

func (r *RateRepo) Get(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rate, ok := r.s.rates[rateKey(from, to)]
	if !ok {
		return nil, nil
	}
	return &rate, nil
}

func (r *RateRepo) List(ctx context.Context) ([]domain.ExchangeRate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.ExchangeRate, 0, len(r.s.rates))
	for _, rate := range r.s.rates {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromCurrency != out[j].FromCurrency {
			return out[i].FromCurrency < out[j].FromCurrency
		}
		return out[i].ToCurrency < out[j].ToCurrency
	})
	return out, nil
}

func (r *RateRepo) Upsert(ctx context.Context, tx pgx.Tx, rate *domain.ExchangeRate) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	mt.rates = append(mt.rates, *rate)
	return nil
}

// VendorRepo implements ports.VendorRepository on a Store.
type VendorRepo struct {
	s *Store
}

func NewVendorRepo(s *Store) *VendorRepo { return &VendorRepo{s: s} }

func (r *VendorRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Vendor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.vendors[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// GetByUserID returns the user's oldest vendor.
func (r *VendorRepo) GetByUserID(ctx context.Context, userID string) (*domain.Vendor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *domain.Vendor
	for _, v := range r.s.vendors {
		if v.UserID != userID {
			continue
		}
		if found == nil || v.CreatedAt.Before(found.CreatedAt) {
			found = &v
		}
	}
	return found, nil
}

func (r *VendorRepo) Counts(ctx context.Context) (*ports.VendorCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c := &ports.VendorCounts{}
	for _, v := range r.s.vendors {
		c.Total++
		if v.Status == domain.VendorStatusPending {
			c.Pending++
		}
	}
	return c, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository on a Store.
type IdempotencyRepo struct {
	s *Store
}

func NewIdempotencyRepo(s *Store) *IdempotencyRepo { return &IdempotencyRepo{s: s} }

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := mt.claim(ctx, "idem:"+log.Key); err != nil {
		return err
	}
	r.s.mu.RLock()
	_, taken := r.s.idempotency[log.Key]
	r.s.mu.RUnlock()
	if taken {
		return domain.ErrIdempotencyKeyUsed
	}
	for _, staged := range mt.idem {
		if staged.Key == log.Key {
			return domain.ErrIdempotencyKeyUsed
		}
	}
	mt.idem = append(mt.idem, *log)
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *IdempotencyRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for key, l := range r.s.idempotency {
		if l.CreatedAt.Before(cutoff) {
			delete(r.s.idempotency, key)
			n++
		}
	}
	return n, nil
}

// AuditRepo implements ports.AuditRepository on a Store.
type AuditRepo struct {
	s *Store
}

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// AuditEntries returns a copy of every audit row written so far.
func (s *Store) AuditEntries() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audit...)
}
