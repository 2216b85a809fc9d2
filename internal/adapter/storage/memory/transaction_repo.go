package memory

import (
	"context"
	"sort"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.TransactionRepository on a Store.
type TransactionRepo struct {
	s *Store
}

func NewTransactionRepo(s *Store) *TransactionRepo {
	return &TransactionRepo{s: s}
}

// Create stages the row. An external reference held by another open
// transaction blocks until that transaction ends; one already committed
// yields domain.ErrDuplicateReference.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if ref := txn.ExternalReference; ref != nil {
		if err := mt.claim(ctx, "ref:"+*ref); err != nil {
			return err
		}
		r.s.mu.RLock()
		_, taken := r.s.references[*ref]
		r.s.mu.RUnlock()
		if taken {
			return domain.ErrDuplicateReference
		}
		for _, staged := range mt.txns {
			if staged.ExternalReference != nil && *staged.ExternalReference == *ref {
				return domain.ErrDuplicateReference
			}
		}
	}
	mt.txns = append(mt.txns, *txn)
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *TransactionRepo) GetByExternalReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.references[reference]
	if !ok {
		return nil, nil
	}
	t := r.s.transactions[id]
	return &t, nil
}

// List filters by vendor when VendorID is set, otherwise by user, and returns
// newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	matched := make([]domain.Transaction, 0)
	for i := len(r.s.txOrder) - 1; i >= 0; i-- {
		t := r.s.transactions[r.s.txOrder[i]]
		if params.VendorID != nil {
			if t.VendorID == nil || *t.VendorID != *params.VendorID {
				continue
			}
		} else if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		matched = append(matched, t)
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 {
		start = 0
	}
	if start >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *TransactionRepo) SumCompletedByVendor(ctx context.Context, vendorID uuid.UUID) ([]ports.CurrencyTotal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byCurrency := make(map[string]*ports.CurrencyTotal)
	for _, t := range r.s.transactions {
		if t.VendorID == nil || *t.VendorID != vendorID || t.Status != domain.TransactionStatusCompleted {
			continue
		}
		ct, ok := byCurrency[t.ToCurrency]
		if !ok {
			ct = &ports.CurrencyTotal{Currency: t.ToCurrency, Total: decimal.Zero}
			byCurrency[t.ToCurrency] = ct
		}
		ct.Total = ct.Total.Add(t.Amount)
		ct.Count++
	}

	out := make([]ports.CurrencyTotal, 0, len(byCurrency))
	for _, ct := range byCurrency {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (r *TransactionRepo) Count(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.transactions)), nil
}
