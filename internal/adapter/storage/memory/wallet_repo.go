package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository on a Store.
type WalletRepo struct {
	s *Store
}

func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

func walletLockKey(userID, currency string) string { return "wallet:" + walletKey(userID, currency) }

// Create stages the wallet. The (user, currency) pair is unique across
// committed rows and rows staged by the same transaction.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := mt.lock(ctx, walletLockKey(wallet.UserID, wallet.Currency)); err != nil {
		return err
	}

	key := walletKey(wallet.UserID, wallet.Currency)
	if _, ok := mt.newWallets[key]; ok {
		return domain.ErrWalletExists
	}
	r.s.mu.RLock()
	_, exists := r.s.walletIndex[key]
	r.s.mu.RUnlock()
	if exists {
		return domain.ErrWalletExists
	}

	if mt.newWallets == nil {
		mt.newWallets = make(map[string]uuid.UUID)
	}
	mt.newWallets[key] = wallet.ID
	mt.stageWallet(*wallet)
	return nil
}

func (r *WalletRepo) GetByUserCurrency(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.walletIndex[walletKey(userID, currency)]
	if !ok {
		return nil, nil
	}
	w := r.s.wallets[id]
	return &w, nil
}

// GetByUserCurrencyForUpdate locks the (user, currency) row even when no
// wallet exists yet, so concurrent creators queue behind each other.
func (r *WalletRepo) GetByUserCurrencyForUpdate(ctx context.Context, tx pgx.Tx, userID, currency string) (*domain.Wallet, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, walletLockKey(userID, currency)); err != nil {
		return nil, err
	}

	key := walletKey(userID, currency)
	id, ok := mt.newWallets[key]
	if !ok {
		r.s.mu.RLock()
		id, ok = r.s.walletIndex[key]
		r.s.mu.RUnlock()
		if !ok {
			return nil, nil
		}
	}
	return mt.readWallet(id), nil
}

func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	w := mt.readWallet(id)
	if w == nil {
		return nil, nil
	}
	if err := mt.lock(ctx, walletLockKey(w.UserID, w.Currency)); err != nil {
		return nil, err
	}
	// Re-read: another transaction may have committed while we waited.
	return mt.readWallet(id), nil
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}
	w := mt.readWallet(walletID)
	if w == nil {
		return errors.New("wallet not found")
	}
	if balance.IsNegative() {
		return errors.New("wallet balance would violate ck_wallets_balance_non_negative")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	mt.stageWallet(*w)
	return nil
}

func (r *WalletRepo) ListByUser(ctx context.Context, userID string) ([]domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Wallet, 0)
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (r *WalletRepo) CountOwners(ctx context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	owners := make(map[string]struct{})
	for _, w := range r.s.wallets {
		owners[w.UserID] = struct{}{}
	}
	return int64(len(owners)), nil
}

func (t *Tx) stageWallet(w domain.Wallet) {
	if t.walletWrites == nil {
		t.walletWrites = make(map[uuid.UUID]domain.Wallet)
	}
	t.walletWrites[w.ID] = w
}

// readWallet returns the transaction's view of a wallet: its own staged
// write if any, otherwise the committed row.
func (t *Tx) readWallet(id uuid.UUID) *domain.Wallet {
	if w, ok := t.walletWrites[id]; ok {
		return &w
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	w, ok := t.store.wallets[id]
	if !ok {
		return nil
	}
	return &w
}
