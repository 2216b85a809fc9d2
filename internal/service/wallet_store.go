package service

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletStoreImpl implements ports.WalletStore. It never begins or commits;
// every call runs inside the caller's transaction.
type WalletStoreImpl struct {
	walletRepo ports.WalletRepository
}

func NewWalletStore(walletRepo ports.WalletRepository) *WalletStoreImpl {
	return &WalletStoreImpl{walletRepo: walletRepo}
}

// GetOrCreate returns the locked wallet for (userID, currency), inserting a
// zero-balance one when absent. A concurrent creator winning the insert race
// is resolved by re-reading.
func (s *WalletStoreImpl) GetOrCreate(ctx context.Context, tx pgx.Tx, userID, currency string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserCurrencyForUpdate(ctx, tx, userID, currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet %s: %w", currency, err))
	}
	if wallet != nil {
		return wallet, nil
	}

	wallet = domain.NewWallet(userID, currency)
	err = s.walletRepo.Create(ctx, tx, wallet)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrWalletExists) {
		return nil, apperror.InternalError(fmt.Errorf("create wallet %s: %w", currency, err))
	}

	wallet, err = s.walletRepo.GetByUserCurrencyForUpdate(ctx, tx, userID, currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("re-read wallet %s: %w", currency, err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet %s vanished after conflicting insert", currency))
	}
	return wallet, nil
}

// AdjustBalance adds delta (which may be negative) to the wallet's balance.
// A result below zero is InsufficientFunds and nothing is written.
func (s *WalletStoreImpl) AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	next := wallet.Balance.Add(delta)
	if next.IsNegative() {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, next); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	wallet.Balance = next
	return wallet, nil
}
