package service

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWalletStore_GetOrCreate_Existing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockWalletRepository(ctrl)
	store := NewWalletStore(repo)
	tx := &mockTx{}
	existing := &domain.Wallet{ID: uuid.New(), UserID: "user-1", Currency: "USD", Balance: dec("10")}

	repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), tx, "user-1", "USD").Return(existing, nil)

	w, err := store.GetOrCreate(context.Background(), tx, "user-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, existing, w)
}

func TestWalletStore_GetOrCreate_CreatesZeroBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockWalletRepository(ctrl)
	store := NewWalletStore(repo)
	tx := &mockTx{}

	gomock.InOrder(
		repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), tx, "user-1", "LAK").Return(nil, nil),
		repo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, w *domain.Wallet) error {
				assert.Equal(t, "user-1", w.UserID)
				assert.Equal(t, "LAK", w.Currency)
				assert.True(t, w.Balance.IsZero())
				return nil
			}),
	)

	w, err := store.GetOrCreate(context.Background(), tx, "user-1", "LAK")
	require.NoError(t, err)
	assert.Equal(t, "LAK", w.Currency)
	assert.True(t, w.Balance.IsZero())
}

func TestWalletStore_GetOrCreate_LostInsertRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockWalletRepository(ctrl)
	store := NewWalletStore(repo)
	tx := &mockTx{}
	winner := &domain.Wallet{ID: uuid.New(), UserID: "user-1", Currency: "THB", Balance: decimal.Zero}

	gomock.InOrder(
		repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), tx, "user-1", "THB").Return(nil, nil),
		repo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(domain.ErrWalletExists),
		repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), tx, "user-1", "THB").Return(winner, nil),
	)

	w, err := store.GetOrCreate(context.Background(), tx, "user-1", "THB")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, w.ID)
}

func TestWalletStore_GetOrCreate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(repo *mocks.MockWalletRepository)
	}{
		{
			name: "lock fails",
			setup: func(repo *mocks.MockWalletRepository) {
				repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, errors.New("conn reset"))
			},
		},
		{
			name: "insert fails",
			setup: func(repo *mocks.MockWalletRepository) {
				repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
			},
		},
		{
			name: "wallet vanished after conflict",
			setup: func(repo *mocks.MockWalletRepository) {
				repo.EXPECT().GetByUserCurrencyForUpdate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
				repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ErrWalletExists)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockWalletRepository(ctrl)
			tt.setup(repo)

			_, err := NewWalletStore(repo).GetOrCreate(context.Background(), &mockTx{}, "user-1", "USD")
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, "SYS_001"))
		})
	}
}

func TestWalletStore_AdjustBalance(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		delta   string
		want    string
		wantErr string
	}{
		{name: "credit", balance: "10", delta: "5.5", want: "15.5"},
		{name: "debit to zero", balance: "50.25", delta: "-50.25", want: "0"},
		{name: "overdraw", balance: "50", delta: "-50.00000001", wantErr: apperror.CodeInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockWalletRepository(ctrl)
			tx := &mockTx{}
			w := &domain.Wallet{ID: uuid.New(), UserID: "user-1", Currency: "USD", Balance: dec(tt.balance)}

			repo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, w.ID).Return(w, nil)
			if tt.wantErr == "" {
				repo.EXPECT().UpdateBalance(gomock.Any(), tx, w.ID, gomock.Any()).DoAndReturn(
					func(_ context.Context, _ pgx.Tx, _ uuid.UUID, b decimal.Decimal) error {
						assert.True(t, b.Equal(dec(tt.want)), "got %s", b)
						return nil
					})
			}

			got, err := NewWalletStore(repo).AdjustBalance(context.Background(), tx, w.ID, dec(tt.delta))
			if tt.wantErr != "" {
				assert.True(t, apperror.IsCode(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Balance.Equal(dec(tt.want)))
		})
	}
}

func TestWalletStore_AdjustBalance_MissingWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockWalletRepository(ctrl)
	id := uuid.New()

	repo.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), id).Return(nil, nil)

	_, err := NewWalletStore(repo).AdjustBalance(context.Background(), &mockTx{}, id, dec("1"))
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}
