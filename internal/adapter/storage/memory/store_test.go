package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.WalletRepository      = (*WalletRepo)(nil)
	_ ports.TransactionRepository = (*TransactionRepo)(nil)
	_ ports.RateRepository        = (*RateRepo)(nil)
	_ ports.VendorRepository      = (*VendorRepo)(nil)
	_ ports.IdempotencyRepository = (*IdempotencyRepo)(nil)
	_ ports.AuditRepository       = (*AuditRepo)(nil)
	_ ports.DBTransactor          = (*Store)(nil)
	_ ports.HealthChecker         = (*Store)(nil)
)

func mustCreateWallet(t *testing.T, s *Store, userID, currency, balance string) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	repo := NewWalletRepo(s)
	w := domain.NewWallet(userID, currency)
	w.Balance = decimal.RequireFromString(balance)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx, w))
	require.NoError(t, tx.Commit(ctx))
	return w
}

func TestWalletRepo_StagedUntilCommit(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()

	w := domain.NewWallet("user-1", "USD")
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx, w))

	got, err := repo.GetByUserCurrency(ctx, "user-1", "USD")
	require.NoError(t, err)
	assert.Nil(t, got, "uncommitted wallet must not be visible outside the tx")

	inTx, err := repo.GetByUserCurrencyForUpdate(ctx, tx, "user-1", "USD")
	require.NoError(t, err)
	require.NotNil(t, inTx)
	assert.Equal(t, w.ID, inTx.ID)

	require.NoError(t, tx.Commit(ctx))

	got, err = repo.GetByUserCurrency(ctx, "user-1", "USD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Balance.IsZero())
}

func TestWalletRepo_RollbackDiscards(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()
	w := mustCreateWallet(t, s, "user-1", "USD", "100")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateBalance(ctx, tx, w.ID, decimal.RequireFromString("10")))
	require.NoError(t, tx.Rollback(ctx))

	got, err := repo.GetByUserCurrency(ctx, "user-1", "USD")
	require.NoError(t, err)
	assert.Equal(t, "100", got.Balance.String())
}

func TestWalletRepo_Create_Duplicate(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()
	mustCreateWallet(t, s, "user-1", "THB", "0")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = repo.Create(ctx, tx, domain.NewWallet("user-1", "THB"))
	assert.ErrorIs(t, err, domain.ErrWalletExists)
}

func TestWalletRepo_UpdateBalance_RejectsNegative(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()
	w := mustCreateWallet(t, s, "user-1", "USD", "1")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	assert.Error(t, repo.UpdateBalance(ctx, tx, w.ID, decimal.RequireFromString("-0.01")))
}

func TestWalletRepo_LockHeldUntilCommit(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()
	w := mustCreateWallet(t, s, "user-1", "USD", "0")

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = repo.GetByIDForUpdate(ctx, tx1, w.ID)
	require.NoError(t, err)

	acquired := make(chan *domain.Wallet)
	go func() {
		tx2, err := s.Begin(ctx)
		if err != nil {
			close(acquired)
			return
		}
		defer tx2.Rollback(ctx) //nolint:errcheck
		got, _ := repo.GetByIDForUpdate(ctx, tx2, w.ID)
		acquired <- got
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, repo.UpdateBalance(ctx, tx1, w.ID, decimal.NewFromInt(7)))
	require.NoError(t, tx1.Commit(ctx))

	select {
	case got := <-acquired:
		require.NotNil(t, got)
		assert.Equal(t, "7", got.Balance.String(), "waiter must see the committed balance")
	case <-time.After(time.Second):
		t.Fatal("lock was not released on commit")
	}
}

func TestWalletRepo_LockRespectsContext(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	w := mustCreateWallet(t, s, "user-1", "USD", "0")

	tx1, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx1.Rollback(context.Background()) //nolint:errcheck
	_, err = repo.GetByIDForUpdate(context.Background(), tx1, w.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(context.Background()) //nolint:errcheck

	_, err = repo.GetByIDForUpdate(ctx, tx2, w.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWalletRepo_ConcurrentIncrements(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()
	w := mustCreateWallet(t, s, "user-1", "LAK", "0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				return
			}
			defer tx.Rollback(ctx) //nolint:errcheck
			cur, err := repo.GetByIDForUpdate(ctx, tx, w.ID)
			if err != nil || cur == nil {
				return
			}
			if err := repo.UpdateBalance(ctx, tx, w.ID, cur.Balance.Add(decimal.NewFromInt(1))); err != nil {
				return
			}
			_ = tx.Commit(ctx)
		}()
	}
	wg.Wait()

	got, err := repo.GetByUserCurrency(ctx, "user-1", "LAK")
	require.NoError(t, err)
	assert.Equal(t, "50", got.Balance.String())
}

func TestWalletRepo_ListByUser_And_CountOwners(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	mustCreateWallet(t, s, "user-1", "USD", "1")
	mustCreateWallet(t, s, "user-1", "LAK", "2")
	mustCreateWallet(t, s, "user-2", "THB", "3")

	list, err := repo.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "LAK", list[0].Currency)
	assert.Equal(t, "USD", list[1].Currency)

	n, err := repo.CountOwners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTransactionRepo_DuplicateReference(t *testing.T) {
	s := NewStore()
	repo := NewTransactionRepo(s)
	ctx := context.Background()
	ref := "pi_1"

	newTopUp := func() *domain.Transaction {
		return &domain.Transaction{
			ID: uuid.New(), UserID: "user-1", FromCurrency: "USD", ToCurrency: "USD",
			Amount: decimal.NewFromInt(20), Type: domain.TransactionTypeTopup,
			Status: domain.TransactionStatusCompleted, ExternalReference: &ref, CreatedAt: time.Now(),
		}
	}

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx1, newTopUp()))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx) //nolint:errcheck
	done := make(chan error, 1)
	go func() { done <- repo.Create(ctx, tx2, newTopUp()) }()

	select {
	case err := <-done:
		t.Fatalf("insert of a held reference returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, <-done, domain.ErrDuplicateReference, "sees the committed row once the holder ends")

	tx3, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback(ctx) //nolint:errcheck
	assert.ErrorIs(t, repo.Create(ctx, tx3, newTopUp()), domain.ErrDuplicateReference, "committed")

	got, err := repo.GetByExternalReference(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
}

func TestTransactionRepo_ReferenceFreedOnRollback(t *testing.T) {
	s := NewStore()
	repo := NewTransactionRepo(s)
	ctx := context.Background()
	ref := "pi_2"
	txn := &domain.Transaction{ID: uuid.New(), UserID: "u", ExternalReference: &ref, Amount: decimal.NewFromInt(1)}

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx1, txn))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- repo.Create(ctx, tx2, txn) }()

	require.NoError(t, tx1.Rollback(ctx))
	assert.NoError(t, <-done)
	require.NoError(t, tx2.Commit(ctx))

	got, err := repo.GetByExternalReference(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestTransactionRepo_ReferenceWaitRespectsContext(t *testing.T) {
	s := NewStore()
	repo := NewTransactionRepo(s)
	ref := "pi_3"
	txn := &domain.Transaction{ID: uuid.New(), UserID: "u", ExternalReference: &ref, Amount: decimal.NewFromInt(1)}

	tx1, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx1.Rollback(context.Background()) //nolint:errcheck
	require.NoError(t, repo.Create(context.Background(), tx1, txn))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	tx2, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx2.Rollback(context.Background()) //nolint:errcheck
	assert.ErrorIs(t, repo.Create(ctx, tx2, txn), context.DeadlineExceeded)
}

func TestTransactionRepo_ListAndSums(t *testing.T) {
	s := NewStore()
	repo := NewTransactionRepo(s)
	ctx := context.Background()
	vendorID := uuid.New()
	base := time.Now().UTC()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, tx, &domain.Transaction{
			ID: uuid.New(), UserID: "payer", VendorID: &vendorID, FromCurrency: "LAK", ToCurrency: "LAK",
			Amount: decimal.NewFromInt(int64(1000 * (i + 1))), Type: domain.TransactionTypePayment,
			Status: domain.TransactionStatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, tx, &domain.Transaction{
		ID: uuid.New(), UserID: "payer", FromCurrency: "USD", ToCurrency: "USD",
		Amount: decimal.NewFromInt(5), Type: domain.TransactionTypeTopup,
		Status: domain.TransactionStatusCompleted, CreatedAt: base,
	}))
	require.NoError(t, tx.Commit(ctx))

	page, total, err := repo.List(ctx, ports.TransactionListParams{UserID: "payer", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	require.Len(t, page, 2)
	assert.Equal(t, "5000", page[0].Amount.String(), "newest first")

	typ := domain.TransactionTypePayment
	byVendor, total, err := repo.List(ctx, ports.TransactionListParams{VendorID: &vendorID, Type: &typ, Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, byVendor, 1)

	sums, err := repo.SumCompletedByVendor(ctx, vendorID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "LAK", sums[0].Currency)
	assert.Equal(t, "15000", sums[0].Total.String())
	assert.Equal(t, int64(5), sums[0].Count)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestRateRepo_UpsertVisibleAfterCommit(t *testing.T) {
	s := NewStore()
	repo := NewRateRepo(s)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, tx, &domain.ExchangeRate{FromCurrency: "USD", ToCurrency: "LAK", Rate: decimal.NewFromInt(20850)}))

	got, err := repo.Get(ctx, "USD", "LAK")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, tx.Commit(ctx))

	got, err = repo.Get(ctx, "USD", "LAK")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "20850", got.Rate.String())

	inverse, err := repo.Get(ctx, "LAK", "USD")
	require.NoError(t, err)
	assert.Nil(t, inverse)
}

func TestVendorRepo(t *testing.T) {
	s := NewStore()
	repo := NewVendorRepo(s)
	ctx := context.Background()
	older := domain.Vendor{ID: uuid.New(), UserID: "owner", Status: domain.VendorStatusApproved, IsVerified: true, CreatedAt: time.Now().Add(-time.Hour)}
	newer := domain.Vendor{ID: uuid.New(), UserID: "owner", Status: domain.VendorStatusPending, CreatedAt: time.Now()}
	s.PutVendor(older)
	s.PutVendor(newer)

	got, err := repo.GetByUserID(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Total)
	assert.Equal(t, int64(1), counts.Pending)
}

func TestIdempotencyRepo_KeyUsed(t *testing.T) {
	s := NewStore()
	repo := NewIdempotencyRepo(s)
	ctx := context.Background()
	log := &domain.IdempotencyLog{Key: "u:exchange:k", TransactionID: uuid.New(), ResponseJSON: []byte(`{}`)}

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx1, log))
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx) //nolint:errcheck
	assert.ErrorIs(t, repo.Create(ctx, tx2, log), domain.ErrIdempotencyKeyUsed)

	got, err := repo.Get(ctx, log.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, log.TransactionID, got.TransactionID)
}

func TestIdempotencyRepo_PurgeBefore(t *testing.T) {
	s := NewStore()
	repo := NewIdempotencyRepo(s)
	ctx := context.Background()
	now := time.Now().UTC()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i, age := range []time.Duration{48 * time.Hour, time.Hour} {
		key := domain.NewIdempotencyKey("u", domain.IdempotencyScopeExchange, fmt.Sprintf("k%d", i))
		require.NoError(t, repo.Create(ctx, tx, domain.NewIdempotencyLog(key, uuid.New(), []byte(`{}`), now.Add(-age))))
	}
	require.NoError(t, tx.Commit(ctx))

	n, err := repo.PurgeBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := repo.Get(ctx, "u:exchange:k0")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := repo.Get(ctx, "u:exchange:k1")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestAuditRepo(t *testing.T) {
	s := NewStore()
	require.NoError(t, NewAuditRepo(s).Create(context.Background(), &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionExchange}))
	entries := s.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionExchange, entries[0].Action)
}

func TestTx_ClosedAfterCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), errTxClosed)
	assert.NoError(t, tx.Rollback(ctx))
	_, err = NewWalletRepo(s).GetByUserCurrencyForUpdate(ctx, tx, "u", "USD")
	assert.ErrorIs(t, err, errTxClosed)
}

func TestStore_Health(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "memory", s.Name())
	assert.NoError(t, s.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Ping(ctx))
	_, err := s.Begin(ctx)
	assert.Error(t, err)
}
