package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// Create inserts the wallet. Returns domain.ErrWalletExists if (user, currency) is taken.
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserCurrency(ctx context.Context, userID, currency string) (*domain.Wallet, error)
	GetByUserCurrencyForUpdate(ctx context.Context, tx pgx.Tx, userID, currency string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
	ListByUser(ctx context.Context, userID string) ([]domain.Wallet, error)
	CountOwners(ctx context.Context) (int64, error)
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	// Create inserts the transaction. Returns domain.ErrDuplicateReference if
	// the external reference was already recorded.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByExternalReference(ctx context.Context, reference string) (*domain.Transaction, error)
	// Reporting queries
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	SumCompletedByVendor(ctx context.Context, vendorID uuid.UUID) ([]CurrencyTotal, error)
	Count(ctx context.Context) (int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
// Exactly one of UserID or VendorID scopes the query.
type TransactionListParams struct {
	UserID   string
	VendorID *uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	Page     int
	PageSize int
}

// CurrencyTotal is an aggregate amount in a single currency.
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
}

// RateRepository defines persistence for the rate table.
type RateRepository interface {
	Get(ctx context.Context, from, to string) (*domain.ExchangeRate, error)
	List(ctx context.Context) ([]domain.ExchangeRate, error)
	Upsert(ctx context.Context, tx pgx.Tx, rate *domain.ExchangeRate) error
}

// VendorRepository is the read-only view of the vendor directory.
type VendorRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Vendor, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Vendor, error)
	Counts(ctx context.Context) (*VendorCounts, error)
}

// VendorCounts holds vendor directory totals for the admin view.
type VendorCounts struct {
	Total   int64
	Pending int64
}

// IdempotencyRepository is the durable store behind IdempotencyCache.
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
