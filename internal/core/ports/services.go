package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SignatureService signs and verifies the processor webhook signature header.
type SignatureService interface {
	SignHeader(secret string, ts time.Time, body []byte) string
	VerifyHeader(secret, header string, body []byte, now time.Time, tolerance time.Duration) error
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT bearer tokens issued by the identity provider.
type TokenService interface {
	Generate(principal domain.Principal, ttl time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*domain.Principal, error)
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore records one-time identifiers such as processor event ids.
type NonceStore interface {
	// CheckAndSet atomically checks if id exists in scope, sets it if not.
	// Returns true if id is new, false if already seen.
	CheckAndSet(ctx context.Context, scope string, id string, ttl time.Duration) (bool, error)
	// Forget removes id so a later CheckAndSet treats it as new again.
	Forget(ctx context.Context, scope string, id string) error
}

// --- External collaborators ---

// Charge statuses reported by the payment processor.
const (
	ChargeStatusSucceeded       = "succeeded"
	ChargeStatusProcessing      = "processing"
	ChargeStatusRequiresPayment = "requires_payment_method"
	ChargeStatusCanceled        = "canceled"
)

// Charge is the processor's view of a card charge.
type Charge struct {
	ReferenceID  string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	OwnerID      string // metadata.user_id set when the charge was created
	ClientSecret string
}

// ChargeRequest holds the input for creating a processor charge.
type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// PaymentProcessor is the card processor. The ledger only reads charges
// while confirming a top-up.
type PaymentProcessor interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, referenceID string) (*Charge, error)
	// ParseEvent decodes an already authenticated webhook body.
	ParseEvent(payload []byte) (*ProcessorEvent, error)
}

// Processor event types that trigger reconciliation.
const (
	EventChargeSucceeded        = "charge.succeeded"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// ProcessorEvent is a webhook notification from the processor.
type ProcessorEvent struct {
	ID     string
	Type   string
	Charge *Charge
}

// WebhookAck is returned to the processor after an event is accepted.
type WebhookAck struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Enqueued  bool   `json:"enqueued"`
}

// ProcessorWebhookService authenticates processor webhooks and schedules
// top-up reconciliation for settled charges.
type ProcessorWebhookService interface {
	HandleEvent(ctx context.Context, signatureHeader string, body []byte) (*WebhookAck, error)
}

// ReconcileTopUpJob asks for a processor charge to be confirmed on behalf of its owner.
type ReconcileTopUpJob struct {
	ReferenceID string          `json:"reference_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// ReconcileQueue schedules asynchronous top-up confirmation.
type ReconcileQueue interface {
	EnqueueTopUpReconcile(ctx context.Context, job ReconcileTopUpJob) error
}

// --- Service Ports (Business Logic) ---

// WalletStore owns every read-modify-write of a wallet balance.
// Both methods run inside the caller's transaction and never commit.
type WalletStore interface {
	GetOrCreate(ctx context.Context, tx pgx.Tx, userID, currency string) (*domain.Wallet, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) (*domain.Wallet, error)
}

// LedgerService defines the money-movement operations.
type LedgerService interface {
	Exchange(ctx context.Context, p domain.Principal, req ExchangeRequest) (*ExchangeResult, error)
	StartTopUp(ctx context.Context, p domain.Principal, req StartTopUpRequest) (*TopUpIntent, error)
	ConfirmTopUp(ctx context.Context, p domain.Principal, req ConfirmTopUpRequest) (*TopUpResult, error)
	QRPayment(ctx context.Context, p domain.Principal, req QRPaymentRequest) (*PaymentResult, error)
}

// ExchangeRequest holds validated input for a currency exchange.
type ExchangeRequest struct {
	FromCurrency   string
	ToCurrency     string
	Amount         decimal.Decimal
	IdempotencyKey string // Optional
}

// ExchangeResult is returned by a completed (or replayed) exchange.
type ExchangeResult struct {
	Transaction        *domain.Transaction `json:"transaction"`
	ConvertedAmount    decimal.Decimal     `json:"converted_amount"`
	Fee                decimal.Decimal     `json:"fee"`
	SourceBalance      decimal.Decimal     `json:"source_balance"`
	DestinationBalance decimal.Decimal     `json:"destination_balance"`
	Replayed           bool                `json:"replayed"`
}

// StartTopUpRequest holds input for creating a processor charge.
type StartTopUpRequest struct {
	Amount   decimal.Decimal
	Currency string
}

// TopUpIntent is handed to the client to complete card payment.
type TopUpIntent struct {
	ReferenceID  string          `json:"reference_id"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// ConfirmTopUpRequest holds input for crediting a settled charge.
type ConfirmTopUpRequest struct {
	ReferenceID string
	Amount      decimal.Decimal
	Currency    string
}

// TopUpResult is returned by a completed (or replayed) top-up confirmation.
type TopUpResult struct {
	Transaction   *domain.Transaction `json:"transaction"`
	WalletBalance decimal.Decimal     `json:"wallet_balance"`
	Replayed      bool                `json:"replayed"`
}

// QRPaymentRequest holds input for paying a vendor.
type QRPaymentRequest struct {
	VendorID       uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string // Optional
}

// PaymentResult is returned by a completed (or replayed) QR payment.
type PaymentResult struct {
	Transaction   *domain.Transaction `json:"transaction"`
	WalletBalance decimal.Decimal     `json:"wallet_balance"`
	Replayed      bool                `json:"replayed"`
}

// RateService manages the rate table.
type RateService interface {
	GetRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error)
	ListRates(ctx context.Context) ([]domain.ExchangeRate, error)
	UpsertRates(ctx context.Context, rates []RateInput) ([]domain.ExchangeRate, error)
}

// RateInput is one entry of a rate feed update.
type RateInput struct {
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
}

// ReportingService defines read-only views over the ledger.
type ReportingService interface {
	ListWallets(ctx context.Context, p domain.Principal) ([]domain.Wallet, error)
	ListTransactions(ctx context.Context, p domain.Principal, filter TransactionFilter) ([]domain.Transaction, int64, error)
	GetVendor(ctx context.Context, id uuid.UUID) (*domain.Vendor, error)
	MyVendor(ctx context.Context, p domain.Principal) (*domain.Vendor, error)
	VendorReceipts(ctx context.Context, p domain.Principal, filter TransactionFilter) (*VendorReceipts, error)
	AdminStats(ctx context.Context, p domain.Principal) (*AdminStats, error)
}

// TransactionFilter is the caller-controlled part of TransactionListParams.
type TransactionFilter struct {
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	Page     int
	PageSize int
}

// Page size bounds for transaction listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageBounds returns the page and size actually served for f: page is at
// least 1 and size defaults to DefaultPageSize and is capped at MaxPageSize.
func (f TransactionFilter) PageBounds() (page, size int) {
	page, size = f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// VendorReceipts is a vendor's query-derived view of payments received.
type VendorReceipts struct {
	Vendor       *domain.Vendor       `json:"vendor"`
	Transactions []domain.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Totals       []CurrencyTotal      `json:"totals"`
}

// AdminStats holds system-wide counts.
type AdminStats struct {
	TotalUsers        int64 `json:"total_users"`
	TotalVendors      int64 `json:"total_vendors"`
	PendingVendors    int64 `json:"pending_vendors"`
	TotalTransactions int64 `json:"total_transactions"`
}

// AuditService records audited actions without blocking the request.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
