package dto

import (
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Requests ---

// ExchangeRequest is the body of POST /api/v1/exchange.
type ExchangeRequest struct {
	FromCurrency string `json:"from_currency" binding:"required,currency"`
	ToCurrency   string `json:"to_currency" binding:"required,currency"`
	Amount       string `json:"amount" binding:"required,decimal_positive"`
}

// ToPort converts the request into the service input.
func (r ExchangeRequest) ToPort(idempotencyKey string) ports.ExchangeRequest {
	return ports.ExchangeRequest{
		FromCurrency:   normalizeCurrency(r.FromCurrency),
		ToCurrency:     normalizeCurrency(r.ToCurrency),
		Amount:         parseAmount(r.Amount),
		IdempotencyKey: idempotencyKey,
	}
}

// StartTopUpRequest is the body of POST /api/v1/topups.
type StartTopUpRequest struct {
	Amount   string `json:"amount" binding:"required,decimal_positive"`
	Currency string `json:"currency" binding:"required,currency"`
}

// ToPort converts the request into the service input.
func (r StartTopUpRequest) ToPort() ports.StartTopUpRequest {
	return ports.StartTopUpRequest{
		Amount:   parseAmount(r.Amount),
		Currency: normalizeCurrency(r.Currency),
	}
}

// ConfirmTopUpRequest is the body of POST /api/v1/topups/confirm.
type ConfirmTopUpRequest struct {
	ReferenceID string `json:"reference_id" binding:"required,max=255,safe_id"`
	Amount      string `json:"amount" binding:"required,decimal_positive"`
	Currency    string `json:"currency" binding:"required,currency"`
}

// ToPort converts the request into the service input.
func (r ConfirmTopUpRequest) ToPort() ports.ConfirmTopUpRequest {
	return ports.ConfirmTopUpRequest{
		ReferenceID: r.ReferenceID,
		Amount:      parseAmount(r.Amount),
		Currency:    normalizeCurrency(r.Currency),
	}
}

// QRPaymentRequest is the body of POST /api/v1/payments/qr.
type QRPaymentRequest struct {
	VendorID    string `json:"vendor_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required,decimal_positive"`
	Currency    string `json:"currency" binding:"required,currency"`
	Description string `json:"description" binding:"max=255"`
}

// ToPort converts the request into the service input.
func (r QRPaymentRequest) ToPort(idempotencyKey string) ports.QRPaymentRequest {
	vendorID, _ := uuid.Parse(r.VendorID)
	return ports.QRPaymentRequest{
		VendorID:       vendorID,
		Amount:         parseAmount(r.Amount),
		Currency:       normalizeCurrency(r.Currency),
		Description:    r.Description,
		IdempotencyKey: idempotencyKey,
	}
}

// RateEntry is one directional rate in a rate feed update.
type RateEntry struct {
	FromCurrency string `json:"from_currency" binding:"required,currency"`
	ToCurrency   string `json:"to_currency" binding:"required,currency"`
	Rate         string `json:"rate" binding:"required,decimal_positive"`
}

// RateUpsertRequest is the body of PUT /api/v1/rates.
type RateUpsertRequest struct {
	Rates []RateEntry `json:"rates" binding:"required,min=1,max=100,dive"`
}

// ToPort converts the request into the service input.
func (r RateUpsertRequest) ToPort() []ports.RateInput {
	out := make([]ports.RateInput, 0, len(r.Rates))
	for _, e := range r.Rates {
		out = append(out, ports.RateInput{
			FromCurrency: normalizeCurrency(e.FromCurrency),
			ToCurrency:   normalizeCurrency(e.ToCurrency),
			Rate:         parseAmount(e.Rate),
		})
	}
	return out
}

// TransactionQuery holds the query string of the transaction list endpoints.
// Page size above the service maximum is clamped rather than rejected.
type TransactionQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=PENDING COMPLETED FAILED"`
	Type     string `form:"type" binding:"omitempty,oneof=TOPUP PAYMENT EXCHANGE"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
}

// ToFilter converts the query into the service filter.
func (q TransactionQuery) ToFilter() ports.TransactionFilter {
	f := ports.TransactionFilter{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.TransactionStatus(q.Status)
		f.Status = &status
	}
	if q.Type != "" {
		typ := domain.TransactionType(q.Type)
		f.Type = &typ
	}
	return f
}

// --- Responses ---

// WalletResponse is one wallet in GET /api/v1/wallets.
type WalletResponse struct {
	ID        uuid.UUID       `json:"id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionResponse is the public view of a ledger transaction.
type TransactionResponse struct {
	ID                uuid.UUID        `json:"id"`
	Type              string           `json:"type"`
	Status            string           `json:"status"`
	FromCurrency      string           `json:"from_currency"`
	ToCurrency        string           `json:"to_currency"`
	Amount            decimal.Decimal  `json:"amount"`
	ConvertedAmount   *decimal.Decimal `json:"converted_amount,omitempty"`
	ExchangeRate      *decimal.Decimal `json:"exchange_rate,omitempty"`
	Fee               decimal.Decimal  `json:"fee"`
	VendorID          *uuid.UUID       `json:"vendor_id,omitempty"`
	Description       string           `json:"description,omitempty"`
	ExternalReference *string          `json:"external_reference,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// VendorResponse is the public view of a vendor.
type VendorResponse struct {
	ID           uuid.UUID `json:"id"`
	BusinessName string    `json:"business_name"`
	BusinessType string    `json:"business_type"`
	Status       string    `json:"status"`
	IsVerified   bool      `json:"is_verified"`
}

// VendorReceiptsResponse is the body of GET /api/v1/vendors/me/receipts.
type VendorReceiptsResponse struct {
	Vendor       VendorResponse        `json:"vendor"`
	Totals       []CurrencyTotal       `json:"totals"`
	Transactions []TransactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
}

// CurrencyTotal is the sum received in one currency.
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
}

// WebhookAckResponse is returned to the processor.
type WebhookAckResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Enqueued  bool   `json:"enqueued"`
}

// ToWalletResponse maps a domain wallet.
func ToWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		Currency:  w.Currency,
		Balance:   w.Balance,
		UpdatedAt: w.UpdatedAt,
	}
}

// ToTransactionResponse maps a domain transaction.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		Type:              string(t.Type),
		Status:            string(t.Status),
		FromCurrency:      t.FromCurrency,
		ToCurrency:        t.ToCurrency,
		Amount:            t.Amount,
		ConvertedAmount:   t.ConvertedAmount,
		ExchangeRate:      t.ExchangeRate,
		Fee:               t.Fee,
		VendorID:          t.VendorID,
		Description:       t.Description,
		ExternalReference: t.ExternalReference,
		CreatedAt:         t.CreatedAt,
	}
}

// ToTransactionResponses maps a page of transactions.
func ToTransactionResponses(txns []domain.Transaction) []TransactionResponse {
	items := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, ToTransactionResponse(&txns[i]))
	}
	return items
}

// ToVendorResponse maps a domain vendor. The owner and address stay private.
func ToVendorResponse(v *domain.Vendor) VendorResponse {
	return VendorResponse{
		ID:           v.ID,
		BusinessName: v.BusinessName,
		BusinessType: v.BusinessType,
		Status:       string(v.Status),
		IsVerified:   v.IsVerified,
	}
}

// ToVendorReceiptsResponse maps the vendor receipt view.
func ToVendorReceiptsResponse(r *ports.VendorReceipts) VendorReceiptsResponse {
	totals := make([]CurrencyTotal, 0, len(r.Totals))
	for _, t := range r.Totals {
		totals = append(totals, CurrencyTotal{Currency: t.Currency, Total: t.Total, Count: t.Count})
	}
	return VendorReceiptsResponse{
		Vendor:       ToVendorResponse(r.Vendor),
		Totals:       totals,
		Transactions: ToTransactionResponses(r.Transactions),
		Total:        r.Total,
	}
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// parseAmount is only called after decimal_positive has accepted s.
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
