package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeTopup    TransactionType = "TOPUP"
	TransactionTypePayment  TransactionType = "PAYMENT"
	TransactionTypeExchange TransactionType = "EXCHANGE"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is the immutable audit record of one balance change.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	UserID            string            `json:"user_id"`
	VendorID          *uuid.UUID        `json:"vendor_id,omitempty"`
	FromCurrency      string            `json:"from_currency"`
	ToCurrency        string            `json:"to_currency"`
	Amount            decimal.Decimal   `json:"amount"` // In FromCurrency
	ConvertedAmount   *decimal.Decimal  `json:"converted_amount,omitempty"`
	ExchangeRate      *decimal.Decimal  `json:"exchange_rate,omitempty"`
	Fee               decimal.Decimal   `json:"fee"` // In FromCurrency
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	Description       string            `json:"description"`
	ExternalReference *string           `json:"external_reference,omitempty"` // Processor charge id
	CreatedAt         time.Time         `json:"created_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed
}

// IsValidTransactionType reports whether s names a known TransactionType.
func IsValidTransactionType(s string) bool {
	switch TransactionType(s) {
	case TransactionTypeTopup, TransactionTypePayment, TransactionTypeExchange:
		return true
	}
	return false
}

// IsValidTransactionStatus reports whether s names a known TransactionStatus.
func IsValidTransactionStatus(s string) bool {
	switch TransactionStatus(s) {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}
