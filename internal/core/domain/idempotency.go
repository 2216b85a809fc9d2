package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operations that accept an Idempotency-Key header.
const (
	IdempotencyScopeExchange  = "exchange"
	IdempotencyScopeQRPayment = "qr_payment"
)

// IdempotencyKey namespaces a client supplied key by user and operation, so
// two users (or one user on two endpoints) never collide on the same value.
type IdempotencyKey struct {
	UserID    string
	Scope     string
	ClientKey string
}

// NewIdempotencyKey returns the zero key when clientKey is empty; such
// requests are not deduplicated.
func NewIdempotencyKey(userID, scope, clientKey string) IdempotencyKey {
	if clientKey == "" {
		return IdempotencyKey{}
	}
	return IdempotencyKey{UserID: userID, Scope: scope, ClientKey: clientKey}
}

func (k IdempotencyKey) IsZero() bool { return k.ClientKey == "" }

// String is the storage form "user_id:scope:client_key".
func (k IdempotencyKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.UserID + ":" + k.Scope + ":" + k.ClientKey
}

// IdempotencyLog is the committed result of a keyed exchange or payment.
// It is written in the same transaction as the ledger rows it describes.
type IdempotencyLog struct {
	Key           string    `json:"key"`
	UserID        string    `json:"user_id"`
	Scope         string    `json:"scope"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewIdempotencyLog records response under key for transaction txID.
func NewIdempotencyLog(key IdempotencyKey, txID uuid.UUID, response []byte, now time.Time) *IdempotencyLog {
	return &IdempotencyLog{
		Key:           key.String(),
		UserID:        key.UserID,
		Scope:         key.Scope,
		TransactionID: txID,
		ResponseJSON:  response,
		CreatedAt:     now.UTC(),
	}
}
