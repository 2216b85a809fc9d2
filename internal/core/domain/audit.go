package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is a mutation worth keeping a record of.
type AuditAction string

const (
	AuditActionExchange    AuditAction = "EXCHANGE"
	AuditActionTopupIntent AuditAction = "TOPUP_INTENT"
	AuditActionTopup       AuditAction = "TOPUP"
	AuditActionQRPayment   AuditAction = "QR_PAYMENT"
	AuditActionRateUpdate  AuditAction = "RATE_UPDATE"
	AuditActionWebhook     AuditAction = "PROCESSOR_WEBHOOK"
)

// Resource names the kind of record the action produces.
func (a AuditAction) Resource() string {
	switch a {
	case AuditActionExchange, AuditActionTopup, AuditActionQRPayment:
		return "transaction"
	case AuditActionTopupIntent:
		return "charge"
	case AuditActionRateUpdate:
		return "exchange_rate"
	case AuditActionWebhook:
		return "processor_event"
	}
	return "unknown"
}

// AuditLog is one row of the append-only audit trail. UserID is nil for
// calls made with the rate feed key or by the processor.
type AuditLog struct {
	ID           uuid.UUID
	UserID       *string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	RequestID    string
	Status       int
	IPAddress    string
	CreatedAt    time.Time
}

func NewAuditLog(action AuditAction, resourceID string, now time.Time) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: action.Resource(),
		ResourceID:   resourceID,
		CreatedAt:    now.UTC(),
	}
}
