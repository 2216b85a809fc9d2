package domain

import (
	"time"

	"github.com/google/uuid"
)

// VendorStatus represents the state of the external approval workflow.
type VendorStatus string

const (
	VendorStatusPending  VendorStatus = "PENDING"
	VendorStatusApproved VendorStatus = "APPROVED"
	VendorStatusRejected VendorStatus = "REJECTED"
)

// Vendor is a merchant that may receive QR payments once verified.
type Vendor struct {
	ID              uuid.UUID    `json:"id"`
	UserID          string       `json:"user_id"`
	BusinessName    string       `json:"business_name"`
	BusinessType    string       `json:"business_type"`
	BusinessAddress string       `json:"business_address"`
	Status          VendorStatus `json:"status"`
	IsVerified      bool         `json:"is_verified"`
	CreatedAt       time.Time    `json:"created_at"`
}

// CanReceivePayments returns true if the vendor may be a QR payment counterparty.
func (v *Vendor) CanReceivePayments() bool {
	return v.IsVerified
}
