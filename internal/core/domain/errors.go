package domain

import "errors"

// Storage-level races reported to services. None is returned to API callers.
var (
	ErrWalletExists       = errors.New("wallet already exists")
	ErrDuplicateReference = errors.New("transaction reference already recorded")
	ErrIdempotencyKeyUsed = errors.New("idempotency key already recorded")
)

// Webhook signature failures.
var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
)
