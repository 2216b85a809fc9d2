package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// LedgerHandler handles the money-movement endpoints.
type LedgerHandler struct {
	ledgerSvc ports.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerSvc ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

// Exchange handles POST /api/v1/exchange.
func (h *LedgerHandler) Exchange(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	var req dto.ExchangeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerSvc.Exchange(c.Request.Context(), p, req.ToPort(key))
	if err != nil {
		response.Error(c, err)
		return
	}
	created(c, result.Transaction, result.Replayed, result)
}

// StartTopUp handles POST /api/v1/topups.
func (h *LedgerHandler) StartTopUp(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req dto.StartTopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.ledgerSvc.StartTopUp(c.Request.Context(), p, req.ToPort())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, intent)
}

// ConfirmTopUp handles POST /api/v1/topups/confirm.
func (h *LedgerHandler) ConfirmTopUp(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req dto.ConfirmTopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerSvc.ConfirmTopUp(c.Request.Context(), p, req.ToPort())
	if err != nil {
		response.Error(c, err)
		return
	}
	created(c, result.Transaction, result.Replayed, result)
}

// QRPayment handles POST /api/v1/payments/qr.
func (h *LedgerHandler) QRPayment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}
	var req dto.QRPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerSvc.QRPayment(c.Request.Context(), p, req.ToPort(key))
	if err != nil {
		response.Error(c, err)
		return
	}
	created(c, result.Transaction, result.Replayed, result)
}
