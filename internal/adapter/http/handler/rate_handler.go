package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateHandler serves and updates the exchange rate table.
type RateHandler struct {
	rateSvc ports.RateService
}

// NewRateHandler creates a new RateHandler.
func NewRateHandler(rateSvc ports.RateService) *RateHandler {
	return &RateHandler{rateSvc: rateSvc}
}

// ListRates handles GET /api/v1/rates.
func (h *RateHandler) ListRates(c *gin.Context) {
	rates, err := h.rateSvc.ListRates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rates)
}

// UpsertRates handles PUT /api/v1/rates. Either every entry is stored or none.
func (h *RateHandler) UpsertRates(c *gin.Context) {
	var req dto.RateUpsertRequest
	if !bindJSON(c, &req) {
		return
	}

	stored, err := h.rateSvc.UpsertRates(c.Request.Context(), req.ToPort())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stored)
}
