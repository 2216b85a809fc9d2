package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VendorHandler handles vendor lookups and the vendor receipt view.
type VendorHandler struct {
	reportingSvc ports.ReportingService
}

// NewVendorHandler creates a new VendorHandler.
func NewVendorHandler(reportingSvc ports.ReportingService) *VendorHandler {
	return &VendorHandler{reportingSvc: reportingSvc}
}

// GetVendor handles GET /api/v1/vendors/:id. Payers use it to confirm a
// scanned QR code before paying.
func (h *VendorHandler) GetVendor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrVendorNotFound())
		return
	}

	vendor, err := h.reportingSvc.GetVendor(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToVendorResponse(vendor))
}

// Me handles GET /api/v1/vendors/me.
func (h *VendorHandler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	vendor, err := h.reportingSvc.MyVendor(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToVendorResponse(vendor))
}

// Receipts handles GET /api/v1/vendors/me/receipts.
func (h *VendorHandler) Receipts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q dto.TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	receipts, err := h.reportingSvc.VendorReceipts(c.Request.Context(), p, q.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToVendorReceiptsResponse(receipts))
}
