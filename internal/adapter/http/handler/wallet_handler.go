package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles the caller's wallet and history endpoints.
type WalletHandler struct {
	reportingSvc ports.ReportingService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reportingSvc ports.ReportingService) *WalletHandler {
	return &WalletHandler{reportingSvc: reportingSvc}
}

// ListWallets handles GET /api/v1/wallets.
func (h *WalletHandler) ListWallets(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	wallets, err := h.reportingSvc.ListWallets(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		items = append(items, dto.ToWalletResponse(&wallets[i]))
	}
	response.OK(c, items)
}

// ListTransactions handles GET /api/v1/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q dto.TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	filter := q.ToFilter()
	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	page, size := filter.PageBounds()
	response.Paginated(c, dto.ToTransactionResponses(txns), total, page, size)
}
