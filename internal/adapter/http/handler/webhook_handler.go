package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderProcessorSignature carries "t=<unix>,v1=<hex>" on processor webhooks.
const HeaderProcessorSignature = "Processor-Signature"

// WebhookHandler receives processor event notifications.
type WebhookHandler struct {
	webhookSvc ports.ProcessorWebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.ProcessorWebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Processor handles POST /api/v1/webhooks/processor. The raw body is passed
// through untouched since the signature covers its exact bytes.
func (h *WebhookHandler) Processor(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, errBodyTooLarge())
			return
		}
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	ack, err := h.webhookSvc.HandleEvent(c.Request.Context(), c.GetHeader(HeaderProcessorSignature), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxResourceID, ack.EventID)
	response.OK(c, dto.WebhookAckResponse{
		Received:  true,
		EventID:   ack.EventID,
		Duplicate: ack.Duplicate,
		Enqueued:  ack.Enqueued,
	})
}
