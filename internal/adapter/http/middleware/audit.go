package middleware

import (
	"net/http"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// CtxResourceID lets a handler name the resource it created for the audit entry.
const CtxResourceID = "audit_resource_id"

// auditedRoutes maps "METHOD route" to the action recorded for it.
var auditedRoutes = map[string]domain.AuditAction{
	"POST /api/v1/exchange":           domain.AuditActionExchange,
	"POST /api/v1/topups":             domain.AuditActionTopupIntent,
	"POST /api/v1/topups/confirm":     domain.AuditActionTopup,
	"POST /api/v1/payments/qr":        domain.AuditActionQRPayment,
	"PUT /api/v1/rates":               domain.AuditActionRateUpdate,
	"POST /api/v1/webhooks/processor": domain.AuditActionWebhook,
}

func auditAction(method, route string) (domain.AuditAction, bool) {
	a, ok := auditedRoutes[method+" "+route]
	return a, ok
}

// AuditLog records successful ledger mutations once the handler has run.
// Idempotent replays (200 on a write route) are recorded too.
func AuditLog(audit ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		action, ok := auditAction(c.Request.Method, c.FullPath())
		if !ok {
			return
		}

		entry := domain.NewAuditLog(action, c.GetString(CtxResourceID), time.Now())
		if p, ok := PrincipalFrom(c); ok {
			id := p.UserID
			entry.UserID = &id
		}
		entry.RequestID = c.GetString(CtxRequestID)
		entry.Status = status
		entry.IPAddress = c.ClientIP()

		audit.Log(c.Request.Context(), entry)
	}
}
