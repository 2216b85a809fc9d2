package handler

import (
	"net/http"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLen = 255

func errBodyTooLarge() *apperror.AppError {
	return apperror.New(apperror.CodeValidation, "Request body too large", http.StatusRequestEntityTooLarge)
}

// principal returns the caller set by JWTAuth, writing a 401 when absent.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return domain.Principal{}, false
	}
	return p, true
}

// bindJSON decodes and validates the body into req, then sanitizes it.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, errBodyTooLarge())
			return false
		}
		response.Error(c, dto.BindError(err))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 255 characters"))
		return "", false
	}
	return key, true
}

// created answers 201 for a new ledger entry and 200 for a replay.
func created(c *gin.Context, txn *domain.Transaction, replayed bool, data interface{}) {
	if txn != nil {
		c.Set(middleware.CtxResourceID, txn.ID.String())
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		response.OK(c, data)
		return
	}
	response.Created(c, data)
}
