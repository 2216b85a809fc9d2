// Package response writes the JSON envelope shared by every API endpoint.
package response

import (
	"errors"
	"net/http"
	"time"

	"wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key the request id middleware sets.
const RequestIDKey = "request_id"

// Envelope is the body of every API response. A success carries Data; a
// failure carries ErrorCode and Message.
type Envelope struct {
	Data      any       `json:"data,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int64 `json:"total_pages"`
}

func OK(c *gin.Context, data any) { write(c, http.StatusOK, Envelope{Data: data}) }

func Created(c *gin.Context, data any) { write(c, http.StatusCreated, Envelope{Data: data}) }

// Paginated answers 200 with a Page. Items is never null in the output.
func Paginated[T any](c *gin.Context, items []T, total int64, page, pageSize int) {
	if items == nil {
		items = []T{}
	}
	var pages int64
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	OK(c, Page[T]{Items: items, Total: total, Page: page, PageSize: pageSize, TotalPages: pages})
}

// Error answers with the AppError in err's chain. Anything else becomes
// SYS_001. Server-side failures are attached to the gin context so the
// request logger records the cause the client never sees.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.InternalError(err)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	write(c, appErr.HTTPStatus, Envelope{ErrorCode: appErr.Code, Message: appErr.Message})
}

func write(c *gin.Context, status int, body Envelope) {
	body.RequestID = requestID(c)
	body.Timestamp = time.Now().UTC()
	c.JSON(status, body)
}

func requestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return uuid.NewString()
}
