package handler

import (
	"net/http"

	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20 // 1 MB request body limit

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	RateSvc        ports.RateService
	ReportingSvc   ports.ReportingService
	WebhookSvc     ports.ProcessorWebhookService
	TokenSvc       ports.TokenService
	HashSvc        ports.HashService
	FeedKeyHash    string                              // Argon2id hash of the rate feed key; empty = bearer only
	RateLimiter    ports.RateLimiter                   // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule // nil = defaults
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	OpenAPISpec    []byte             // empty = no /swagger routes
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: storage and cache)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if docs := NewAPIDocs(deps.OpenAPISpec); docs != nil {
		r.GET("/swagger", docs.UI)
		r.GET("/swagger/spec", docs.Spec)
	}

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Rate table ---
	rateHandler := NewRateHandler(deps.RateSvc)
	feedAuth := middleware.RateFeedAuth(deps.HashSvc, deps.FeedKeyHash, deps.TokenSvc, deps.Logger)
	v1.GET("/rates", rl("rates_public"), rateHandler.ListRates)
	v1.PUT("/rates", rl("rates_feed"), feedAuth, rateHandler.UpsertRates)

	// --- Processor webhook (authenticated by signature in the service) ---
	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	v1.POST("/webhooks/processor", rl("webhooks"), webhookHandler.Processor)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	authed := v1.Group("", jwtAuth)

	ledgerHandler := NewLedgerHandler(deps.LedgerSvc)
	walletHandler := NewWalletHandler(deps.ReportingSvc)
	vendorHandler := NewVendorHandler(deps.ReportingSvc)
	adminHandler := NewAdminHandler(deps.ReportingSvc)

	authed.GET("/wallets", rl("reads"), walletHandler.ListWallets)
	authed.GET("/transactions", rl("reads"), walletHandler.ListTransactions)
	authed.POST("/exchange", rl("ledger_write"), ledgerHandler.Exchange)
	authed.POST("/payments/qr", rl("ledger_write"), ledgerHandler.QRPayment)

	topups := authed.Group("/topups")
	{
		topups.POST("", rl("topups"), ledgerHandler.StartTopUp)
		topups.POST("/confirm", rl("topups"), ledgerHandler.ConfirmTopUp)
	}

	vendors := authed.Group("/vendors")
	{
		vendors.GET("/me", rl("reads"), vendorHandler.Me)
		vendors.GET("/me/receipts", rl("reads"), vendorHandler.Receipts)
		vendors.GET("/:id", rl("reads"), vendorHandler.GetVendor)
	}

	admin := authed.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/stats", rl("reads"), adminHandler.GetStats)
	}

	return r
}

// WithCORS wraps the engine so browser clients on allowedOrigins can call
// the API, including preflight for the custom headers.
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			middleware.HeaderIdempotencyKey, middleware.HeaderRateFeedKey, middleware.HeaderRequestID,
		},
		ExposedHeaders: []string{
			middleware.HeaderRequestID, "Idempotent-Replayed", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: false,
	}).Handler(h)
}
