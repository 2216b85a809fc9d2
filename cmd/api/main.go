package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	apidocs "wallet-ledger/docs/api"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/adapter/processor"
	"wallet-ledger/internal/adapter/queue"
	memStorage "wallet-ledger/internal/adapter/storage/memory"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// repositories is the storage backend selected by database.driver.
type repositories struct {
	wallets     ports.WalletRepository
	txs         ports.TransactionRepository
	rates       ports.RateRepository
	vendors     ports.VendorRepository
	idempotency ports.IdempotencyRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      ports.HealthChecker
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("driver", cfg.Database.Driver).
		Str("processor", cfg.Processor.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		repos repositories
		pool  *pgxpool.Pool
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		store := memStorage.NewStore()
		repos = repositories{
			wallets:     memStorage.NewWalletRepo(store),
			txs:         memStorage.NewTransactionRepo(store),
			rates:       memStorage.NewRateRepo(store),
			vendors:     memStorage.NewVendorRepo(store),
			idempotency: memStorage.NewIdempotencyRepo(store),
			audit:       memStorage.NewAuditRepo(store),
			transactor:  store,
			health:      store,
		}
		log.Warn().Msg("Using in-memory storage, state is lost on restart")
	default:
		pool, err = pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		log.Info().Msg("PostgreSQL connected")

		repos = repositories{
			wallets:     pgStorage.NewWalletRepo(pool),
			txs:         pgStorage.NewTransactionRepo(pool),
			rates:       pgStorage.NewRateRepo(pool),
			vendors:     pgStorage.NewVendorRepo(pool),
			idempotency: pgStorage.NewIdempotencyRepo(pool),
			audit:       pgStorage.NewAuditRepo(pool),
			transactor:  pgStorage.NewTransactor(pool),
			health:      pgStorage.NewHealthCheck(pool),
		}
	}
	checkers := []ports.HealthChecker{repos.health}

	// Cache, nonces and rate limiting
	var (
		idempCache  ports.IdempotencyCache
		nonceStore  ports.NonceStore
		rateLimiter ports.RateLimiter
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		nonceStore = redisStorage.NewNonceStore(rdb)
		if cfg.RateLimit.Enabled {
			rateLimiter = redisStorage.NewRateLimitStore(rdb)
		}
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		cache := memStorage.NewCache()
		idempCache = cache
		nonceStore = cache
		if cfg.RateLimit.Enabled {
			rateLimiter = cache
		}
		log.Warn().Msg("Redis disabled, caches and rate limits are per process")
	}
	rateRules := make(map[string]middleware.RateLimitRule, len(cfg.RateLimit.Rules))
	for group, r := range cfg.RateLimit.Rules {
		rateRules[group] = middleware.RateLimitRule{Limit: r.Limit, Window: r.Window}
	}

	// Card processor
	var cardProcessor ports.PaymentProcessor
	if cfg.Processor.Mode == config.ProcessorModeHTTP {
		cardProcessor = processor.NewClient(
			cfg.Processor.BaseURL,
			cfg.Processor.APIKey,
			&http.Client{Timeout: cfg.Processor.Timeout},
			logger.Component(log, "processor"),
		)
	} else {
		cardProcessor = processor.NewSandbox(logger.Component(log, "processor"))
		log.Warn().Msg("Using sandbox card processor, charges settle instantly")
	}

	// Core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(repos.audit, logger.Component(log, "audit"))
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := auditSvc.Close(flushCtx); err != nil {
			log.Warn().Err(err).Msg("Audit entries not fully flushed")
		}
	}()

	// Business services
	rateSvc := service.NewRateService(repos.rates, repos.transactor, logger.Component(log, "rates"))
	if cfg.Rates.SeedOnStart {
		if err := rateSvc.Seed(ctx, cfg.Rates.Seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed exchange rates")
		}
		log.Info().Int("pairs", len(cfg.Rates.Seed)).Msg("Exchange rates seeded")
	}

	ledgerSvc := service.NewLedgerService(
		service.NewWalletStore(repos.wallets),
		repos.wallets,
		repos.txs,
		repos.rates,
		repos.vendors,
		repos.idempotency,
		idempCache,
		cardProcessor,
		repos.transactor,
		cfg.Idempotency.TTL,
		logger.Component(log, "ledger"),
	)
	reportingSvc := service.NewReportingService(repos.txs, repos.wallets, repos.vendors)

	// Reconcile queue: river on Postgres, inline otherwise
	queueLog := logger.Component(log, "queue")
	reconciler := queue.NewReconciler(ledgerSvc, queueLog)
	var reconcileQueue ports.ReconcileQueue
	if pool != nil {
		if err := queue.Migrate(ctx, pool, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate river schema")
		}
		purger := queue.NewPurgeIdempotencyWorker(repos.idempotency, cfg.Idempotency.Retention, queueLog)
		riverClient, err := queue.NewRiverClient(pool, reconciler, purger, cfg.Queue.MaxWorkers)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create river client")
		}
		if err := riverClient.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start river workers")
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("River workers did not stop cleanly")
			}
		}()
		reconcileQueue = queue.NewRiverQueue(riverClient, queueLog)
		log.Info().Int("workers", cfg.Queue.MaxWorkers).Msg("River reconcile workers started")
	} else {
		reconcileQueue = queue.NewInlineQueue(reconciler, queueLog)
	}

	webhookSvc := service.NewProcessorWebhookService(
		sigSvc,
		cardProcessor,
		nonceStore,
		reconcileQueue,
		cfg.Processor.WebhookSecret,
		cfg.Processor.WebhookTolerance,
		logger.Component(log, "processor_webhook"),
	)
	if cfg.Processor.WebhookSecret == "" {
		log.Warn().Msg("Processor webhook secret is empty, every webhook will be rejected")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		RateSvc:        rateSvc,
		ReportingSvc:   reportingSvc,
		WebhookSvc:     webhookSvc,
		TokenSvc:       tokenSvc,
		HashSvc:        hashSvc,
		FeedKeyHash:    cfg.Rates.FeedKeyHash,
		RateLimiter:    rateLimiter,
		RateLimitRules: middleware.MergeRateLimitRules(rateRules),
		HealthCheckers: checkers,
		AuditSvc:       auditSvc,
		OpenAPISpec:    apidocs.OpenAPI,
		Logger:         logger.Component(log, "http"),
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpHandler.WithCORS(router, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdown(srv, log)
	log.Info().Msg("Server exited")
}

func shutdown(srv *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
