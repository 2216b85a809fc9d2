package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/adapter/processor"
	"wallet-ledger/internal/adapter/queue"
	"wallet-ledger/internal/adapter/storage/memory"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec_test"
	feedKey       = "feed-secret"
)

// testApp wires the real services over the memory store, miniredis and the
// sandbox processor behind an httptest server.
type testApp struct {
	server  *httptest.Server
	store   *memory.Store
	sandbox *processor.Sandbox
	tokens  *service.JWTTokenService
	redis   *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	store := memory.NewStore()
	walletRepo := memory.NewWalletRepo(store)
	txRepo := memory.NewTransactionRepo(store)
	rateRepo := memory.NewRateRepo(store)
	vendorRepo := memory.NewVendorRepo(store)
	sandbox := processor.NewSandbox(log)

	hashSvc := service.NewArgon2HashService()
	feedHash, err := hashSvc.Hash(feedKey)
	require.NoError(t, err)
	tokens := service.NewJWTTokenService("test-secret-at-least-32-bytes-long!!", "wallet-ledger")

	rateSvc := service.NewRateService(rateRepo, store, log)
	require.NoError(t, rateSvc.Seed(t.Context(), map[string]string{
		"USD_LAK": "20850",
		"LAK_USD": "0.000048",
	}))

	ledger := service.NewLedgerService(
		service.NewWalletStore(walletRepo),
		walletRepo,
		txRepo,
		rateRepo,
		vendorRepo,
		memory.NewIdempotencyRepo(store),
		redisStorage.NewIdempotencyCache(rdb),
		sandbox,
		store,
		time.Hour,
		log,
	)
	webhooks := service.NewProcessorWebhookService(
		service.NewHMACSignatureService(),
		sandbox,
		redisStorage.NewNonceStore(rdb),
		queue.NewInlineQueue(queue.NewReconciler(ledger, log), log),
		webhookSecret,
		5*time.Minute,
		log,
	)

	audit := service.NewAuditService(memory.NewAuditRepo(store), log)
	t.Cleanup(func() { _ = audit.Close(context.Background()) })

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledger,
		RateSvc:        rateSvc,
		ReportingSvc:   service.NewReportingService(txRepo, walletRepo, vendorRepo),
		WebhookSvc:     webhooks,
		TokenSvc:       tokens,
		HashSvc:        hashSvc,
		FeedKeyHash:    feedHash,
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       audit,
		Logger:         log,
	})

	srv := httptest.NewServer(httpHandler.WithCORS(router, nil))
	t.Cleanup(srv.Close)
	return &testApp{server: srv, store: store, sandbox: sandbox, tokens: tokens, redis: mr}
}

func (a *testApp) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	tok, _, err := a.tokens.Generate(domain.Principal{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

type apiResponse struct {
	Status    int
	Header    http.Header
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

func (r *apiResponse) field(t *testing.T, name string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(r.Data, &m))
	var s string
	if err := json.Unmarshal(m[name], &s); err != nil {
		return string(m[name])
	}
	return s
}

func (a *testApp) call(t *testing.T, method, path, token, body string, headers map[string]string) *apiResponse {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := &apiResponse{Status: resp.StatusCode, Header: resp.Header}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return out
}

func (a *testApp) balance(t *testing.T, token, currency string) decimal.Decimal {
	t.Helper()
	resp := a.call(t, http.MethodGet, "/api/v1/wallets", token, "", nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var wallets []struct {
		Currency string          `json:"currency"`
		Balance  decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &wallets))
	for _, w := range wallets {
		if w.Currency == currency {
			return w.Balance
		}
	}
	return decimal.Zero
}

// topUp starts and confirms a sandbox charge, returning its reference.
func (a *testApp) topUp(t *testing.T, token, amount, currency string) string {
	t.Helper()
	body := fmt.Sprintf(`{"amount":%q,"currency":%q}`, amount, currency)
	intent := a.call(t, http.MethodPost, "/api/v1/topups", token, body, nil)
	require.Equal(t, http.StatusCreated, intent.Status)
	ref := intent.field(t, "reference_id")

	confirm := fmt.Sprintf(`{"reference_id":%q,"amount":%q,"currency":%q}`, ref, amount, currency)
	resp := a.call(t, http.MethodPost, "/api/v1/topups/confirm", token, confirm, nil)
	require.Equal(t, http.StatusCreated, resp.Status, resp.ErrorCode)
	return ref
}

func (a *testApp) verifiedVendor(owner string) uuid.UUID {
	id := uuid.New()
	a.store.PutVendor(domain.Vendor{
		ID: id, UserID: owner, BusinessName: "Noodle Stall", BusinessType: "food",
		Status: domain.VendorStatusApproved, IsVerified: true, CreatedAt: time.Now().UTC(),
	})
	return id
}

func signWebhook(body string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(t + "." + body))
	return "t=" + t + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestE2E_TopUpExchangeAndPay(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)

	ref := app.topUp(t, alice, "100", "USD")
	assert.True(t, decimal.NewFromInt(100).Equal(app.balance(t, alice, "USD")))

	// Confirming the same charge again is a replay, not a second credit.
	replay := app.call(t, http.MethodPost, "/api/v1/topups/confirm", alice,
		fmt.Sprintf(`{"reference_id":%q,"amount":"100","currency":"USD"}`, ref), nil)
	assert.Equal(t, http.StatusOK, replay.Status)
	assert.Equal(t, "true", replay.Header.Get("Idempotent-Replayed"))
	assert.True(t, decimal.NewFromInt(100).Equal(app.balance(t, alice, "USD")))

	// Someone else cannot claim the charge.
	bob := app.token(t, "bob", domain.RoleUser)
	stolen := app.call(t, http.MethodPost, "/api/v1/topups/confirm", bob,
		fmt.Sprintf(`{"reference_id":%q,"amount":"100","currency":"USD"}`, ref), nil)
	assert.Equal(t, http.StatusForbidden, stolen.Status)
	assert.Equal(t, "TOP_001", stolen.ErrorCode)

	// Exchange 50 USD: 0.25 fee on top, 50 * 20850 credited.
	key := map[string]string{middleware.HeaderIdempotencyKey: "fx-1"}
	fx := app.call(t, http.MethodPost, "/api/v1/exchange", alice,
		`{"from_currency":"USD","to_currency":"LAK","amount":"50"}`, key)
	require.Equal(t, http.StatusCreated, fx.Status, fx.ErrorCode)
	assert.Equal(t, "1042500", fx.field(t, "converted_amount"))
	assert.Equal(t, "0.25", fx.field(t, "fee"))

	again := app.call(t, http.MethodPost, "/api/v1/exchange", alice,
		`{"from_currency":"USD","to_currency":"LAK","amount":"50"}`, key)
	assert.Equal(t, http.StatusOK, again.Status)
	assert.True(t, decimal.RequireFromString("49.75").Equal(app.balance(t, alice, "USD")))
	assert.True(t, decimal.NewFromInt(1042500).Equal(app.balance(t, alice, "LAK")))

	// No rate is stored for USD to THB.
	noRate := app.call(t, http.MethodPost, "/api/v1/exchange", alice,
		`{"from_currency":"USD","to_currency":"THB","amount":"1"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, noRate.Status)
	assert.Equal(t, "FX_001", noRate.ErrorCode)

	// Pay a verified vendor in LAK. The vendor owner's wallets are untouched.
	vendorID := app.verifiedVendor("vendor-owner")
	pay := app.call(t, http.MethodPost, "/api/v1/payments/qr", alice,
		fmt.Sprintf(`{"vendor_id":%q,"amount":"45000","currency":"LAK"}`, vendorID), nil)
	require.Equal(t, http.StatusCreated, pay.Status, pay.ErrorCode)
	assert.Equal(t, "997500", pay.field(t, "wallet_balance"))

	owner := app.token(t, "vendor-owner", domain.RoleUser)
	assert.True(t, app.balance(t, owner, "LAK").IsZero())

	receipts := app.call(t, http.MethodGet, "/api/v1/vendors/me/receipts", owner, "", nil)
	require.Equal(t, http.StatusOK, receipts.Status)
	assert.Contains(t, string(receipts.Data), `"total":"45000"`)

	history := app.call(t, http.MethodGet, "/api/v1/transactions?page_size=2", alice, "", nil)
	require.Equal(t, http.StatusOK, history.Status)
	assert.Equal(t, "3", history.field(t, "total"))
	assert.Equal(t, "2", history.field(t, "total_pages"))
}

func TestE2E_PaymentRejections(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)
	app.topUp(t, alice, "10", "USD")

	unverified := uuid.New()
	app.store.PutVendor(domain.Vendor{ID: unverified, UserID: "v", BusinessName: "New Shop", Status: domain.VendorStatusPending})

	tests := []struct {
		name   string
		vendor uuid.UUID
		amount string
		status int
		code   string
	}{
		{"unknown vendor", uuid.New(), "1", http.StatusNotFound, "VND_001"},
		{"unverified vendor", unverified, "1", http.StatusUnprocessableEntity, "VND_002"},
		{"more than balance", app.verifiedVendor("v2"), "10.01", http.StatusPaymentRequired, "PAY_001"},
		{"finer than the ledger stores", app.verifiedVendor("v3"), "0.000000001", http.StatusBadRequest, "REQ_001"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := app.call(t, http.MethodPost, "/api/v1/payments/qr", alice,
				fmt.Sprintf(`{"vendor_id":%q,"amount":%q,"currency":"USD"}`, tc.vendor, tc.amount), nil)
			assert.Equal(t, tc.status, resp.Status)
			assert.Equal(t, tc.code, resp.ErrorCode)
		})
	}
	assert.True(t, decimal.NewFromInt(10).Equal(app.balance(t, alice, "USD")))
}

func TestE2E_ProcessorWebhookReconciles(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)

	intent := app.call(t, http.MethodPost, "/api/v1/topups", alice, `{"amount":"25.50","currency":"USD"}`, nil)
	require.Equal(t, http.StatusCreated, intent.Status)
	ref := intent.field(t, "reference_id")

	body := fmt.Sprintf(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{
		"id":%q,"object":"payment_intent","amount":2550,"currency":"usd","status":"succeeded",
		"metadata":{"user_id":"alice"}}}}`, ref)
	sig := map[string]string{httpHandler.HeaderProcessorSignature: signWebhook(body, time.Now())}

	first := app.call(t, http.MethodPost, "/api/v1/webhooks/processor", "", body, sig)
	require.Equal(t, http.StatusOK, first.Status, first.ErrorCode)
	assert.Equal(t, "true", first.field(t, "enqueued"))
	assert.True(t, decimal.RequireFromString("25.50").Equal(app.balance(t, alice, "USD")))

	dup := app.call(t, http.MethodPost, "/api/v1/webhooks/processor", "", body, sig)
	assert.Equal(t, http.StatusOK, dup.Status)
	assert.Equal(t, "true", dup.field(t, "duplicate"))

	// The user's own confirmation after the webhook is a replay.
	confirm := app.call(t, http.MethodPost, "/api/v1/topups/confirm", alice,
		fmt.Sprintf(`{"reference_id":%q,"amount":"25.50","currency":"USD"}`, ref), nil)
	assert.Equal(t, http.StatusOK, confirm.Status)
	assert.True(t, decimal.RequireFromString("25.50").Equal(app.balance(t, alice, "USD")))

	tampered := app.call(t, http.MethodPost, "/api/v1/webhooks/processor", "", body+" ", sig)
	assert.Equal(t, http.StatusUnauthorized, tampered.Status)
	assert.Equal(t, "SEC_002", tampered.ErrorCode)

	stale := app.call(t, http.MethodPost, "/api/v1/webhooks/processor", "", body,
		map[string]string{httpHandler.HeaderProcessorSignature: signWebhook(body, time.Now().Add(-time.Hour))})
	assert.Equal(t, http.StatusForbidden, stale.Status)
	assert.Equal(t, "SEC_003", stale.ErrorCode)
}

func TestE2E_PendingChargeIsNotCredited(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)

	intent := app.call(t, http.MethodPost, "/api/v1/topups", alice, `{"amount":"5","currency":"USD"}`, nil)
	require.Equal(t, http.StatusCreated, intent.Status)
	ref := intent.field(t, "reference_id")
	require.True(t, app.sandbox.SetStatus(ref, ports.ChargeStatusProcessing))

	resp := app.call(t, http.MethodPost, "/api/v1/topups/confirm", alice,
		fmt.Sprintf(`{"reference_id":%q,"amount":"5","currency":"USD"}`, ref), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, "TOP_002", resp.ErrorCode)

	require.True(t, app.sandbox.SetStatus(ref, ports.ChargeStatusSucceeded))
	mismatch := app.call(t, http.MethodPost, "/api/v1/topups/confirm", alice,
		fmt.Sprintf(`{"reference_id":%q,"amount":"50","currency":"USD"}`, ref), nil)
	assert.Equal(t, "TOP_003", mismatch.ErrorCode)
	assert.True(t, app.balance(t, alice, "USD").IsZero())
}

func TestE2E_RateFeed(t *testing.T) {
	app := newTestApp(t)

	body := `{"rates":[{"from_currency":"USD","to_currency":"THB","rate":"33.50"}]}`
	bad := app.call(t, http.MethodPut, "/api/v1/rates", "", body, map[string]string{middleware.HeaderRateFeedKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.Status)
	assert.Equal(t, "SEC_001", bad.ErrorCode)

	ok := app.call(t, http.MethodPut, "/api/v1/rates", "", body, map[string]string{middleware.HeaderRateFeedKey: feedKey})
	require.Equal(t, http.StatusOK, ok.Status)

	admin := app.call(t, http.MethodPut, "/api/v1/rates", app.token(t, "ops", domain.RoleAdmin),
		`{"rates":[{"from_currency":"THB","to_currency":"LAK","rate":"625"}]}`, nil)
	require.Equal(t, http.StatusOK, admin.Status)

	list := app.call(t, http.MethodGet, "/api/v1/rates", "", "", nil)
	require.Equal(t, http.StatusOK, list.Status)
	assert.Contains(t, string(list.Data), `"to_currency":"THB"`)
	assert.Contains(t, string(list.Data), `"from_currency":"THB"`)

	stats := app.call(t, http.MethodGet, "/api/v1/admin/stats", app.token(t, "ops", domain.RoleAdmin), "", nil)
	assert.Equal(t, http.StatusOK, stats.Status)

	// Both rate updates are audited; the reads are not.
	require.Eventually(t, func() bool { return len(app.store.AuditEntries()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestE2E_Health(t *testing.T) {
	app := newTestApp(t)

	health := func() (int, string) {
		resp, err := http.Get(app.server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body.Status
	}

	code, status := health()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status)

	// Without Redis the ledger keeps working from the store alone.
	app.redis.SetError("LOADING Redis is loading the dataset in memory")
	code, status = health()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", status)

	alice := app.token(t, "alice", domain.RoleUser)
	app.topUp(t, alice, "10", "USD")
	fx := app.call(t, http.MethodPost, "/api/v1/exchange", alice,
		`{"from_currency":"USD","to_currency":"LAK","amount":"1"}`, map[string]string{middleware.HeaderIdempotencyKey: "no-cache-1"})
	require.Equal(t, http.StatusCreated, fx.Status, fx.ErrorCode)
	again := app.call(t, http.MethodPost, "/api/v1/exchange", alice,
		`{"from_currency":"USD","to_currency":"LAK","amount":"1"}`, map[string]string{middleware.HeaderIdempotencyKey: "no-cache-1"})
	assert.Equal(t, http.StatusOK, again.Status)
	assert.True(t, decimal.RequireFromString("8.995").Equal(app.balance(t, alice, "USD")))
}

// TestE2E_ConcurrentPayments fires more payments than the balance covers at
// one wallet. Row locks must let exactly the covered ones through.
func TestE2E_ConcurrentPayments(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)
	app.topUp(t, alice, "100", "USD")
	vendorID := app.verifiedVendor("vendor-owner")

	const attempts = 120
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		declined  atomic.Int64
	)
	body := fmt.Sprintf(`{"vendor_id":%q,"amount":"1","currency":"USD"}`, vendorID)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/payments/qr", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+alice)
			req.Header.Set(middleware.HeaderIdempotencyKey, fmt.Sprintf("pay-%d", i))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusCreated:
				succeeded.Add(1)
			case http.StatusPaymentRequired:
				declined.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), succeeded.Load())
	assert.Equal(t, int64(attempts-100), declined.Load())
	assert.True(t, app.balance(t, alice, "USD").IsZero())
}

// TestE2E_ConcurrentExchangeReplay sends the same idempotency key many times
// at once. Only one exchange may move money.
func TestE2E_ConcurrentExchangeReplay(t *testing.T) {
	app := newTestApp(t)
	alice := app.token(t, "alice", domain.RoleUser)
	app.topUp(t, alice, "100", "USD")

	const attempts = 20
	var (
		wg       sync.WaitGroup
		created  atomic.Int64
		replayed atomic.Int64
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/exchange",
				bytes.NewBufferString(`{"from_currency":"USD","to_currency":"LAK","amount":"10"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+alice)
			req.Header.Set(middleware.HeaderIdempotencyKey, "same-key")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusOK:
				replayed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), created.Load())
	assert.Equal(t, int64(attempts-1), replayed.Load())
	assert.True(t, decimal.RequireFromString("89.95").Equal(app.balance(t, alice, "USD")))
	assert.True(t, decimal.NewFromInt(208500).Equal(app.balance(t, alice, "LAK")))
}
