package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService: exchange, card top-up and
// QR payment. Every balance change goes through the WalletStore inside a
// single database transaction.
type LedgerServiceImpl struct {
	wallets    ports.WalletStore
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	rateRepo   ports.RateRepository
	vendorRepo ports.VendorRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	processor  ports.PaymentProcessor
	transactor ports.DBTransactor
	idempTTL   time.Duration
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	wallets ports.WalletStore,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	rateRepo ports.RateRepository,
	vendorRepo ports.VendorRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	processor ports.PaymentProcessor,
	transactor ports.DBTransactor,
	idempTTL time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		wallets:    wallets,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		rateRepo:   rateRepo,
		vendorRepo: vendorRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		processor:  processor,
		transactor: transactor,
		idempTTL:   idempTTL,
		log:        log,
	}
}

func validateAmountCurrency(amount decimal.Decimal, currency string) error {
	if !domain.IsStorableAmount(amount) {
		return apperror.ErrInvalidAmount()
	}
	if !domain.IsSupportedCurrency(currency) {
		return apperror.ErrUnsupportedCurrency(currency)
	}
	return nil
}

// ==================== Exchange ====================

// Exchange converts amount of FromCurrency into ToCurrency at the stored rate,
// charging ExchangeFeeRate on the source side.
func (s *LedgerServiceImpl) Exchange(ctx context.Context, p domain.Principal, req ports.ExchangeRequest) (*ports.ExchangeResult, error) {
	if err := validateAmountCurrency(req.Amount, req.FromCurrency); err != nil {
		return nil, err
	}
	if !domain.IsSupportedCurrency(req.ToCurrency) {
		return nil, apperror.ErrUnsupportedCurrency(req.ToCurrency)
	}
	if req.FromCurrency == req.ToCurrency {
		return nil, apperror.ErrSameCurrency()
	}

	idemKey := domain.NewIdempotencyKey(p.UserID, domain.IdempotencyScopeExchange, req.IdempotencyKey)
	if !idemKey.IsZero() {
		var prior ports.ExchangeResult
		found, err := s.replayIdempotent(ctx, idemKey, &prior)
		if err != nil {
			return nil, err
		}
		if found {
			prior.Replayed = true
			return &prior, nil
		}
	}

	rate, err := s.rateRepo.Get(ctx, req.FromCurrency, req.ToCurrency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get rate: %w", err))
	}
	if rate == nil {
		return nil, apperror.ErrRateUnavailable(req.FromCurrency, req.ToCurrency)
	}

	amount := req.Amount
	fee := domain.ExchangeFee(amount)
	converted := rate.Convert(amount)
	if !converted.IsPositive() {
		// Too small to credit anything at this rate.
		return nil, apperror.ErrInvalidAmount()
	}
	totalDebit := amount.Add(fee)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock in currency order so that opposite-direction exchanges by the same
	// user cannot deadlock.
	var source, dest *domain.Wallet
	for _, cur := range lockOrder(req.FromCurrency, req.ToCurrency) {
		if cur == req.FromCurrency {
			source, err = s.walletRepo.GetByUserCurrencyForUpdate(ctx, dbTx, p.UserID, cur)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("lock source wallet: %w", err))
			}
			continue
		}
		dest, err = s.wallets.GetOrCreate(ctx, dbTx, p.UserID, cur)
		if err != nil {
			return nil, err
		}
	}
	if source == nil {
		return nil, apperror.ErrInsufficientFunds()
	}

	source, err = s.wallets.AdjustBalance(ctx, dbTx, source.ID, totalDebit.Neg())
	if err != nil {
		return nil, err
	}
	dest, err = s.wallets.AdjustBalance(ctx, dbTx, dest.ID, converted)
	if err != nil {
		return nil, err
	}

	rateValue := rate.Rate
	txn := &domain.Transaction{
		ID:              uuid.New(),
		UserID:          p.UserID,
		FromCurrency:    req.FromCurrency,
		ToCurrency:      req.ToCurrency,
		Amount:          amount,
		ConvertedAmount: &converted,
		ExchangeRate:    &rateValue,
		Fee:             fee,
		Type:            domain.TransactionTypeExchange,
		Status:          domain.TransactionStatusCompleted,
		Description:     fmt.Sprintf("Exchange %s %s to %s", amount.String(), req.FromCurrency, req.ToCurrency),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	result := &ports.ExchangeResult{
		Transaction:        txn,
		ConvertedAmount:    converted,
		Fee:                fee,
		SourceBalance:      source.Balance,
		DestinationBalance: dest.Balance,
	}

	respJSON, err := s.saveIdempotent(ctx, dbTx, idemKey, txn.ID, result)
	if errors.Is(err, domain.ErrIdempotencyKeyUsed) {
		_ = dbTx.Rollback(ctx)
		return s.exchangeReplayAfterRace(ctx, idemKey)
	}
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	s.cacheIdempotent(ctx, idemKey, respJSON)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", p.UserID).
		Str("from", req.FromCurrency).
		Str("to", req.ToCurrency).
		Str("amount", amount.String()).
		Str("fee", fee.String()).
		Str("converted", converted.String()).
		Msg("exchange completed")

	return result, nil
}

func (s *LedgerServiceImpl) exchangeReplayAfterRace(ctx context.Context, key domain.IdempotencyKey) (*ports.ExchangeResult, error) {
	var prior ports.ExchangeResult
	found, err := s.replayIdempotent(ctx, key, &prior)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.InternalError(fmt.Errorf("idempotency key %q taken but not readable", key))
	}
	prior.Replayed = true
	return &prior, nil
}

func lockOrder(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// ==================== Top-up ====================

// StartTopUp creates a processor charge for the caller. Nothing is written
// to the ledger until the charge is confirmed.
func (s *LedgerServiceImpl) StartTopUp(ctx context.Context, p domain.Principal, req ports.StartTopUpRequest) (*ports.TopUpIntent, error) {
	if err := validateAmountCurrency(req.Amount, req.Currency); err != nil {
		return nil, err
	}
	if !domain.FitsScale(req.Amount, domain.ChargeScale) {
		return nil, apperror.Validation(fmt.Sprintf("top-up amount must have at most %d decimal places", domain.ChargeScale))
	}
	if req.Amount.LessThan(domain.MinTopUpAmount) {
		return nil, apperror.Validation(fmt.Sprintf("minimum top-up is %s %s", domain.MinTopUpAmount.StringFixed(2), req.Currency))
	}

	charge, err := s.processor.CreateCharge(ctx, ports.ChargeRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: map[string]string{
			"user_id":         p.UserID,
			"type":            "topup",
			"target_currency": req.Currency,
		},
	})
	if err != nil {
		return nil, apperror.ErrProcessorUnavailable(err)
	}

	s.log.Info().
		Str("reference_id", charge.ReferenceID).
		Str("user_id", p.UserID).
		Str("amount", req.Amount.String()).
		Str("currency", req.Currency).
		Msg("top-up charge created")

	return &ports.TopUpIntent{
		ReferenceID:  charge.ReferenceID,
		ClientSecret: charge.ClientSecret,
		Amount:       charge.Amount,
		Currency:     charge.Currency,
	}, nil
}

// ConfirmTopUp credits a settled processor charge to the caller's wallet.
// Confirming the same reference twice credits once and replays afterwards.
func (s *LedgerServiceImpl) ConfirmTopUp(ctx context.Context, p domain.Principal, req ports.ConfirmTopUpRequest) (*ports.TopUpResult, error) {
	if strings.TrimSpace(req.ReferenceID) == "" {
		return nil, apperror.Validation("reference_id is required")
	}
	if err := validateAmountCurrency(req.Amount, req.Currency); err != nil {
		return nil, err
	}

	existing, err := s.txRepo.GetByExternalReference(ctx, req.ReferenceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup reference: %w", err))
	}
	if existing != nil {
		return s.topUpReplay(ctx, p, existing)
	}

	charge, err := s.processor.GetCharge(ctx, req.ReferenceID)
	if err != nil {
		return nil, apperror.ErrProcessorUnavailable(err)
	}
	if charge == nil {
		return nil, apperror.ErrNotFound("charge")
	}
	if charge.Status != ports.ChargeStatusSucceeded {
		return nil, apperror.ErrPaymentNotCompleted(charge.Status)
	}
	if charge.OwnerID == "" || charge.OwnerID != p.UserID {
		return nil, apperror.ErrOwnershipMismatch()
	}
	if !charge.Amount.Equal(req.Amount) || !strings.EqualFold(charge.Currency, req.Currency) {
		return nil, apperror.ErrChargeMismatch()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.wallets.GetOrCreate(ctx, dbTx, p.UserID, req.Currency)
	if err != nil {
		return nil, err
	}
	wallet, err = s.wallets.AdjustBalance(ctx, dbTx, wallet.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	ref := req.ReferenceID
	txn := &domain.Transaction{
		ID:                uuid.New(),
		UserID:            p.UserID,
		FromCurrency:      req.Currency,
		ToCurrency:        req.Currency,
		Amount:            req.Amount,
		Fee:               decimal.Zero,
		Type:              domain.TransactionTypeTopup,
		Status:            domain.TransactionStatusCompleted,
		Description:       "Card top-up",
		ExternalReference: &ref,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
		}
		// Lost the race to a concurrent confirm of the same charge.
		_ = dbTx.Rollback(ctx)
		winner, lerr := s.txRepo.GetByExternalReference(ctx, req.ReferenceID)
		if lerr != nil {
			return nil, apperror.InternalError(fmt.Errorf("lookup reference: %w", lerr))
		}
		if winner == nil {
			return nil, apperror.InternalError(fmt.Errorf("reference %q reported duplicate but not found", req.ReferenceID))
		}
		return s.topUpReplay(ctx, p, winner)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference_id", req.ReferenceID).
		Str("user_id", p.UserID).
		Str("amount", req.Amount.String()).
		Str("currency", req.Currency).
		Msg("top-up confirmed")

	return &ports.TopUpResult{Transaction: txn, WalletBalance: wallet.Balance}, nil
}

func (s *LedgerServiceImpl) topUpReplay(ctx context.Context, p domain.Principal, txn *domain.Transaction) (*ports.TopUpResult, error) {
	if txn.UserID != p.UserID {
		return nil, apperror.ErrOwnershipMismatch()
	}
	wallet, err := s.walletRepo.GetByUserCurrency(ctx, txn.UserID, txn.ToCurrency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	balance := decimal.Zero
	if wallet != nil {
		balance = wallet.Balance
	}
	return &ports.TopUpResult{Transaction: txn, WalletBalance: balance, Replayed: true}, nil
}

// ==================== QR payment ====================

// QRPayment debits the caller and records a PAYMENT against a verified
// vendor. The vendor's balance is not credited.
func (s *LedgerServiceImpl) QRPayment(ctx context.Context, p domain.Principal, req ports.QRPaymentRequest) (*ports.PaymentResult, error) {
	if err := validateAmountCurrency(req.Amount, req.Currency); err != nil {
		return nil, err
	}
	if req.VendorID == uuid.Nil {
		return nil, apperror.Validation("vendor_id is required")
	}

	idemKey := domain.NewIdempotencyKey(p.UserID, domain.IdempotencyScopeQRPayment, req.IdempotencyKey)
	if !idemKey.IsZero() {
		var prior ports.PaymentResult
		found, err := s.replayIdempotent(ctx, idemKey, &prior)
		if err != nil {
			return nil, err
		}
		if found {
			prior.Replayed = true
			return &prior, nil
		}
	}

	vendor, err := s.vendorRepo.GetByID(ctx, req.VendorID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vendor: %w", err))
	}
	if vendor == nil {
		return nil, apperror.ErrVendorNotFound()
	}
	if !vendor.CanReceivePayments() {
		return nil, apperror.ErrVendorNotVerified()
	}

	amount := req.Amount

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserCurrencyForUpdate(ctx, dbTx, p.UserID, req.Currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrInsufficientFunds()
	}
	wallet, err = s.wallets.AdjustBalance(ctx, dbTx, wallet.ID, amount.Neg())
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "QR payment to " + vendor.BusinessName
	}
	vendorID := vendor.ID
	txn := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       p.UserID,
		VendorID:     &vendorID,
		FromCurrency: req.Currency,
		ToCurrency:   req.Currency,
		Amount:       amount,
		Fee:          decimal.Zero,
		Type:         domain.TransactionTypePayment,
		Status:       domain.TransactionStatusCompleted,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	result := &ports.PaymentResult{Transaction: txn, WalletBalance: wallet.Balance}

	respJSON, err := s.saveIdempotent(ctx, dbTx, idemKey, txn.ID, result)
	if errors.Is(err, domain.ErrIdempotencyKeyUsed) {
		_ = dbTx.Rollback(ctx)
		var prior ports.PaymentResult
		found, rerr := s.replayIdempotent(ctx, idemKey, &prior)
		if rerr != nil {
			return nil, rerr
		}
		if !found {
			return nil, apperror.InternalError(fmt.Errorf("idempotency key %q taken but not readable", idemKey))
		}
		prior.Replayed = true
		return &prior, nil
	}
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	s.cacheIdempotent(ctx, idemKey, respJSON)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", p.UserID).
		Str("vendor_id", vendor.ID.String()).
		Str("amount", amount.String()).
		Str("currency", req.Currency).
		Msg("qr payment completed")

	return result, nil
}

// ==================== Idempotency helpers ====================

// replayIdempotent looks key up in the cache, then in idempotency_logs, and
// decodes a hit into out.
func (s *LedgerServiceImpl) replayIdempotent(ctx context.Context, key domain.IdempotencyKey, out any) (bool, error) {
	k := key.String()
	cached, err := s.idempCache.Get(ctx, k)
	if err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("idempotency cache read failed, falling through to DB")
	}
	if cached != nil {
		if err := json.Unmarshal(cached, out); err == nil {
			return true, nil
		}
		s.log.Warn().Str("key", k).Msg("unreadable idempotency cache entry ignored")
	}

	entry, err := s.idempRepo.Get(ctx, k)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if entry == nil {
		return false, nil
	}
	if err := json.Unmarshal(entry.ResponseJSON, out); err != nil {
		return false, apperror.InternalError(fmt.Errorf("decode idempotency log: %w", err))
	}
	return true, nil
}

// saveIdempotent writes the log row inside dbTx. With a zero key it is a no-op.
func (s *LedgerServiceImpl) saveIdempotent(ctx context.Context, dbTx pgx.Tx, key domain.IdempotencyKey, txID uuid.UUID, result any) ([]byte, error) {
	if key.IsZero() {
		return nil, nil
	}
	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	err = s.idempRepo.Create(ctx, dbTx, domain.NewIdempotencyLog(key, txID, respJSON, time.Now()))
	if errors.Is(err, domain.ErrIdempotencyKeyUsed) {
		return nil, err
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
	}
	return respJSON, nil
}

func (s *LedgerServiceImpl) cacheIdempotent(ctx context.Context, key domain.IdempotencyKey, respJSON []byte) {
	if key.IsZero() {
		return
	}
	if err := s.idempCache.Set(ctx, key.String(), respJSON, s.idempTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("failed to cache idempotent response")
	}
}
