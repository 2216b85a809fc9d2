package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateServiceImpl implements ports.RateService over the rate table.
// Rates are directional and never inverted or chained.
type RateServiceImpl struct {
	rateRepo   ports.RateRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

func NewRateService(rateRepo ports.RateRepository, transactor ports.DBTransactor, log zerolog.Logger) *RateServiceImpl {
	return &RateServiceImpl{rateRepo: rateRepo, transactor: transactor, log: log}
}

// GetRate returns nil, nil when the pair has no stored rate.
func (s *RateServiceImpl) GetRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	rate, err := s.rateRepo.Get(ctx, from, to)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get rate %s/%s: %w", from, to, err))
	}
	return rate, nil
}

func (s *RateServiceImpl) ListRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rates, err := s.rateRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list rates: %w", err))
	}
	return rates, nil
}

// UpsertRates validates every entry before writing any, then stores them all
// in one transaction.
func (s *RateServiceImpl) UpsertRates(ctx context.Context, inputs []ports.RateInput) ([]domain.ExchangeRate, error) {
	if len(inputs) == 0 {
		return nil, apperror.Validation("at least one rate is required")
	}
	for i, in := range inputs {
		if !domain.IsSupportedCurrency(in.FromCurrency) {
			return nil, apperror.ErrUnsupportedCurrency(in.FromCurrency)
		}
		if !domain.IsSupportedCurrency(in.ToCurrency) {
			return nil, apperror.ErrUnsupportedCurrency(in.ToCurrency)
		}
		if in.FromCurrency == in.ToCurrency {
			return nil, apperror.ErrSameCurrency()
		}
		if !domain.IsStorableAmount(in.Rate) {
			return nil, apperror.Validation(fmt.Sprintf("rates[%d]: rate must be greater than zero with at most %d decimal places", i, domain.MoneyScale))
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	stored := make([]domain.ExchangeRate, 0, len(inputs))
	for _, in := range inputs {
		rate := domain.ExchangeRate{
			FromCurrency: in.FromCurrency,
			ToCurrency:   in.ToCurrency,
			Rate:         domain.RoundMoney(in.Rate),
			UpdatedAt:    now,
		}
		if err := s.rateRepo.Upsert(ctx, dbTx, &rate); err != nil {
			return nil, apperror.InternalError(err)
		}
		stored = append(stored, rate)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Int("count", len(stored)).Msg("exchange rates updated")
	return stored, nil
}

// Seed upserts rates given as "FROM_TO" -> "decimal". Keys are matched case
// insensitively since viper lowercases map keys.
func (s *RateServiceImpl) Seed(ctx context.Context, seed map[string]string) error {
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inputs := make([]ports.RateInput, 0, len(seed))
	for _, k := range keys {
		from, to, ok := strings.Cut(strings.ToUpper(k), "_")
		if !ok {
			return fmt.Errorf("seed rate %q: key must look like USD_LAK", k)
		}
		rate, err := decimal.NewFromString(seed[k])
		if err != nil {
			return fmt.Errorf("seed rate %q: %w", k, err)
		}
		inputs = append(inputs, ports.RateInput{FromCurrency: from, ToCurrency: to, Rate: rate})
	}
	if len(inputs) == 0 {
		return nil
	}
	if _, err := s.UpsertRates(ctx, inputs); err != nil {
		return fmt.Errorf("seed rates: %w", err)
	}
	return nil
}
