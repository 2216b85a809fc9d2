package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const rateColumnList = `from_currency, to_currency, rate::text, updated_at`

// RateRepo implements ports.RateRepository.
type RateRepo struct {
	pool Pool
}

// NewRateRepo creates a new RateRepo.
func NewRateRepo(pool Pool) *RateRepo {
	return &RateRepo{pool: pool}
}

// Get fetches the rate for an exact directional pair. A missing pair yields nil, nil.
func (r *RateRepo) Get(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	query := `SELECT ` + rateColumnList + ` FROM exchange_rates WHERE from_currency = $1 AND to_currency = $2`

	rate, err := scanRate(r.pool.QueryRow(ctx, query, from, to))
	if err != nil {
		return nil, fmt.Errorf("get exchange rate: %w", err)
	}
	return rate, nil
}

// List returns every stored pair.
func (r *RateRepo) List(ctx context.Context) ([]domain.ExchangeRate, error) {
	query := `SELECT ` + rateColumnList + ` FROM exchange_rates ORDER BY from_currency, to_currency`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.ExchangeRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange rate row: %w", err)
		}
		rates = append(rates, *rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rate rows: %w", err)
	}
	return rates, nil
}

// Upsert overwrites or inserts the rate for its pair within a transaction.
func (r *RateRepo) Upsert(ctx context.Context, tx pgx.Tx, rate *domain.ExchangeRate) error {
	query := `INSERT INTO exchange_rates (from_currency, to_currency, rate, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_currency, to_currency)
		DO UPDATE SET rate = EXCLUDED.rate, updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query, rate.FromCurrency, rate.ToCurrency, rate.Rate.String(), rate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert exchange rate %s/%s: %w", rate.FromCurrency, rate.ToCurrency, err)
	}
	return nil
}

func scanRate(row pgx.Row) (*domain.ExchangeRate, error) {
	var (
		rate domain.ExchangeRate
		raw  string
	)
	err := row.Scan(&rate.FromCurrency, &rate.ToCurrency, &raw, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rate.Rate, err = parseNumeric(raw); err != nil {
		return nil, err
	}
	return &rate, nil
}
