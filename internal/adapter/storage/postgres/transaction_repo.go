package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Name of the partial unique index on transactions.external_reference.
const externalReferenceConstraint = "uq_transactions_external_reference"

const txColumnList = `id, user_id, vendor_id, from_currency, to_currency, amount::text,
		converted_amount::text, exchange_rate::text, fee::text, type, status, description,
		external_reference, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, user_id, vendor_id, from_currency, to_currency, amount,
		converted_amount, exchange_rate, fee, type, status, description, external_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.UserID, t.VendorID, t.FromCurrency, t.ToCurrency, t.Amount.String(),
		nullNumericArg(t.ConvertedAmount), nullNumericArg(t.ExchangeRate), t.Fee.String(),
		t.Type, t.Status, t.Description, t.ExternalReference, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, externalReferenceConstraint) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByExternalReference fetches the transaction recorded for a processor charge.
func (r *TransactionRepo) GetByExternalReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE external_reference = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

// List fetches transactions with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.VendorID != nil {
		conditions = append(conditions, fmt.Sprintf("vendor_id = $%d", argIdx))
		args = append(args, *params.VendorID)
	} else {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, params.UserID)
	}
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		txColumnList, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// SumCompletedByVendor totals completed payments received by a vendor, per currency.
func (r *TransactionRepo) SumCompletedByVendor(ctx context.Context, vendorID uuid.UUID) ([]ports.CurrencyTotal, error) {
	query := `SELECT to_currency, SUM(amount)::text, COUNT(*)
		FROM transactions
		WHERE vendor_id = $1 AND type = 'PAYMENT' AND status = 'COMPLETED'
		GROUP BY to_currency ORDER BY to_currency`

	rows, err := r.pool.Query(ctx, query, vendorID)
	if err != nil {
		return nil, fmt.Errorf("sum vendor payments: %w", err)
	}
	defer rows.Close()

	var totals []ports.CurrencyTotal
	for rows.Next() {
		var (
			ct  ports.CurrencyTotal
			sum string
		)
		if err := rows.Scan(&ct.Currency, &sum, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan vendor total: %w", err)
		}
		if ct.Total, err = parseNumeric(sum); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendor totals: %w", err)
	}
	return totals, nil
}

// Count returns the number of recorded transactions.
func (r *TransactionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
// A missing row yields nil, nil.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t               domain.Transaction
		amount, fee     string
		converted, rate *string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.VendorID, &t.FromCurrency, &t.ToCurrency, &amount,
		&converted, &rate, &fee, &t.Type, &t.Status, &t.Description,
		&t.ExternalReference, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if t.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	if t.Fee, err = parseNumeric(fee); err != nil {
		return nil, err
	}
	if t.ConvertedAmount, err = parseNullNumeric(converted); err != nil {
		return nil, err
	}
	if t.ExchangeRate, err = parseNullNumeric(rate); err != nil {
		return nil, err
	}
	return &t, nil
}
