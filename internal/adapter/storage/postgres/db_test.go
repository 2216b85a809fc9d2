package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wallet-ledger/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "testuser",
		Password:        "testpass",
		DBName:          "testdb",
		SSLMode:         "disable",
		MaxConns:        20,
		MinConns:        5,
		ConnMaxLifetime: 30 * time.Minute,
	}

	poolCfg, err := newPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(20), poolCfg.MaxConns)
	assert.Equal(t, int32(5), poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolCfg.ConnConfig.Port)
	assert.Equal(t, "testdb", poolCfg.ConnConfig.Database)
	assert.Equal(t, "testuser", poolCfg.ConnConfig.User)
}

func TestNewPoolConfig_InvalidDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "u",
		DBName:  "db",
		SSLMode: "bogus",
	}

	_, err := newPoolConfig(cfg)
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_transactions_external_reference"}

	assert.True(t, isUniqueViolation(pgErr, ""))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", pgErr), "uq_transactions_external_reference"))
	assert.False(t, isUniqueViolation(pgErr, "uq_wallets_user_currency"))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23514"}, ""))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
}

func TestParseNumeric(t *testing.T) {
	d, err := parseNumeric("1042500.00000000")
	require.NoError(t, err)
	assert.Equal(t, "1042500", d.String())

	_, err = parseNumeric("NaN")
	assert.Error(t, err)

	n, err := parseNullNumeric(nil)
	require.NoError(t, err)
	assert.Nil(t, n)

	s := "0.25"
	n, err = parseNullNumeric(&s)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "0.25", n.String())
	assert.Equal(t, &s, nullNumericArg(n))
	assert.Nil(t, nullNumericArg(nil))
}

func expectSchema(mock pgxmock.PgxPoolIface, missing ...string) {
	rows := pgxmock.NewRows([]string{"t"})
	for _, name := range missing {
		rows.AddRow(name)
	}
	mock.ExpectQuery("to_regclass").WithArgs(ledgerTables).WillReturnRows(rows)
}

func TestCheckSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchema(mock)
	assert.NoError(t, checkSchema(context.Background(), mock))

	expectSchema(mock, "wallets", "audit_logs")
	err = checkSchema(context.Background(), mock)
	assert.ErrorContains(t, err, "missing tables: wallets, audit_logs")

	mock.ExpectQuery("to_regclass").WillReturnError(errors.New("conn refused"))
	assert.ErrorContains(t, checkSchema(context.Background(), mock), "check schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginReadCommitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).WillReturnError(errors.New("too many connections"))

	tx, err := NewTransactor(mock).Begin(context.Background())
	assert.Nil(t, tx)
	assert.ErrorContains(t, err, "begin ledger tx")
}

func TestHealthCheck_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hc := NewHealthCheck(mock)
	assert.Equal(t, "postgres", hc.Name())

	mock.ExpectPing()
	expectSchema(mock)
	assert.NoError(t, hc.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	assert.ErrorContains(t, hc.Ping(context.Background()), "ping postgres")

	mock.ExpectPing()
	expectSchema(mock, "vendors")
	assert.ErrorContains(t, hc.Ping(context.Background()), "vendors")
	assert.NoError(t, mock.ExpectationsWereMet())
}
