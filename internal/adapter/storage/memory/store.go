// Package memory is a process-local implementation of the storage ports.
// Row locks are real: a wallet locked through a transaction stays locked
// until that transaction commits or rolls back, so ledger operations
// serialize exactly as they do against Postgres.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errTxClosed = errors.New("memory: transaction already closed")

// Store holds committed state. Writes made through a transaction are staged
// on the transaction and applied under mu at commit.
type Store struct {
	mu sync.RWMutex

	wallets     map[uuid.UUID]domain.Wallet
	walletIndex map[string]uuid.UUID

	transactions map[uuid.UUID]domain.Transaction
	txOrder      []uuid.UUID
	references   map[string]uuid.UUID

	rates       map[string]domain.ExchangeRate
	vendors     map[uuid.UUID]domain.Vendor
	idempotency map[string]domain.IdempotencyLog
	audit       []domain.AuditLog

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{
		wallets:      make(map[uuid.UUID]domain.Wallet),
		walletIndex:  make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID]domain.Transaction),
		references:   make(map[string]uuid.UUID),
		rates:        make(map[string]domain.ExchangeRate),
		vendors:      make(map[uuid.UUID]domain.Vendor),
		idempotency:  make(map[string]domain.IdempotencyLog),
		locks:        make(map[string]chan struct{}),
	}
}

func walletKey(userID, currency string) string { return userID + "|" + currency }

func rateKey(from, to string) string { return from + "|" + to }

func (s *Store) lockChan(key string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// Begin opens a transaction. It satisfies ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{store: s, held: make(map[string]chan struct{})}, nil
}

// Ping satisfies ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Name() string { return "memory" }

func (s *Store) Critical() bool { return true }

// PutVendor adds or replaces a vendor row. The vendor directory is read-only
// to the ledger, so this is how dev mode and tests populate it.
func (s *Store) PutVendor(v domain.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[v.ID] = v
}

// Tx is a pgx.Tx over the memory store. Only Commit and Rollback carry
// meaning; the SQL methods exist to satisfy the interface and fail loudly.
type Tx struct {
	store  *Store
	closed bool

	held map[string]chan struct{}

	walletWrites map[uuid.UUID]domain.Wallet
	newWallets   map[string]uuid.UUID
	txns         []domain.Transaction
	rates        []domain.ExchangeRate
	idem         []domain.IdempotencyLog
}

// lock takes the row lock for key unless this transaction already holds it.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.closed {
		return errTxClosed
	}
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.store.lockChan(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire row lock: %w", ctx.Err())
	}
}

// claim locks a unique key (an external reference or idempotency key). A
// second writer of the same key waits for the first transaction to finish,
// then sees its committed row, as with a unique index insert in Postgres.
func (t *Tx) claim(ctx context.Context, key string) error {
	return t.lock(ctx, "uniq:"+key)
}

func (t *Tx) release() {
	for k, ch := range t.held {
		<-ch
		delete(t.held, k)
	}
	t.closed = true
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return errTxClosed
	}
	s := t.store
	s.mu.Lock()
	for key, id := range t.newWallets {
		s.walletIndex[key] = id
	}
	for id, w := range t.walletWrites {
		s.wallets[id] = w
	}
	for _, txn := range t.txns {
		s.transactions[txn.ID] = txn
		s.txOrder = append(s.txOrder, txn.ID)
		if txn.ExternalReference != nil {
			s.references[*txn.ExternalReference] = txn.ID
		}
	}
	for _, r := range t.rates {
		s.rates[rateKey(r.FromCurrency, r.ToCurrency)] = r
	}
	for _, l := range t.idem {
		s.idempotency[l.Key] = l
	}
	s.mu.Unlock()

	t.release()
	return nil
}

// Rollback discards staged writes. Calling it after Commit is a no-op, which
// is what the deferred Rollback in every service relies on.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.release()
	return nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

func (t *Tx) CopyFrom(ctx context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}

func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *Tx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.ErrUnsupported
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{}
}

func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errors.ErrUnsupported }

// asTx recovers the memory transaction behind a pgx.Tx.
func asTx(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, fmt.Errorf("memory: foreign transaction type %T", tx)
	}
	if mt.closed {
		return nil, errTxClosed
	}
	return mt, nil
}
