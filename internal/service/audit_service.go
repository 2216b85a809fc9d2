package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	auditBuffer       = 1024
	auditWriteTimeout = 5 * time.Second
)

// AuditService writes audit entries from a single background worker. Log
// never blocks: when the buffer is full the entry is dropped and counted.
type AuditService struct {
	repo    ports.AuditRepository
	log     zerolog.Logger
	entries chan *domain.AuditLog
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAuditService starts the writer. With a nil repo entries only reach the
// log. Call Close to flush on shutdown.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditService {
	s := &AuditService{
		repo:    repo,
		log:     log,
		entries: make(chan *domain.AuditLog, auditBuffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AuditService) Log(_ context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ResourceType == "" {
		entry.ResourceType = entry.Action.Resource()
	}

	select {
	case s.entries <- entry:
	default:
		n := s.dropped.Add(1)
		s.log.Warn().Str("action", string(entry.Action)).Int64("dropped", n).Msg("audit buffer full, entry dropped")
	}
}

// Dropped reports how many entries were lost to a full buffer.
func (s *AuditService) Dropped() int64 { return s.dropped.Load() }

// Close stops accepting entries and waits until the buffer is written or ctx
// expires. Log must not be called after Close.
func (s *AuditService) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.entries) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) run() {
	defer close(s.done)
	for entry := range s.entries {
		s.write(entry)
	}
}

func (s *AuditService) write(entry *domain.AuditLog) {
	ev := s.log.Info().
		Str("action", string(entry.Action)).
		Str("resource_id", entry.ResourceID).
		Str("request_id", entry.RequestID).
		Int("status", entry.Status)
	if entry.UserID != nil {
		ev = ev.Str("user_id", *entry.UserID)
	}
	ev.Msg("audit")

	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
	}
}
