package processor

import (
	"context"
	"strings"
	"sync"

	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sandbox is an in-process processor for local runs. Every charge settles
// as soon as it is created unless a test moves it to another status.
type Sandbox struct {
	mu      sync.Mutex
	charges map[string]ports.Charge
	log     zerolog.Logger
}

func NewSandbox(log zerolog.Logger) *Sandbox {
	return &Sandbox{charges: make(map[string]ports.Charge), log: log}
}

func (s *Sandbox) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "pi_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ch := ports.Charge{
		ReferenceID:  id,
		Status:       ports.ChargeStatusSucceeded,
		Amount:       fromMinorUnits(toMinorUnits(req.Amount)),
		Currency:     strings.ToUpper(req.Currency),
		OwnerID:      req.Metadata[metaUserID],
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
	}

	s.mu.Lock()
	s.charges[id] = ch
	s.mu.Unlock()

	s.log.Debug().Str("reference_id", id).Msg("sandbox charge created")
	return &ch, nil
}

func (s *Sandbox) GetCharge(ctx context.Context, referenceID string) (*ports.Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.charges[referenceID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *Sandbox) ParseEvent(payload []byte) (*ports.ProcessorEvent, error) {
	return ParseEvent(payload)
}

// SetStatus moves an existing charge to status. It reports false for an
// unknown reference.
func (s *Sandbox) SetStatus(referenceID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.charges[referenceID]
	if !ok {
		return false
	}
	ch.Status = status
	s.charges[referenceID] = ch
	return true
}
