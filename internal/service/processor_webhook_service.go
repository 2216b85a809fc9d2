package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	processorEventScope = "processor_event"
	// Processors retry undelivered events for up to three days.
	processorEventTTL = 72 * time.Hour
)

// processorWebhookService implements ports.ProcessorWebhookService.
type processorWebhookService struct {
	sigSvc    ports.SignatureService
	processor ports.PaymentProcessor
	nonces    ports.NonceStore
	queue     ports.ReconcileQueue
	secret    string
	tolerance time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewProcessorWebhookService creates the inbound processor webhook handler.
func NewProcessorWebhookService(
	sigSvc ports.SignatureService,
	processor ports.PaymentProcessor,
	nonces ports.NonceStore,
	queue ports.ReconcileQueue,
	secret string,
	tolerance time.Duration,
	log zerolog.Logger,
) ports.ProcessorWebhookService {
	return &processorWebhookService{
		sigSvc:    sigSvc,
		processor: processor,
		nonces:    nonces,
		queue:     queue,
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
		log:       log,
	}
}

// HandleEvent verifies the signature header, drops replays and enqueues a
// reconcile job for settled charges.
func (s *processorWebhookService) HandleEvent(ctx context.Context, signatureHeader string, body []byte) (*ports.WebhookAck, error) {
	err := s.sigSvc.VerifyHeader(s.secret, signatureHeader, body, s.now(), s.tolerance)
	switch {
	case errors.Is(err, domain.ErrSignatureExpired):
		return nil, apperror.ErrTimestampExpired()
	case err != nil:
		s.log.Debug().Err(err).Msg("processor webhook rejected")
		return nil, apperror.ErrInvalidSignature()
	}

	event, err := s.processor.ParseEvent(body)
	if err != nil || event.ID == "" {
		return nil, apperror.Validation("malformed processor event")
	}

	fresh, err := s.nonces.CheckAndSet(ctx, processorEventScope, event.ID, processorEventTTL)
	if err != nil {
		// Reconciliation is idempotent, so a second delivery is harmless.
		s.log.Warn().Err(err).Str("event_id", event.ID).Msg("event de-dup unavailable, processing anyway")
		fresh = true
	}
	if !fresh {
		s.log.Info().Str("event_id", event.ID).Msg("duplicate processor event ignored")
		return &ports.WebhookAck{EventID: event.ID, Duplicate: true}, nil
	}

	ack := &ports.WebhookAck{EventID: event.ID}
	if !isSettledCharge(event) {
		s.log.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("processor event ignored")
		return ack, nil
	}
	if event.Charge.OwnerID == "" {
		s.log.Warn().Str("event_id", event.ID).Str("reference_id", event.Charge.ReferenceID).Msg("settled charge has no owner metadata")
		return ack, nil
	}

	job := ports.ReconcileTopUpJob{
		ReferenceID: event.Charge.ReferenceID,
		UserID:      event.Charge.OwnerID,
		Amount:      event.Charge.Amount,
		Currency:    event.Charge.Currency,
	}
	if err := s.queue.EnqueueTopUpReconcile(ctx, job); err != nil {
		// Let the processor's retry through the de-dup check.
		if ferr := s.nonces.Forget(ctx, processorEventScope, event.ID); ferr != nil {
			s.log.Warn().Err(ferr).Str("event_id", event.ID).Msg("failed to release event id")
		}
		return nil, apperror.ErrServiceUnavailable(fmt.Errorf("enqueue reconcile: %w", err))
	}

	s.log.Info().
		Str("event_id", event.ID).
		Str("reference_id", job.ReferenceID).
		Str("user_id", job.UserID).
		Msg("top-up reconcile enqueued")

	ack.Enqueued = true
	return ack, nil
}

func isSettledCharge(event *ports.ProcessorEvent) bool {
	if event.Type != ports.EventChargeSucceeded && event.Type != ports.EventPaymentIntentSucceeded {
		return false
	}
	return event.Charge != nil && event.Charge.Status == ports.ChargeStatusSucceeded
}
