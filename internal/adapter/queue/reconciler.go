// Package queue runs top-up reconciliation outside the request path: river
// jobs on Postgres, or inline when the ledger runs in memory.
package queue

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// permanentError marks a reconcile failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err should stop further attempts.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// permanentCodes cancel the job. PaymentNotCompleted is absent: a charge that
// has not settled yet is retried until river runs out of attempts.
var permanentCodes = []string{
	apperror.CodeOwnershipMismatch,
	apperror.CodeChargeMismatch,
	apperror.CodeInvalidAmount,
	apperror.CodeUnsupportedCurrency,
	apperror.CodeValidation,
	apperror.CodeNotFound,
}

// Reconciler confirms a settled charge on behalf of its owner.
type Reconciler struct {
	ledger ports.LedgerService
	log    zerolog.Logger
}

func NewReconciler(ledger ports.LedgerService, log zerolog.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, log: log}
}

// Reconcile credits the charge. A charge the user already confirmed through
// the API comes back as a replay and is not credited again.
func (r *Reconciler) Reconcile(ctx context.Context, job ports.ReconcileTopUpJob) error {
	p := domain.Principal{UserID: job.UserID, Role: domain.RoleUser}
	res, err := r.ledger.ConfirmTopUp(ctx, p, ports.ConfirmTopUpRequest{
		ReferenceID: job.ReferenceID,
		Amount:      job.Amount,
		Currency:    job.Currency,
	})
	if err != nil {
		for _, code := range permanentCodes {
			if apperror.IsCode(err, code) {
				return &permanentError{err: err}
			}
		}
		return fmt.Errorf("reconcile %s: %w", job.ReferenceID, err)
	}

	r.log.Info().
		Str("reference_id", job.ReferenceID).
		Str("user_id", job.UserID).
		Bool("replayed", res.Replayed).
		Msg("top-up reconciled")
	return nil
}

// InlineQueue runs reconciliation synchronously in the caller's goroutine.
type InlineQueue struct {
	reconciler *Reconciler
	log        zerolog.Logger
}

func NewInlineQueue(reconciler *Reconciler, log zerolog.Logger) *InlineQueue {
	return &InlineQueue{reconciler: reconciler, log: log}
}

// EnqueueTopUpReconcile returns only transient failures, so the processor
// retries those and nothing else.
func (q *InlineQueue) EnqueueTopUpReconcile(ctx context.Context, job ports.ReconcileTopUpJob) error {
	err := q.reconciler.Reconcile(ctx, job)
	if IsPermanent(err) {
		q.log.Warn().Err(err).Str("reference_id", job.ReferenceID).Msg("top-up reconcile abandoned")
		return nil
	}
	return err
}
