package queue

import (
	"context"
	"fmt"

	"wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const reconcileMaxAttempts = 12

// ReconcileTopUpArgs is the river payload for a reconcile job.
type ReconcileTopUpArgs struct {
	ReferenceID string          `json:"reference_id" river:"unique"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (ReconcileTopUpArgs) Kind() string { return "reconcile_topup" }

func argsFromJob(job ports.ReconcileTopUpJob) ReconcileTopUpArgs {
	return ReconcileTopUpArgs{
		ReferenceID: job.ReferenceID,
		UserID:      job.UserID,
		Amount:      job.Amount,
		Currency:    job.Currency,
	}
}

// ReconcileTopUpWorker executes reconcile_topup jobs.
type ReconcileTopUpWorker struct {
	river.WorkerDefaults[ReconcileTopUpArgs]
	reconciler *Reconciler
}

func NewReconcileTopUpWorker(reconciler *Reconciler) *ReconcileTopUpWorker {
	return &ReconcileTopUpWorker{reconciler: reconciler}
}

func (w *ReconcileTopUpWorker) Work(ctx context.Context, job *river.Job[ReconcileTopUpArgs]) error {
	err := w.reconciler.Reconcile(ctx, ports.ReconcileTopUpJob{
		ReferenceID: job.Args.ReferenceID,
		UserID:      job.Args.UserID,
		Amount:      job.Args.Amount,
		Currency:    job.Args.Currency,
	})
	if IsPermanent(err) {
		return river.JobCancel(err)
	}
	return err
}

// Migrate applies river's own schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	log.Info().Int("applied", len(res.Versions)).Msg("river migrations applied")
	return nil
}

// NewRiverClient builds a client that inserts and works reconcile jobs and
// schedules the hourly idempotency purge.
func NewRiverClient(pool *pgxpool.Pool, reconciler *Reconciler, purger *PurgeIdempotencyWorker, maxWorkers int) (*river.Client[pgx.Tx], error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, NewReconcileTopUpWorker(reconciler))
	river.AddWorker(workers, purger)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{purgePeriodicJob()},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}

// RiverQueue implements ports.ReconcileQueue with river jobs. Jobs are unique
// per reference while pending, so repeated webhooks collapse into one job.
type RiverQueue struct {
	insert func(ctx context.Context, args ReconcileTopUpArgs, opts *river.InsertOpts) error
	log    zerolog.Logger
}

func NewRiverQueue(client *river.Client[pgx.Tx], log zerolog.Logger) *RiverQueue {
	return &RiverQueue{
		insert: func(ctx context.Context, args ReconcileTopUpArgs, opts *river.InsertOpts) error {
			_, err := client.Insert(ctx, args, opts)
			return err
		},
		log: log,
	}
}

func (q *RiverQueue) EnqueueTopUpReconcile(ctx context.Context, job ports.ReconcileTopUpJob) error {
	opts := &river.InsertOpts{
		MaxAttempts: reconcileMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
	if err := q.insert(ctx, argsFromJob(job), opts); err != nil {
		return fmt.Errorf("insert reconcile job: %w", err)
	}
	q.log.Debug().Str("reference_id", job.ReferenceID).Msg("reconcile job inserted")
	return nil
}
