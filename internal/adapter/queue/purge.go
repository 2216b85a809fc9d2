package queue

import (
	"context"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

const purgeInterval = time.Hour

// PurgeIdempotencyArgs is the payload of the periodic idempotency log purge.
type PurgeIdempotencyArgs struct{}

func (PurgeIdempotencyArgs) Kind() string { return "purge_idempotency_logs" }

// PurgeIdempotencyWorker deletes idempotency logs older than the retention
// window. Keys past retention are treated as new requests.
type PurgeIdempotencyWorker struct {
	river.WorkerDefaults[PurgeIdempotencyArgs]
	repo      ports.IdempotencyRepository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewPurgeIdempotencyWorker(repo ports.IdempotencyRepository, retention time.Duration, log zerolog.Logger) *PurgeIdempotencyWorker {
	return &PurgeIdempotencyWorker{repo: repo, retention: retention, now: time.Now, log: log}
}

func (w *PurgeIdempotencyWorker) Work(ctx context.Context, _ *river.Job[PurgeIdempotencyArgs]) error {
	cutoff := w.now().UTC().Add(-w.retention)
	n, err := w.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("idempotency logs purged")
	}
	return nil
}

func purgePeriodicJob() *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(purgeInterval),
		func() (river.JobArgs, *river.InsertOpts) {
			return PurgeIdempotencyArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
