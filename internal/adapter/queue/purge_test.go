package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/internal/core/ports/mocks"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestPurgeIdempotencyWorker_Work(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIdempotencyRepository(ctrl)
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	w := NewPurgeIdempotencyWorker(repo, 720*time.Hour, zerolog.Nop())
	w.now = func() time.Time { return now }

	repo.EXPECT().PurgeBefore(gomock.Any(), now.Add(-720*time.Hour)).Return(int64(3), nil)
	assert.NoError(t, w.Work(context.Background(), &river.Job[PurgeIdempotencyArgs]{}))

	repo.EXPECT().PurgeBefore(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("statement timeout"))
	assert.ErrorContains(t, w.Work(context.Background(), &river.Job[PurgeIdempotencyArgs]{}), "statement timeout")
}

func TestPurgePeriodicJob(t *testing.T) {
	assert.Equal(t, "purge_idempotency_logs", PurgeIdempotencyArgs{}.Kind())
	assert.NotNil(t, purgePeriodicJob())
}
