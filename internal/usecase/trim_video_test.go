package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTrimEnv(t *testing.T, media *fakeMedia) (*TrimVideoUseCase, *fakeRepo, *fakeStorage, *fakePublisher, *fakeDLQ) {
	t.Helper()
	repo := newFakeRepo()
	storage := newFakeStorage()
	publisher := &fakePublisher{}
	dlq := &fakeDLQ{}
	uc := NewTrimVideoUseCase(
		repo, storage, media, publisher, dlq, &fakeNotifier{},
		zap.NewNop(),
		TrimVideoConfig{TempDir: t.TempDir(), MaxRetries: 3},
	)
	return uc, repo, storage, publisher, dlq
}

func trimMsg(t *testing.T, start, end float64) (entity.TrimRequestMessage, []byte) {
	t.Helper()
	msg := entity.TrimRequestMessage{
		JobID:     uuid.New(),
		UserID:    "u1",
		VideoKey:  "u1/holiday.mp4",
		FileSize:  2048,
		StartTime: start,
		EndTime:   end,
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return msg, raw
}

func TestTrimHappyPath(t *testing.T) {
	media := &fakeMedia{meta: port.MediaMeta{Duration: 10, Width: 64, Height: 48}}
	uc, repo, storage, publisher, dlq := newTrimEnv(t, media)
	msg, raw := trimMsg(t, 1.5, 4.0)

	require.NoError(t, uc.Execute(context.Background(), raw))

	job, err := repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Contains(t, job.ResultKey, "trimmed_holiday_")
	assert.InDelta(t, 2.5, job.VideoDuration, 1e-9)
	assert.Equal(t, "Trimmed to 1.50s-4.00s.", job.Summary)

	assert.Contains(t, storage.renders, job.ResultKey)
	assert.Equal(t, entity.JobStatusCompleted, publisher.last().Status)
	assert.Empty(t, dlq.reasons)
}

func TestTrimInvalidWindowGoesToDLQ(t *testing.T) {
	media := &fakeMedia{meta: port.MediaMeta{Duration: 10}}
	uc, _, _, _, dlq := newTrimEnv(t, media)
	_, raw := trimMsg(t, 4.0, 1.5)

	require.NoError(t, uc.Execute(context.Background(), raw))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "invalid trim window")
}
