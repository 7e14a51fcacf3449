package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// jobRunner carries the bookkeeping shared by the render and trim usecases:
// job state transitions, retry accounting, DLQ routing, status publishing
// and failure notification.
type jobRunner struct {
	repo      port.JobRepository
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	maxRetry  int
}

func (r *jobRunner) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	userEmail string,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = r.repo.Update(ctx, job)

	if !job.CanRetry() {
		return r.handlePermanentFailure(ctx, job, rawMsg, userEmail, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	r.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (r *jobRunner) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	userEmail string,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = r.repo.Update(ctx, job)

	_ = r.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	r.publishStatus(ctx, job, r.logger)

	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "dlq").Inc()

	if userEmail != "" {
		_ = r.notifier.NotifyFailure(ctx, userEmail, job.ID.String(), job.VideoKey, errMsg)
	}

	return nil
}

func (r *jobRunner) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.RenderStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Kind:          job.Kind,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		ResultKey:     job.ResultKey,
		OverlayPrefix: job.OverlayPrefix,
		FallbackKey:   job.FallbackKey,
		FrameCount:    job.FrameCount,
		ObjectCount:   job.ObjectCount,
		SourceRate:    job.SourceRate,
		Duration:      job.VideoDuration,
		Summary:       job.Summary,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := r.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
