package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TrimVideoUseCase cuts a source video down to a user-chosen time window by
// re-encoding it through the same assembly mechanism the render pipeline
// uses.
type TrimVideoUseCase struct {
	jobRunner
	storage port.VideoStorage
	media   port.Media
	tempDir string
}

type TrimVideoConfig struct {
	TempDir    string
	MaxRetries int
}

func NewTrimVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	media port.Media,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg TrimVideoConfig,
) *TrimVideoUseCase {
	return &TrimVideoUseCase{
		jobRunner: jobRunner{
			repo:      repo,
			publisher: publisher,
			dlq:       dlq,
			notifier:  notifier,
			logger:    logger,
			maxRetry:  cfg.MaxRetries,
		},
		storage: storage,
		media:   media,
		tempDir: cfg.TempDir,
	}
}

func (uc *TrimVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "TrimVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.TrimRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	if msg.EndTime <= msg.StartTime || msg.StartTime < 0 {
		uc.logger.Error("invalid trim window",
			zap.Float64("start", msg.StartTime), zap.Float64("end", msg.EndTime))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, fmt.Sprintf("invalid trim window [%.3f, %.3f]", msg.StartTime, msg.EndTime))
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.Float64("trim.start", msg.StartTime),
		attribute.Float64("trim.end", msg.EndTime),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(entity.JobKindTrim, msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, rawMsg, msg.UserEmail, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.trimPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}
	if job.Status == entity.JobStatusFailed {
		// Permanent failure already routed to the DLQ.
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(entity.JobKindTrim), "completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *TrimVideoUseCase) trimPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.TrimRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "download_video: "+err.Error(), log)
	}
	spanDl.End()

	src, err := uc.media.Open(ctx, videoPath)
	if err != nil {
		log.Error("failed to open source video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "open_video: "+err.Error(), log)
	}

	trimStart := time.Now()
	ctxTrim, spanTrim := tracer.Start(ctx, "trim_video")
	lastLogged := -1
	video, err := src.Trim(ctxTrim, msg.StartTime, msg.EndTime, func(p float64) {
		// Log every 10% step.
		step := int(p * 10)
		if step > lastLogged {
			lastLogged = step
			log.Debug("trim progress", zap.Float64("progress", p))
		}
	})
	spanTrim.End()
	if err != nil {
		log.Error("trim failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "trim_video: "+err.Error(), log)
	}
	metrics.JobStageDuration.WithLabelValues("trim").Observe(time.Since(trimStart).Seconds())

	base := strings.TrimSuffix(filepath.Base(msg.VideoKey), filepath.Ext(msg.VideoKey))
	resultKey := fmt.Sprintf("%s/trimmed_%s_%s.%s", msg.UserID, base, job.ID.String(), video.Extension)

	ctxUp, spanUp := tracer.Start(ctx, "upload_render")
	if err := uc.storage.UploadRender(ctxUp, resultKey, bytes.NewReader(video.Data), int64(len(video.Data)), video.ContentType); err != nil {
		spanUp.End()
		log.Error("trim upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "upload_render: "+err.Error(), log)
	}
	spanUp.End()

	outDuration := msg.EndTime - msg.StartTime
	summary := fmt.Sprintf("Trimmed to %.2fs-%.2fs.", msg.StartTime, msg.EndTime)
	job.MarkCompleted(resultKey, 0, 0, video.FPS, outDuration, summary)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("trim completed",
		zap.Float64("start", msg.StartTime),
		zap.Float64("end", msg.EndTime),
		zap.String("result_key", resultKey),
	)

	return nil
}
