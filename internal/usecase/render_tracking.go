package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	"github.com/reelmask/reelmask-render-service/internal/overlay"
	"github.com/reelmask/reelmask-render-service/internal/rate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RenderTrackingUseCase runs the full reconstruction pipeline for one job:
// obtain per-frame masks from the tracking model, pull the matching frames
// out of the source video, bake the colored overlays in, and re-assemble a
// correctly paced video.
type RenderTrackingUseCase struct {
	jobRunner
	storage  port.VideoStorage
	model    port.TrackingModel
	media    port.Media
	registry port.OverlayRegistry
	tempDir  string
	alpha    float64
}

type RenderTrackingConfig struct {
	TempDir      string
	MaxRetries   int
	OverlayAlpha float64
}

func NewRenderTrackingUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	model port.TrackingModel,
	media port.Media,
	registry port.OverlayRegistry,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg RenderTrackingConfig,
) *RenderTrackingUseCase {
	return &RenderTrackingUseCase{
		jobRunner: jobRunner{
			repo:      repo,
			publisher: publisher,
			dlq:       dlq,
			notifier:  notifier,
			logger:    logger,
			maxRetry:  cfg.MaxRetries,
		},
		storage:  storage,
		model:    model,
		media:    media,
		registry: registry,
		tempDir:  cfg.TempDir,
		alpha:    cfg.OverlayAlpha,
	}
}

func (uc *RenderTrackingUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "RenderTrackingUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.RenderRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(entity.JobKindRender, msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
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

	if err := uc.renderPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}
	if job.Status == entity.JobStatusFailed {
		// Permanent failure already routed to the DLQ.
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(entity.JobKindRender), "completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *RenderTrackingUseCase) renderPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.RenderRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download source video
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	src, err := uc.media.Open(ctx, videoPath)
	if err != nil {
		log.Error("failed to open source video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "open_video: "+err.Error(), log)
	}
	meta := src.Meta()

	// Remote tracking
	trackStart := time.Now()
	ctxTr, spanTr := tracer.Start(ctx, "track_objects")
	tracking, err := uc.model.Track(ctxTr, videoPath, msg.Prompt)
	spanTr.End()
	if err != nil {
		log.Error("tracking model call failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "track_objects: "+err.Error(), log)
	}
	metrics.JobStageDuration.WithLabelValues("track").Observe(time.Since(trackStart).Seconds())

	est := rate.Reconcile(meta.Duration, tracking.MaxFrameIndex(), meta.FPS)
	log.Info("rates reconciled",
		zap.Int("sampled_rate", est.SampledRate),
		zap.Int("source_rate", est.SourceRate),
		zap.Float64("duration", meta.Duration),
		zap.Float64("probed_fps", meta.FPS),
	)

	// Frame extraction
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "extract_frames")
	frames, err := src.ExtractFrames(ctxEx, tracking.FrameIndices(), est.SampledRate)
	spanEx.End()
	if err != nil {
		log.Error("frame extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "extract_frames: "+err.Error(), log)
	}
	if len(frames) == 0 {
		log.Error("no frames could be extracted")
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "extract_frames: no frames extracted", log)
	}
	metrics.JobStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	// Compositing
	compStart := time.Now()
	_, spanComp := tracer.Start(ctx, "composite_overlays")
	compositor := overlay.NewCompositor(uc.alpha, nil, log)
	annotated := make([]image.Image, 0, len(frames))
	for _, frame := range frames {
		pkt := tracking.PacketFor(frame.Index)
		annotated = append(annotated, compositor.Composite(frame.Image, pkt))
		if pkt != nil {
			metrics.MasksCompositedTotal.Add(float64(len(pkt.Masks)))
		}
	}
	spanComp.End()
	metrics.JobStageDuration.WithLabelValues("composite").Observe(time.Since(compStart).Seconds())

	// Retain the overlay sequence for the live synchronizer.
	overlayPrefix := fmt.Sprintf("%s/%s", msg.UserID, job.ID.String())
	uc.uploadOverlays(ctx, overlayPrefix, annotated, log)
	job.OverlayPrefix = overlayPrefix

	summary := fmt.Sprintf("Tracked %d frames. Found %d object(s).", len(annotated), tracking.ObjectCount())

	// Assembly
	asmStart := time.Now()
	ctxAsm, spanAsm := tracer.Start(ctx, "assemble_video")
	video, err := src.Assemble(ctxAsm, annotated, est.SourceRate)
	spanAsm.End()
	if err != nil {
		// Assembly is all-or-nothing, but the annotated frames survived:
		// surface the first one as a fallback display artifact instead of
		// failing the job.
		log.Error("video assembly failed, falling back to first frame", zap.Error(err))
		return uc.completeWithFallback(ctx, job, msg, rawMsg, annotated[0], len(annotated), tracking.ObjectCount(), meta.Duration, summary, log)
	}
	metrics.JobStageDuration.WithLabelValues("assemble").Observe(time.Since(asmStart).Seconds())

	// Upload result
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_render")
	resultKey := fmt.Sprintf("%s/render_%s.%s", msg.UserID, job.ID.String(), video.Extension)
	if err := uc.storage.UploadRender(ctxUp, resultKey, bytes.NewReader(video.Data), int64(len(video.Data)), video.ContentType); err != nil {
		spanUp.End()
		log.Error("render upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "upload_render: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	outDuration := float64(len(annotated)) / float64(video.FPS)
	job.MarkCompleted(resultKey, len(annotated), tracking.ObjectCount(), est.SourceRate, outDuration, summary)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	if uc.registry != nil {
		uc.registry.RegisterOverlays(job.ID.String(), len(annotated), meta.Duration, overlayPrefix)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("render completed",
		zap.Int("frame_count", len(annotated)),
		zap.Int("object_count", tracking.ObjectCount()),
		zap.Int("source_rate", est.SourceRate),
		zap.Float64("output_duration", outDuration),
		zap.String("result_key", resultKey),
	)

	return nil
}

// uploadOverlays stores the annotated PNG sequence. Overlay uploads are
// auxiliary to the baked video; a single failed upload is logged and the
// rest continue.
func (uc *RenderTrackingUseCase) uploadOverlays(ctx context.Context, prefix string, annotated []image.Image, log *zap.Logger) {
	for i, img := range annotated {
		buf := &bytes.Buffer{}
		if err := png.Encode(buf, img); err != nil {
			log.Warn("failed to encode overlay frame", zap.Int("frame", i), zap.Error(err))
			continue
		}
		key := fmt.Sprintf("%s/frame_%04d.png", prefix, i)
		if err := uc.storage.UploadOverlay(ctx, key, buf, int64(buf.Len())); err != nil {
			log.Warn("failed to upload overlay frame", zap.String("key", key), zap.Error(err))
		}
	}
}

func (uc *RenderTrackingUseCase) completeWithFallback(
	ctx context.Context,
	job *entity.Job,
	msg entity.RenderRequestMessage,
	rawMsg []byte,
	first image.Image,
	frameCount, objectCount int,
	sourceDuration float64,
	summary string,
	log *zap.Logger,
) error {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, first); err != nil {
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "encode_fallback: "+err.Error(), log)
	}

	fallbackKey := fmt.Sprintf("%s/render_%s_first_frame.png", msg.UserID, job.ID.String())
	if err := uc.storage.UploadRender(ctx, fallbackKey, buf, int64(buf.Len()), "image/png"); err != nil {
		return uc.handleRetryableFailure(ctx, job, rawMsg, msg.UserEmail, "upload_fallback: "+err.Error(), log)
	}

	job.MarkCompletedWithFallback(fallbackKey, frameCount, objectCount,
		summary+" (Video creation failed, showing first frame)")
	if err := uc.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job completed with fallback: %w", err)
	}

	// The overlay sequence is the only moving picture this job has left, so
	// live viewing leans on it; expose it to the sync endpoint.
	if uc.registry != nil {
		uc.registry.RegisterOverlays(job.ID.String(), frameCount, sourceDuration, job.OverlayPrefix)
	}

	uc.publishStatus(ctx, job, log)
	log.Info("render completed with fallback still image", zap.String("fallback_key", fallbackKey))
	return nil
}
