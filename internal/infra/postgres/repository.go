package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO render_jobs (
			id, kind, user_id, video_key, result_key, overlay_prefix,
			fallback_key, status, frame_count, object_count, file_size,
			video_duration, source_rate, summary, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Kind), job.UserID, job.VideoKey, job.ResultKey,
		job.OverlayPrefix, job.FallbackKey, string(job.Status), job.FrameCount,
		job.ObjectCount, job.FileSize, job.VideoDuration, job.SourceRate,
		job.Summary, job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE render_jobs SET
			status=$2, result_key=$3, overlay_prefix=$4, fallback_key=$5,
			frame_count=$6, object_count=$7, video_duration=$8,
			source_rate=$9, summary=$10, attempt=$11, error_message=$12,
			updated_at=$13, completed_at=$14
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ResultKey, job.OverlayPrefix,
		job.FallbackKey, job.FrameCount, job.ObjectCount, job.VideoDuration,
		job.SourceRate, job.Summary, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, kind, user_id, video_key, result_key, overlay_prefix,
			fallback_key, status, frame_count, object_count, file_size,
			video_duration, source_rate, summary, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM render_jobs WHERE id=$1`

	job := &entity.Job{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &kind, &job.UserID, &job.VideoKey, &job.ResultKey,
		&job.OverlayPrefix, &job.FallbackKey, &status, &job.FrameCount,
		&job.ObjectCount, &job.FileSize, &job.VideoDuration, &job.SourceRate,
		&job.Summary, &job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Kind = entity.JobKind(kind)
	job.Status = entity.JobStatus(status)
	return job, nil
}
