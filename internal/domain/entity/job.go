package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type JobKind string

const (
	JobKindRender JobKind = "RENDER"
	JobKindTrim   JobKind = "TRIM"
)

// Job is one render or trim operation over a single source video.
type Job struct {
	ID            uuid.UUID
	Kind          JobKind
	UserID        string
	VideoKey      string
	ResultKey     string
	OverlayPrefix string
	FallbackKey   string
	Status        JobStatus
	FrameCount    int
	ObjectCount   int
	FileSize      int64
	VideoDuration float64
	SourceRate    int
	Summary       string
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewJob(kind JobKind, userID, videoKey string, fileSize int64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records a fully reconstructed video.
func (j *Job) MarkCompleted(resultKey string, frameCount, objectCount, sourceRate int, duration float64, summary string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ResultKey = resultKey
	j.FrameCount = frameCount
	j.ObjectCount = objectCount
	j.SourceRate = sourceRate
	j.VideoDuration = duration
	j.Summary = summary
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// MarkCompletedWithFallback records a job whose annotated frames survived but
// whose final video assembly failed; the fallback key points at the first
// annotated still image.
func (j *Job) MarkCompletedWithFallback(fallbackKey string, frameCount, objectCount int, summary string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.FallbackKey = fallbackKey
	j.FrameCount = frameCount
	j.ObjectCount = objectCount
	j.Summary = summary
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
