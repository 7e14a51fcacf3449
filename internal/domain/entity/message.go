package entity

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RenderRequestMessage is the inbound message from the render.request queue.
// Prompt is the user's point/box prompt for the tracking model, forwarded
// opaquely.
type RenderRequestMessage struct {
	JobID     uuid.UUID       `json:"job_id"`
	UserID    string          `json:"user_id"`
	VideoKey  string          `json:"video_key"`
	FileSize  int64           `json:"file_size"`
	Prompt    json.RawMessage `json:"prompt,omitempty"`
	UserEmail string          `json:"user_email"`
}

// TrimRequestMessage is the inbound message from the render.trim queue.
type TrimRequestMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	UserEmail string    `json:"user_email"`
}

// RenderStatusMessage is the outbound message published to the render.status
// queue after every job state change.
type RenderStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Kind          JobKind   `json:"kind"`
	Status        JobStatus `json:"status"`
	VideoKey      string    `json:"video_key"`
	ResultKey     string    `json:"result_key,omitempty"`
	OverlayPrefix string    `json:"overlay_prefix,omitempty"`
	FallbackKey   string    `json:"fallback_key,omitempty"`
	FrameCount    int       `json:"frame_count,omitempty"`
	ObjectCount   int       `json:"object_count,omitempty"`
	SourceRate    int       `json:"source_rate,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
