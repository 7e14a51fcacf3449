package port

import (
	"context"
	"encoding/json"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
)

// TrackingModel is the boundary to the remote vision model. Track submits
// the source video plus the user's prompt and returns per-frame masks.
// Implementations normalize transport and server errors into descriptive
// messages; size and memory rejections carry remediation guidance.
type TrackingModel interface {
	Track(ctx context.Context, videoPath string, prompt json.RawMessage) (entity.TrackingResult, error)
}
