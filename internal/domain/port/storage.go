package port

import (
	"context"
	"io"
)

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadRender(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	UploadOverlay(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
