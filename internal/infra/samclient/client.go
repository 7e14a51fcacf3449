// Package samclient talks to the remote video tracking model. The model
// receives the source video plus the user's point/box prompt and answers
// with per-frame run-length encoded object masks.
package samclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"go.uber.org/zap"
)

// DefaultMaxSourceBytes is the pre-flight size limit for the source video.
// The transport inflates the payload by roughly 4/3 (base64), so a 50 MB
// source arrives at the model as ~70 MB.
const DefaultMaxSourceBytes = 50 << 20

const remediation = "try a shorter video or a lower resolution"

type Client struct {
	endpoint       string
	maxSourceBytes int64
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(endpoint string, maxSourceBytes int64, timeout time.Duration, logger *zap.Logger) *Client {
	if maxSourceBytes <= 0 {
		maxSourceBytes = DefaultMaxSourceBytes
	}
	return &Client{
		endpoint:       endpoint,
		maxSourceBytes: maxSourceBytes,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}
}

// Track submits the video and prompt and decodes the model's per-frame
// masks. Oversized sources are rejected before any upload happens.
func (c *Client) Track(ctx context.Context, videoPath string, prompt json.RawMessage) (entity.TrackingResult, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat source video: %w", err)
	}
	if info.Size() > c.maxSourceBytes {
		return nil, fmt.Errorf("source video is %d bytes, limit is %d: %s",
			info.Size(), c.maxSourceBytes, remediation)
	}

	body, contentType, err := buildRequestBody(videoPath, prompt)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build tracking request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Info("submitting video to tracking model",
		zap.String("endpoint", c.endpoint),
		zap.Int64("size", info.Size()),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracking model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, normalizeError(resp)
	}

	var result entity.TrackingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tracking response: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("tracking model returned malformed result: %w", err)
	}
	return result, nil
}

func buildRequestBody(videoPath string, prompt json.RawMessage) (io.Reader, string, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return nil, "", fmt.Errorf("open source video: %w", err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return nil, "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy video into request: %w", err)
	}
	if len(prompt) > 0 {
		if err := mw.WriteField("prompt", string(prompt)); err != nil {
			return nil, "", fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

// normalizeError turns a non-success model response into one descriptive
// error. Size and memory rejections carry remediation guidance.
func normalizeError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.TrimSpace(string(detail))
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusInsufficientStorage:
		return fmt.Errorf("tracking model rejected the video (%d): %s: %s",
			resp.StatusCode, msg, remediation)
	case resp.StatusCode == http.StatusServiceUnavailable &&
		strings.Contains(strings.ToLower(msg), "memory"):
		return fmt.Errorf("tracking model ran out of memory (%d): %s: %s",
			resp.StatusCode, msg, remediation)
	default:
		return fmt.Errorf("tracking model returned %d: %s", resp.StatusCode, msg)
	}
}
