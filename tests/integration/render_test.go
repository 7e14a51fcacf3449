package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/infra/email"
	"github.com/reelmask/reelmask-render-service/internal/infra/ffmpeg"
	miniostorage "github.com/reelmask/reelmask-render-service/internal/infra/minio"
	"github.com/reelmask/reelmask-render-service/internal/infra/postgres"
	"github.com/reelmask/reelmask-render-service/internal/infra/rabbitmq"
	"github.com/reelmask/reelmask-render-service/internal/infra/samclient"
	"github.com/reelmask/reelmask-render-service/internal/rle"
	"github.com/reelmask/reelmask-render-service/internal/usecase"
	"github.com/reelmask/reelmask-render-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// testEnv holds the shared backing services for one integration test.
type testEnv struct {
	pgConnStr     string
	rmqURL        string
	minioEndpoint string
	pool          *pgxpool.Pool
	minioClient   *miniogo.Client
	storage       *miniostorage.Storage
	rmqConn       *amqp.Connection
	statusPub     *rabbitmq.StatusPublisher
	dlqPub        *rabbitmq.DLQPublisher
}

func startEnv(ctx context.Context, t *testing.T) *testEnv {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("renders"),
		tcpostgres.WithUsername("render_user"),
		tcpostgres.WithPassword("render_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		RenderBucket:  "renders",
		OverlayBucket: "overlays",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, "reelmask.render")
	require.NoError(t, err)

	return &testEnv{
		pgConnStr:     pgConnStr,
		rmqURL:        rmqURL,
		minioEndpoint: minioEndpoint,
		pool:          pool,
		minioClient:   minioClient,
		storage:       storage,
		rmqConn:       rmqConn,
		statusPub:     rabbitmq.NewStatusPublisher(pub),
		dlqPub:        rabbitmq.NewDLQPublisher(pub, "render.request.dlq"),
	}
}

// makeSourceVideo renders a short synthetic clip. ffmpeg must be installed.
func makeSourceVideo(ctx context.Context, t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	path := filepath.Join(t.TempDir(), "source.mp4")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=64x48:rate=10",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

// fakeTrackingServer mimics the vision model: it accepts the multipart
// upload and answers with a fixed sparse tracking result for a 48x64 video.
func fakeTrackingServer(t *testing.T) *httptest.Server {
	t.Helper()
	total := 48 * 64
	result := entity.TrackingResult{
		{FrameIndex: 0, Masks: []rle.Mask{{Size: [2]int{48, 64}, Counts: []int{100, 200, total - 300}}}, ObjectIDs: []int{0}},
		{FrameIndex: 5, Masks: []rle.Mask{{Size: [2]int{48, 64}, Counts: []int{150, 200, total - 350}}}, ObjectIDs: []int{0}},
		{FrameIndex: 10, Masks: []rle.Mask{{Size: [2]int{48, 64}, Counts: []int{200, 200, total - 400}}}, ObjectIDs: []int{1}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}))
}

func startConsumer(ctx context.Context, t *testing.T, env *testEnv, bindings []rabbitmq.Binding) {
	t.Helper()
	log, _ := logger.New("debug")
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         env.rmqURL,
		Exchange:    "reelmask.render",
		DLQ:         "render.request.dlq",
		StatusQueue: "render.status",
		Bindings:    bindings,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)
}

func publish(ctx context.Context, t *testing.T, env *testEnv, routingKey string, body []byte) {
	t.Helper()
	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.PublishWithContext(ctx,
		"reelmask.render", routingKey, false, false,
		amqp.Publishing{ContentType: "application/json", Body: body},
	))
}

func awaitStatus(ctx context.Context, t *testing.T, env *testEnv, jobID uuid.UUID, status entity.JobStatus) entity.RenderStatusMessage {
	t.Helper()
	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	deliveries, err := ch.Consume("render.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	deadline := time.After(2 * time.Minute)
	for {
		select {
		case d := <-deliveries:
			var msg entity.RenderStatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &msg))
			if msg.JobID == jobID && msg.Status == status {
				return msg
			}
		case <-deadline:
			t.Fatalf("timeout waiting for job %s to reach %s", jobID, status)
		}
	}
}

func TestRenderTrackingEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sourcePath := makeSourceVideo(ctx, t)
	env := startEnv(ctx, t)

	videoKey := "testuser/source.mp4"
	_, err := env.minioClient.FPutObject(ctx, "uploads", videoKey, sourcePath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	model := fakeTrackingServer(t)
	defer model.Close()

	log, _ := logger.New("debug")
	repo := postgres.NewJobRepository(env.pool)
	sam := samclient.NewClient(model.URL, 50<<20, time.Minute, log)
	media := ffmpeg.NewMedia(5*time.Second, 6, t.TempDir(), log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@reelmask.local", log)

	renderUC := usecase.NewRenderTrackingUseCase(
		repo, env.storage, sam, media, nil,
		env.statusPub, env.dlqPub, notifier,
		log,
		usecase.RenderTrackingConfig{TempDir: t.TempDir(), MaxRetries: 3, OverlayAlpha: 0.7},
	)

	startConsumer(ctx, t, env, []rabbitmq.Binding{
		{Queue: "render.request", RoutingKey: "render.request", Handler: renderUC.Execute},
	})

	jobID := uuid.New()
	body, err := json.Marshal(entity.RenderRequestMessage{
		JobID:    jobID,
		UserID:   "testuser",
		VideoKey: videoKey,
		FileSize: 1 << 20,
		Prompt:   json.RawMessage(`{"points":[[10,10]]}`),
	})
	require.NoError(t, err)
	publish(ctx, t, env, "render.request", body)

	statusMsg := awaitStatus(ctx, t, env, jobID, entity.JobStatusCompleted)

	// The model reported frames 0, 5 and 10 of a 2s clip: sampled rate 6,
	// source rate 10 from container metadata, all three frames in range.
	assert.Equal(t, entity.JobKindRender, statusMsg.Kind)
	assert.Equal(t, 3, statusMsg.FrameCount)
	assert.Equal(t, 2, statusMsg.ObjectCount)
	assert.Equal(t, 10, statusMsg.SourceRate)
	assert.NotEmpty(t, statusMsg.ResultKey)
	assert.Equal(t, "testuser/"+jobID.String(), statusMsg.OverlayPrefix)

	// Baked video landed in the renders bucket.
	_, err = env.minioClient.StatObject(ctx, "renders", statusMsg.ResultKey, miniogo.StatObjectOptions{})
	require.NoError(t, err)

	// Overlay PNG sequence landed in the overlays bucket.
	for i := 0; i < statusMsg.FrameCount; i++ {
		key := fmt.Sprintf("%s/frame_%04d.png", statusMsg.OverlayPrefix, i)
		_, err = env.minioClient.StatObject(ctx, "overlays", key, miniogo.StatObjectOptions{})
		assert.NoError(t, err, key)
	}

	// Job record persisted.
	var dbStatus string
	var dbFrameCount, dbObjectCount int
	err = env.pool.QueryRow(ctx,
		"SELECT status, frame_count, object_count FROM render_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount, &dbObjectCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 3, dbFrameCount)
	assert.Equal(t, 2, dbObjectCount)
}

func TestTrimVideoEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sourcePath := makeSourceVideo(ctx, t)
	env := startEnv(ctx, t)

	videoKey := "testuser/source.mp4"
	_, err := env.minioClient.FPutObject(ctx, "uploads", videoKey, sourcePath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	log, _ := logger.New("debug")
	repo := postgres.NewJobRepository(env.pool)
	media := ffmpeg.NewMedia(5*time.Second, 6, t.TempDir(), log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@reelmask.local", log)

	trimUC := usecase.NewTrimVideoUseCase(
		repo, env.storage, media,
		env.statusPub, env.dlqPub, notifier,
		log,
		usecase.TrimVideoConfig{TempDir: t.TempDir(), MaxRetries: 3},
	)

	startConsumer(ctx, t, env, []rabbitmq.Binding{
		{Queue: "render.trim", RoutingKey: "render.trim", Handler: trimUC.Execute},
	})

	jobID := uuid.New()
	body, err := json.Marshal(entity.TrimRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  1 << 20,
		StartTime: 0.5,
		EndTime:   1.5,
	})
	require.NoError(t, err)
	publish(ctx, t, env, "render.trim", body)

	statusMsg := awaitStatus(ctx, t, env, jobID, entity.JobStatusCompleted)

	assert.Equal(t, entity.JobKindTrim, statusMsg.Kind)
	assert.InDelta(t, 1.0, statusMsg.Duration, 1e-9)
	assert.NotEmpty(t, statusMsg.ResultKey)

	_, err = env.minioClient.StatObject(ctx, "renders", statusMsg.ResultKey, miniogo.StatObjectOptions{})
	require.NoError(t, err)
}
