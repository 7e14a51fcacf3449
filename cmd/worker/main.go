package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/reelmask/reelmask-render-service/internal/infra/config"
	"github.com/reelmask/reelmask-render-service/internal/infra/email"
	"github.com/reelmask/reelmask-render-service/internal/infra/ffmpeg"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	miniostorage "github.com/reelmask/reelmask-render-service/internal/infra/minio"
	"github.com/reelmask/reelmask-render-service/internal/infra/overlaysync"
	"github.com/reelmask/reelmask-render-service/internal/infra/postgres"
	"github.com/reelmask/reelmask-render-service/internal/infra/rabbitmq"
	"github.com/reelmask/reelmask-render-service/internal/infra/samclient"
	"github.com/reelmask/reelmask-render-service/internal/infra/tracing"
	"github.com/reelmask/reelmask-render-service/internal/usecase"
	"github.com/reelmask/reelmask-render-service/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting reelmask-render-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		RenderBucket:  cfg.MinIORenderBucket,
		OverlayBucket: cfg.MinIOOverlayBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	model := samclient.NewClient(cfg.ModelEndpoint, cfg.MaxSourceBytes,
		time.Duration(cfg.ModelTimeoutMs)*time.Millisecond, log)
	media := ffmpeg.NewMedia(time.Duration(cfg.SeekTimeoutMs)*time.Millisecond,
		cfg.TrimCaptureFPS, cfg.TempDir, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Overlay sync endpoint for the live viewing phase
	syncServer := overlaysync.NewServer(log)
	syncHTTP := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SyncPort),
		Handler: syncServer.Handler(),
	}
	go func() {
		log.Info("overlay sync server listening", zap.Int("port", cfg.SyncPort))
		if err := syncHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("overlay sync server error", zap.Error(err))
		}
	}()

	// Use cases
	renderUC := usecase.NewRenderTrackingUseCase(
		repo, storage, model, media, syncServer,
		statusPub, dlqPub, notifier,
		log,
		usecase.RenderTrackingConfig{
			TempDir:      cfg.TempDir,
			MaxRetries:   cfg.MaxRetries,
			OverlayAlpha: cfg.OverlayAlpha,
		},
	)
	trimUC := usecase.NewTrimVideoUseCase(
		repo, storage, media,
		statusPub, dlqPub, notifier,
		log,
		usecase.TrimVideoConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool, one binding per pipeline)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Bindings: []rabbitmq.Binding{
			{Queue: cfg.RabbitMQRenderQueue, RoutingKey: cfg.RabbitMQRenderQueue, Handler: renderUC.Execute},
			{Queue: cfg.RabbitMQTrimQueue, RoutingKey: cfg.RabbitMQTrimQueue, Handler: trimUC.Execute},
		},
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("reelmask-render-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)
	syncHTTP.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("reelmask-render-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
