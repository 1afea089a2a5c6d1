// cmd/app.go
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/infrastructure"
	"github.com/vitovidale/clip-processor-service/logging"
	"github.com/vitovidale/clip-processor-service/usecase"
)

// app holds every wired component. Nothing is process-global: each command
// builds its own app and closes it on exit.
type app struct {
	db      *sql.DB
	broker  *amqp.Connection
	gcs     *storage.Client
	queue   *infrastructure.RabbitMQPipelineQueue
	metrics *infrastructure.PrometheusMetrics

	pipeline  *usecase.Pipeline
	submit    *usecase.SubmitVideoUseCase
	trigger   *usecase.TriggerPipelineUseCase
	reset     *usecase.ResetVideoUseCase
	delete    *usecase.DeleteVideoUseCase
	queries   *usecase.VideoQueries
	subtitles *usecase.SubtitleUseCase
}

// noQueue is used when no broker is configured for the command.
type noQueue struct{}

func (noQueue) PublishPipelineRun(context.Context, domain.PipelineMessage) error {
	return errors.New("pipeline queue is not connected")
}

func newApp(ctx context.Context, withBroker bool) (*app, error) {
	a := &app{metrics: infrastructure.NewPrometheusMetrics()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	a.db, err = infrastructure.ConnectPostgres(ctx, cfg.DB.DSN(), cfg.ConnectRetries, logging.WithComponent(logger, "postgres"))
	if err != nil {
		return nil, err
	}
	if err := infrastructure.Migrate(ctx, a.db, logging.WithComponent(logger, "migrate")); err != nil {
		return nil, err
	}

	if cfg.CacheBucket == "" {
		return nil, fmt.Errorf("CACHE_BUCKET is required")
	}
	a.gcs, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	var queue domain.PipelineQueue = noQueue{}
	if withBroker {
		a.broker, err = infrastructure.ConnectRabbitMQ(ctx, cfg.RabbitMQ.URL(), cfg.ConnectRetries, logging.WithComponent(logger, "rabbitmq"))
		if err != nil {
			return nil, err
		}
		a.queue = infrastructure.NewRabbitMQPipelineQueue(a.broker, cfg.RabbitMQ.Queue)
		queue = a.queue
	}

	videos := infrastructure.NewPostgresVideoRepository(a.db)
	transcriptions := infrastructure.NewPostgresTranscriptionRepository(a.db)
	clips := infrastructure.NewPostgresClipRepository(a.db)
	jobs := infrastructure.NewPostgresJobRepository(a.db)
	locker := infrastructure.NewPostgresLeaseLocker(a.db, cfg.LeaseTTL, logging.WithComponent(logger, "lease"))
	store := infrastructure.NewGCSObjectStore(a.gcs, cfg.CacheBucket)
	fileHost, err := infrastructure.NewDriveFileHost(ctx, cfg.FileHostBaseURL, cfg.FileHostToken)
	if err != nil {
		return nil, err
	}
	gemini := infrastructure.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)

	var refiner domain.TranscriptRefiner = gemini
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; transcript refinement disabled")
		refiner = nil
	}

	a.pipeline = &usecase.Pipeline{
		VideoRepo:         videos,
		TranscriptionRepo: transcriptions,
		ClipRepo:          clips,
		JobRepo:           jobs,
		Locker:            locker,
		Cache: &usecase.CacheManager{
			VideoRepo: videos,
			FileHost:  fileHost,
			Store:     store,
			Metrics:   a.metrics,
			Logger:    logging.WithComponent(logger, "cache"),
		},
		Store:            store,
		Transcoder:       infrastructure.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath, cfg.WorkDir),
		Speech:           infrastructure.NewWhisperSpeechClient(cfg.SpeechBaseURL, cfg.SpeechAPIKey, cfg.SpeechModel),
		Analysis:         gemini,
		Refiner:          refiner,
		FileHost:         fileHost,
		Metrics:          a.metrics,
		Logger:           logging.WithComponent(logger, "pipeline"),
		RefineTimeout:    cfg.RefineTimeout,
		ClipConcurrency:  cfg.ClipConcurrency,
		SubtitleMaxChars: cfg.SubtitleMaxChars,
		ClipFolderID:     cfg.ClipOutputFolderID,
		WorkDir:          cfg.WorkDir,
	}
	a.submit = &usecase.SubmitVideoUseCase{
		VideoRepo: videos,
		JobRepo:   jobs,
		FileHost:  fileHost,
		Queue:     queue,
		Logger:    logging.WithComponent(logger, "submit"),
	}
	a.trigger = &usecase.TriggerPipelineUseCase{VideoRepo: videos, Queue: queue, Logger: logging.WithComponent(logger, "trigger")}
	a.reset = &usecase.ResetVideoUseCase{
		VideoRepo:         videos,
		TranscriptionRepo: transcriptions,
		Locker:            locker,
		Store:             store,
		Logger:            logging.WithComponent(logger, "reset"),
	}
	a.delete = &usecase.DeleteVideoUseCase{VideoRepo: videos, Locker: locker, Store: store, Logger: logging.WithComponent(logger, "delete")}
	a.queries = &usecase.VideoQueries{VideoRepo: videos, TranscriptionRepo: transcriptions, ClipRepo: clips, JobRepo: jobs}
	a.subtitles = &usecase.SubtitleUseCase{
		ClipRepo:          clips,
		TranscriptionRepo: transcriptions,
		Logger:            logging.WithComponent(logger, "subtitles"),
		MaxChars:          cfg.SubtitleMaxChars,
	}

	ok = true
	return a, nil
}

func (a *app) consumer() *infrastructure.PipelineConsumer {
	return &infrastructure.PipelineConsumer{
		Conn:     a.broker,
		Queue:    cfg.RabbitMQ.Queue,
		Prefetch: 1,
		Runner:   a.pipeline,
		Logger:   logging.WithComponent(logger, "consumer"),
	}
}

func (a *app) recoverInterrupted(ctx context.Context) {
	n, err := a.pipeline.RecoverInterrupted(ctx, cfg.LeaseTTL)
	if err != nil {
		logger.WithError(err).Error("failed to recover interrupted videos")
		return
	}
	if n > 0 {
		logger.WithField("count", n).Info("recovered interrupted videos")
	}
}

func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.broker != nil {
		a.broker.Close()
	}
	if a.gcs != nil {
		a.gcs.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
