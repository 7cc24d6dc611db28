package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessExtractionUseCase handles one extraction request delivered by the
// queue consumer. A nil return acks the delivery; an error requeues it.
type ProcessExtractionUseCase struct {
	repo      port.JobRepository
	fetcher   port.VideoFetcher
	pipeline  *Pipeline
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
	defaults  entity.JobConfig
	diff      entity.DiffParams
}

type ProcessExtractionConfig struct {
	TempDir    string
	MaxRetries int
	// Defaults apply when a request carries no config of its own.
	Defaults entity.JobConfig
	Diff     entity.DiffParams
}

func NewProcessExtractionUseCase(
	repo port.JobRepository,
	fetcher port.VideoFetcher,
	pipeline *Pipeline,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessExtractionConfig,
) *ProcessExtractionUseCase {
	return &ProcessExtractionUseCase{
		repo:      repo,
		fetcher:   fetcher,
		pipeline:  pipeline,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
		defaults:  cfg.Defaults,
		diff:      cfg.Diff,
	}
}

func (uc *ProcessExtractionUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ProcessExtractionUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExtractionRequestMessage
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

	job, err := uc.loadJob(ctx, msg)
	if errors.Is(err, entity.ErrInvalidConfig) {
		log.Warn("rejecting request with invalid config", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_config: "+err.Error())
		metrics.JobsTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if err != nil {
		log.Error("failed to load job record", zap.Error(err))
		return err
	}
	log = log.With(zap.String("namespace", job.Namespace))

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
	}

	job.BeginAttempt()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to EXTRACTING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

// loadJob returns the stored job for msg, creating it on first delivery.
func (uc *ProcessExtractionUseCase) loadJob(ctx context.Context, msg entity.ExtractionRequestMessage) (*entity.ExtractionJob, error) {
	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, port.ErrJobNotFound) {
		return nil, err
	}

	cfg := uc.defaults
	if msg.Config != nil {
		cfg = *msg.Config
	}
	job, err = uc.pipeline.NewJob(msg.VideoKey, cfg)
	if err != nil {
		return nil, err
	}
	job.MaxAttempts = uc.maxRetry
	if msg.JobID != uuid.Nil {
		job.ID = msg.JobID
		job.Namespace = entity.NewNamespace(job.CreatedAt, job.SourceName, job.ID)
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (uc *ProcessExtractionUseCase) runPipeline(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// The local file keeps the object's base name so frame keys carry the
	// source name.
	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, path.Base(msg.VideoKey))
	err := uc.fetcher.DownloadVideo(dlCtx, msg.VideoKey, videoPath)
	spanDl.End()
	if errors.Is(err, port.ErrBlobNotFound) {
		job.MarkAborted(fmt.Errorf("%w: %v", entity.ErrSourceUnreadable, err).Error())
		return uc.handleAbort(ctx, job, msg, log)
	}
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		job.MarkFailed("download_video: " + err.Error())
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, log)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	res, err := uc.pipeline.Run(ctx, job, videoPath, RunOptions{
		DetectActions: msg.DetectActions,
		Diff:          uc.diff,
		Export:        msg.DetectActions,
	})
	switch {
	case errors.Is(err, entity.ErrSourceUnreadable):
		return uc.handleAbort(ctx, job, msg, log)
	case errors.Is(err, entity.ErrInvalidConfig):
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error())
	case err != nil:
		log.Error("pipeline failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, log)
	}

	job.ArchiveKey = res.ArchiveKey
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update finished job", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	log.Info("job finished",
		zap.String("status", string(job.Status)),
		zap.Int("frames_written", job.FramesWritten),
		zap.Int("action_frames", job.ActionFrames),
		zap.Int("failures", len(job.Failures)),
		zap.String("archive_key", job.ArchiveKey),
	)
	return nil
}

// handleAbort finalizes a job whose source produced no frames. Retrying
// cannot help, so the delivery is acked.
func (uc *ProcessExtractionUseCase) handleAbort(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	log *zap.Logger,
) error {
	log.Warn("job aborted", zap.String("error", job.ErrorMessage))
	_ = uc.repo.Update(ctx, job)
	uc.publishStatus(ctx, job, log)
	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()

	if msg.NotifyEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.NotifyEmail, job.ID.String(), msg.VideoKey, job.ErrorMessage)
	}
	return nil
}

func (uc *ProcessExtractionUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, job.ErrorMessage)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, job.ErrorMessage)
}

func (uc *ProcessExtractionUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)
	uc.publishStatus(ctx, job, uc.logger)
	metrics.JobsTotal.WithLabelValues("dlq").Inc()

	if msg.NotifyEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.NotifyEmail, job.ID.String(), msg.VideoKey, errMsg)
	}
	return nil
}

func (uc *ProcessExtractionUseCase) publishStatus(ctx context.Context, job *entity.ExtractionJob, log *zap.Logger) {
	statusMsg := entity.JobStatusMessage{
		JobID:         job.ID,
		Namespace:     job.Namespace,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		FramesWritten: job.FramesWritten,
		ActionFrames:  job.ActionFrames,
		ArchiveKey:    job.ArchiveKey,
		Failures:      job.Failures,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
