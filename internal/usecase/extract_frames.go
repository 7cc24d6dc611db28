package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strings"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/imagecodec"
	"github.com/framelab/actionframes/internal/infra/metrics"
	"go.uber.org/zap"
)

const DefaultFrameReadTimeout = 10 * time.Second

// FrameExtractor samples a video at a fixed rate and stores every sample at
// original and configured resolution.
type FrameExtractor struct {
	opener      port.VideoOpener
	codec       port.ImageCodec
	blobs       port.BlobStore
	readTimeout time.Duration
	logger      *zap.Logger
}

func NewFrameExtractor(
	opener port.VideoOpener,
	codec port.ImageCodec,
	blobs port.BlobStore,
	readTimeout time.Duration,
	logger *zap.Logger,
) *FrameExtractor {
	if readTimeout <= 0 {
		readTimeout = DefaultFrameReadTimeout
	}
	return &FrameExtractor{
		opener:      opener,
		codec:       codec,
		blobs:       blobs,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Extract opens sourcePath and writes the sampled frames under namespace.
//
// Frames that fail to decode, encode or store are recorded in the report and
// skipped. An unopenable source, a read timeout or cancellation end the run
// with an error; the report then holds what was written before.
func (e *FrameExtractor) Extract(ctx context.Context, sourcePath, namespace string, cfg entity.JobConfig) (*entity.ExtractionReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	source := entity.SourceName(sourcePath)
	log := e.logger.With(zap.String("namespace", namespace), zap.String("source", source))

	src, err := e.opener.Open(ctx, sourcePath)
	if err != nil {
		if !errors.Is(err, entity.ErrSourceUnreadable) {
			err = fmt.Errorf("%w: %v", entity.ErrSourceUnreadable, err)
		}
		log.Error("cannot open video", zap.Error(err))
		return &entity.ExtractionReport{Namespace: namespace, SourceName: source}, err
	}
	defer src.Close()

	info := src.Info()
	report := &entity.ExtractionReport{
		Namespace:  namespace,
		SourceName: source,
		Degraded:   info.Degraded(),
	}

	interval := cfg.Interval()
	if report.Degraded {
		interval = time.Second
		report.ExpectedFrames = 1
		log.Warn("video reports no frame rate, extracting a single frame", zap.Int("frame_count", info.FrameCount))
	} else {
		report.ExpectedFrames = expectedFrames(info.Duration, cfg)
	}

	log.Info("extraction started",
		zap.Float64("source_fps", info.FPS),
		zap.Int("source_frames", info.FrameCount),
		zap.Duration("duration", info.Duration),
		zap.Float64("target_rate", cfg.TargetFrameRate),
		zap.Int("expected_frames", report.ExpectedFrames),
	)

	start := time.Duration(cfg.StartOffsetSeconds * float64(time.Second))
	format := strings.ToLower(cfg.ImageFormat)

	for seq := 1; ; seq++ {
		if report.Degraded && seq > 1 {
			break
		}
		if info.FrameCount > 0 && seq > info.FrameCount {
			break
		}
		if err := ctx.Err(); err != nil {
			e.logSummary(log, report, "cancelled")
			return report, err
		}

		at := start + time.Duration(seq-1)*interval
		if err := src.Seek(at); err != nil {
			e.recordFailure(log, report, entity.NewFrameFailure(entity.FrameKey(at, seq, source), entity.StageDecode, err))
			continue
		}

		img, pos, err := e.readFrame(ctx, src)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				e.logSummary(log, report, "cancelled")
				return report, ctx.Err()
			}
			if errors.Is(err, entity.ErrReadTimeout) {
				e.logSummary(log, report, "timed out")
				return report, fmt.Errorf("frame %d at %s: %w", seq, at, err)
			}
			e.recordFailure(log, report, entity.NewFrameFailure(entity.FrameKey(at, seq, source), entity.StageDecode, err))
			continue
		}
		if pos <= 0 {
			pos = at
		}

		frame, failure := e.storeFrame(ctx, namespace, entity.FrameKey(pos, seq, source), img, info.PixelAspect, cfg.ImageWidth, format)
		if failure != nil {
			e.recordFailure(log, report, *failure)
			continue
		}
		frame.Sequence = seq
		frame.Timestamp = pos
		report.Frames = append(report.Frames, frame)
		metrics.FramesWrittenTotal.Inc()
		log.Debug("frame written", zap.String("key", frame.Key))
	}

	e.logSummary(log, report, "finished")
	return report, nil
}

func (e *FrameExtractor) readFrame(ctx context.Context, src port.VideoSource) (image.Image, time.Duration, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()

	img, pos, err := src.ReadFrame(readCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, 0, fmt.Errorf("%w after %s", entity.ErrReadTimeout, e.readTimeout)
	}
	return img, pos, err
}

func (e *FrameExtractor) storeFrame(
	ctx context.Context,
	namespace, key string,
	img image.Image,
	pixelAspect float64,
	width int,
	format string,
) (entity.Frame, *entity.FrameFailure) {
	original := imagecodec.CorrectAspect(img, pixelAspect)
	resized := imagecodec.ResizeToWidth(original, width)

	frame := entity.Frame{
		Key:            key,
		OriginalName:   entity.FrameBlobName(namespace, entity.OriginalFramesDir, key, format),
		ResizedName:    entity.FrameBlobName(namespace, entity.ResizedFramesDir, key, format),
		OriginalWidth:  original.Bounds().Dx(),
		OriginalHeight: original.Bounds().Dy(),
		ResizedWidth:   resized.Bounds().Dx(),
		ResizedHeight:  resized.Bounds().Dy(),
	}

	variants := []struct {
		name string
		img  image.Image
	}{
		{frame.OriginalName, original},
		{frame.ResizedName, resized},
	}
	for _, v := range variants {
		data, err := e.codec.Encode(v.img, format)
		if err != nil {
			f := entity.NewFrameFailure(key, entity.StageEncode, err)
			return frame, &f
		}
		if err := e.blobs.Put(ctx, v.name, data); err != nil {
			f := entity.NewFrameFailure(key, entity.StageStore, err)
			return frame, &f
		}
	}
	return frame, nil
}

func (e *FrameExtractor) recordFailure(log *zap.Logger, report *entity.ExtractionReport, f entity.FrameFailure) {
	report.Failures = append(report.Failures, f)
	metrics.ObserveFailures(f.Stage, 1)
	log.Warn("frame skipped",
		zap.String("key", f.Key),
		zap.String("stage", f.Stage),
		zap.String("error", f.Message),
	)
}

func (e *FrameExtractor) logSummary(log *zap.Logger, report *entity.ExtractionReport, outcome string) {
	log.Info("extraction "+outcome,
		zap.Int("frames_written", report.FramesWritten()),
		zap.Int("frames_skipped", len(report.Failures)),
		zap.Int("expected_frames", report.ExpectedFrames),
	)
}

func expectedFrames(duration time.Duration, cfg entity.JobConfig) int {
	remaining := duration.Seconds() - cfg.StartOffsetSeconds
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining * cfg.TargetFrameRate))
}
