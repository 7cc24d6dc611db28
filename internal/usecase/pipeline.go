package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path"
	"sync"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type PipelineConfig struct {
	WorkerCount int
	MaxAttempts int
}

// Pipeline runs the stages of one or more extraction jobs. Every job writes
// only below its own namespace.
type Pipeline struct {
	extractor *FrameExtractor
	detector  *ChangeDetector
	blobs     port.BlobStore
	zipper    port.Zipper
	logger    *zap.Logger
	workers   int
	attempts  int
	now       func() time.Time
}

func NewPipeline(
	extractor *FrameExtractor,
	detector *ChangeDetector,
	blobs port.BlobStore,
	zipper port.Zipper,
	logger *zap.Logger,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pipeline{
		extractor: extractor,
		detector:  detector,
		blobs:     blobs,
		zipper:    zipper,
		logger:    logger,
		workers:   cfg.WorkerCount,
		attempts:  cfg.MaxAttempts,
		now:       time.Now,
	}
}

// NewJob validates cfg and allocates a fresh namespace for sourcePath.
func (p *Pipeline) NewJob(sourcePath string, cfg entity.JobConfig) (*entity.ExtractionJob, error) {
	return entity.NewJob(sourcePath, cfg, p.attempts, p.now())
}

// Extract samples sourcePath into the job's namespace and stores the report
// as the namespace manifest. A source that cannot be opened aborts the job.
func (p *Pipeline) Extract(ctx context.Context, job *entity.ExtractionJob, sourcePath string) (*entity.ExtractionReport, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Pipeline.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("job.namespace", job.Namespace))

	started := time.Now()
	job.MarkExtracting()

	report, err := p.extractor.Extract(ctx, sourcePath, job.Namespace, job.Config)
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, entity.ErrSourceUnreadable) {
			job.MarkAborted(err.Error())
		} else {
			job.MarkFailed(err.Error())
			if report != nil {
				job.FramesWritten = report.FramesWritten()
				job.Failures = report.Failures
			}
		}
		return report, err
	}

	if err := p.writeManifest(ctx, report); err != nil {
		job.MarkFailed(err.Error())
		return report, err
	}
	job.MarkCompleted(report.FramesWritten(), 0, report.Failures)
	span.SetAttributes(attribute.Int("frames.written", report.FramesWritten()))
	return report, nil
}

// DetectActions runs change detection over the resized frames of namespace in
// key order.
func (p *Pipeline) DetectActions(ctx context.Context, namespace string, params entity.DiffParams) (*entity.DiffReport, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Pipeline.DetectActions")
	defer span.End()

	started := time.Now()
	names, err := p.blobs.List(ctx, path.Join(namespace, entity.ResizedFramesDir)+"/")
	if err != nil {
		return nil, fmt.Errorf("list resized frames: %w", err)
	}
	refs := make([]entity.FrameRef, len(names))
	for i, name := range names {
		refs[i] = entity.FrameRef{Key: entity.KeyFromBlobName(name), Name: name}
	}

	report, err := p.detector.DetectChanges(ctx, refs, params)
	metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	span.SetAttributes(attribute.Int("frames.flagged", len(report.Flagged)))
	return report, nil
}

// MapToOriginals pairs each flagged resized frame with the original-resolution
// frame of the same key. Scale factors come from the namespace manifest, or
// from the image headers when no manifest exists.
func (p *Pipeline) MapToOriginals(ctx context.Context, namespace string, flagged []entity.FrameRef) ([]entity.ActionFrame, error) {
	dims := map[string]entity.Frame{}
	if report, err := p.readManifest(ctx, namespace); err == nil {
		for _, f := range report.Frames {
			dims[f.Key] = f
		}
	} else if !errors.Is(err, port.ErrBlobNotFound) {
		return nil, err
	}

	actions := make([]entity.ActionFrame, 0, len(flagged))
	for _, ref := range flagged {
		a := entity.ActionFrame{
			Key:          ref.Key,
			ResizedName:  ref.Name,
			OriginalName: entity.FrameBlobName(namespace, entity.OriginalFramesDir, ref.Key, path.Ext(ref.Name)),
		}
		f, ok := dims[ref.Key]
		if !ok {
			var err error
			if f, err = p.probeDimensions(ctx, a); err != nil {
				return nil, err
			}
		}
		a.ScaleX = ratio(f.OriginalWidth, f.ResizedWidth)
		a.ScaleY = ratio(f.OriginalHeight, f.ResizedHeight)
		actions = append(actions, a)
	}
	return actions, nil
}

// ExportActionFrames zips the original-resolution action frames and stores
// the archive in the namespace. It returns the archive blob name.
func (p *Pipeline) ExportActionFrames(ctx context.Context, namespace string, actions []entity.ActionFrame) (string, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Pipeline.ExportActionFrames")
	defer span.End()

	started := time.Now()
	entries := make([]port.ZipEntry, 0, len(actions))
	for _, a := range actions {
		data, err := p.blobs.Get(ctx, a.OriginalName)
		if err != nil {
			return "", fmt.Errorf("load original %s: %w", a.OriginalName, err)
		}
		entries = append(entries, port.ZipEntry{Name: path.Base(a.OriginalName), Data: data})
	}

	var buf bytes.Buffer
	if err := p.zipper.CreateZip(ctx, entries, &buf); err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	name := path.Join(namespace, entity.ActionArchiveName)
	if err := p.blobs.Put(ctx, name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("store archive: %w", err)
	}
	metrics.StageDuration.WithLabelValues("export").Observe(time.Since(started).Seconds())
	return name, nil
}

// RunOptions selects the stages after extraction.
type RunOptions struct {
	DetectActions bool
	Diff          entity.DiffParams
	Export        bool
}

type RunResult struct {
	Extraction *entity.ExtractionReport
	Diff       *entity.DiffReport
	Actions    []entity.ActionFrame
	ArchiveKey string
}

// Run executes extraction and, if requested, detection and export for one
// job, leaving the job in its final state.
func (p *Pipeline) Run(ctx context.Context, job *entity.ExtractionJob, sourcePath string, opts RunOptions) (*RunResult, error) {
	res := &RunResult{}
	report, err := p.Extract(ctx, job, sourcePath)
	res.Extraction = report
	if err != nil || !opts.DetectActions {
		return res, err
	}

	job.MarkDetecting(report.FramesWritten())
	diff, err := p.DetectActions(ctx, job.Namespace, opts.Diff)
	res.Diff = diff
	if err != nil {
		job.MarkFailed(err.Error())
		return res, err
	}

	actions, err := p.MapToOriginals(ctx, job.Namespace, diff.Flagged)
	if err != nil {
		job.MarkFailed(err.Error())
		return res, err
	}
	for i := range actions {
		if n, ok := diff.RegionCounts[actions[i].Key]; ok {
			actions[i].RegionCount = &n
		}
	}
	res.Actions = actions

	if opts.Export && len(actions) > 0 {
		key, err := p.ExportActionFrames(ctx, job.Namespace, actions)
		if err != nil {
			job.MarkFailed(err.Error())
			return res, err
		}
		res.ArchiveKey = key
	}

	failures := append(append([]entity.FrameFailure{}, report.Failures...), diff.Failures...)
	job.MarkCompleted(report.FramesWritten(), len(actions), failures)
	return res, nil
}

// BatchItem is the outcome for one source of ExtractAll.
type BatchItem struct {
	Source string
	Job    *entity.ExtractionJob
	Report *entity.ExtractionReport
	Err    error
}

// ExtractAll extracts every source with at most WorkerCount extractions in
// flight. Items are returned in the order of sources; a failing source does
// not stop the others.
func (p *Pipeline) ExtractAll(ctx context.Context, sources []string, cfg entity.JobConfig) []BatchItem {
	items := make([]BatchItem, len(sources))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, len(sources)); w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range indexes {
				items[i] = p.extractOne(ctx, workerID, sources[i], cfg)
			}
		}(w)
	}

	for i := range sources {
		select {
		case indexes <- i:
		case <-ctx.Done():
			for j := i; j < len(sources); j++ {
				items[j] = BatchItem{Source: sources[j], Err: ctx.Err()}
			}
			close(indexes)
			wg.Wait()
			return items
		}
	}
	close(indexes)
	wg.Wait()
	return items
}

func (p *Pipeline) extractOne(ctx context.Context, workerID int, source string, cfg entity.JobConfig) BatchItem {
	item := BatchItem{Source: source}
	job, err := p.NewJob(source, cfg)
	if err != nil {
		item.Err = err
		return item
	}
	item.Job = job

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	p.logger.Info("batch extraction started", zap.Int("worker_id", workerID), zap.String("source", source), zap.String("namespace", job.Namespace))
	item.Report, item.Err = p.Extract(ctx, job, source)
	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	return item
}

func (p *Pipeline) writeManifest(ctx context.Context, report *entity.ExtractionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := p.blobs.Put(ctx, path.Join(report.Namespace, entity.ManifestName), data); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	return nil
}

func (p *Pipeline) readManifest(ctx context.Context, namespace string) (*entity.ExtractionReport, error) {
	data, err := p.blobs.Get(ctx, path.Join(namespace, entity.ManifestName))
	if err != nil {
		return nil, err
	}
	var report entity.ExtractionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &report, nil
}

func (p *Pipeline) probeDimensions(ctx context.Context, a entity.ActionFrame) (entity.Frame, error) {
	f := entity.Frame{Key: a.Key}
	var err error
	if f.OriginalWidth, f.OriginalHeight, err = p.imageSize(ctx, a.OriginalName); err != nil {
		return f, err
	}
	if f.ResizedWidth, f.ResizedHeight, err = p.imageSize(ctx, a.ResizedName); err != nil {
		return f, err
	}
	return f, nil
}

func (p *Pipeline) imageSize(ctx context.Context, name string) (int, int, error) {
	data, err := p.blobs.Get(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("load %s: %w", name, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", entity.ErrFrameDecode, name, err)
	}
	return cfg.Width, cfg.Height, nil
}

func ratio(original, resized int) float64 {
	if resized <= 0 {
		return 1
	}
	return float64(original) / float64(resized)
}
