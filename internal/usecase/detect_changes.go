package usecase

import (
	"context"
	"fmt"
	"image"
	"path"
	"strings"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/metrics"
	"go.uber.org/zap"
)

// ChangeDetector flags every frame that differs meaningfully from the frame
// before it.
type ChangeDetector struct {
	newComparator port.ComparatorFactory
	blobs         port.BlobStore
	codec         port.ImageCodec
	regions       *RegionDetector
	logger        *zap.Logger
}

func NewChangeDetector(
	newComparator port.ComparatorFactory,
	blobs port.BlobStore,
	codec port.ImageCodec,
	logger *zap.Logger,
) *ChangeDetector {
	return &ChangeDetector{
		newComparator: newComparator,
		blobs:         blobs,
		codec:         codec,
		logger:        logger,
	}
}

// WithRegionAnnotation returns a detector that also runs region detection on
// every flagged frame and stores the annotated copy next to the frames.
func (d *ChangeDetector) WithRegionAnnotation(regions *RegionDetector) *ChangeDetector {
	cp := *d
	cp.regions = regions
	return &cp
}

type loadedFrame struct {
	ref entity.FrameRef
	img image.Image
}

// DetectChanges compares each frame with its predecessor in the given order.
//
// Frames are loaded params.BatchSize at a time; only the current window and
// the last frame of the previous one are kept in memory, so the pair across a
// window boundary is compared exactly once and the result does not depend on
// the batch size. A frame that cannot be loaded is recorded and both pairs
// touching it are skipped.
func (d *ChangeDetector) DetectChanges(ctx context.Context, frames []entity.FrameRef, params entity.DiffParams) (*entity.DiffReport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	cmp := d.newComparator(params.Threshold, params.MinArea)

	report := &entity.DiffReport{}
	if d.regions != nil {
		report.RegionCounts = make(map[string]int)
	}

	var prev *loadedFrame
	for start := 0; start < len(frames); start += params.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+params.BatchSize, len(frames))
		window, err := d.loadWindow(ctx, frames[start:end], report)
		if err != nil {
			return report, err
		}

		for _, cur := range window {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if cur != nil && prev != nil {
				d.compare(ctx, cmp, prev, cur, report)
			}
			prev = cur
		}

		d.logger.Debug("diff window done",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("flagged_so_far", len(report.Flagged)),
		)
	}

	metrics.ActionFramesTotal.Add(float64(len(report.Flagged)))
	d.logger.Info("change detection finished",
		zap.Int("frames", len(frames)),
		zap.Int("compared", report.Compared),
		zap.Int("flagged", len(report.Flagged)),
		zap.Int("skipped", len(report.Failures)),
	)
	return report, nil
}

// loadWindow decodes one batch. Slots of frames that failed to load are nil.
func (d *ChangeDetector) loadWindow(ctx context.Context, refs []entity.FrameRef, report *entity.DiffReport) ([]*loadedFrame, error) {
	window := make([]*loadedFrame, len(refs))
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := d.load(ctx, ref)
		if err != nil {
			d.fail(report, entity.NewFrameFailure(ref.Key, entity.StageLoad, err))
			continue
		}
		window[i] = &loadedFrame{ref: ref, img: img}
	}
	return window, nil
}

func (d *ChangeDetector) load(ctx context.Context, ref entity.FrameRef) (image.Image, error) {
	data, err := d.blobs.Get(ctx, ref.Name)
	if err != nil {
		return nil, err
	}
	img, err := d.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrFrameDecode, err)
	}
	return img, nil
}

func (d *ChangeDetector) compare(ctx context.Context, cmp port.ChangeComparator, prev, cur *loadedFrame, report *entity.DiffReport) {
	changed, err := cmp.Changed(prev.img, cur.img)
	if err != nil {
		d.fail(report, entity.NewFrameFailure(cur.ref.Key, entity.StageCompare, err))
		return
	}
	report.Compared++
	if !changed {
		return
	}
	report.Flagged = append(report.Flagged, cur.ref)

	if d.regions != nil {
		d.annotate(ctx, cur, report)
	}
}

func (d *ChangeDetector) annotate(ctx context.Context, frame *loadedFrame, report *entity.DiffReport) {
	res, err := d.regions.DetectRegions(ctx, frame.ref.Name, frame.img)
	if err != nil {
		d.fail(report, entity.NewFrameFailure(frame.ref.Key, entity.StageRegions, err))
		return
	}
	report.RegionCounts[frame.ref.Key] = res.Count

	ext := path.Ext(frame.ref.Name)
	namespace := path.Dir(path.Dir(frame.ref.Name))
	data, err := d.codec.Encode(res.Annotated, strings.TrimPrefix(ext, "."))
	if err != nil {
		d.fail(report, entity.NewFrameFailure(frame.ref.Key, entity.StageEncode, err))
		return
	}
	name := entity.FrameBlobName(namespace, entity.AnnotatedFramesDir, frame.ref.Key, ext)
	if err := d.blobs.Put(ctx, name, data); err != nil {
		d.fail(report, entity.NewFrameFailure(frame.ref.Key, entity.StageStore, err))
	}
}

func (d *ChangeDetector) fail(report *entity.DiffReport, f entity.FrameFailure) {
	report.Failures = append(report.Failures, f)
	metrics.ObserveFailures(f.Stage, 1)
	d.logger.Warn("frame skipped in change detection",
		zap.String("key", f.Key),
		zap.String("stage", f.Stage),
		zap.String("error", f.Message),
	)
}
