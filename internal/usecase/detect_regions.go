package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"go.uber.org/zap"
)

// RegionResult is the outcome of region detection for one frame. For a frame
// with manual annotations Annotated is the input image, unchanged.
type RegionResult struct {
	FrameID   string
	Count     int
	Regions   []entity.Region
	Annotated image.Image
	Source    entity.RegionSource
}

// RegionDetector counts rectangular regions in a frame, deferring to manual
// annotations whenever the frame has any.
type RegionDetector struct {
	finder port.RegionFinder
	book   *AnnotationBook
	blobs  port.BlobStore
	codec  port.ImageCodec
	logger *zap.Logger
}

func NewRegionDetector(
	finder port.RegionFinder,
	book *AnnotationBook,
	blobs port.BlobStore,
	codec port.ImageCodec,
	logger *zap.Logger,
) *RegionDetector {
	return &RegionDetector{finder: finder, book: book, blobs: blobs, codec: codec, logger: logger}
}

func (d *RegionDetector) DetectRegions(ctx context.Context, frameID string, img image.Image) (*RegionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes, ok, err := d.book.Lookup(ctx, frameID)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", frameID, err)
	}
	if ok {
		regions := make([]entity.Region, len(boxes))
		for i, b := range boxes {
			regions[i] = entity.Region{Box: b, Area: float64(b.Area()), Source: entity.RegionManual}
		}
		d.logger.Debug("using manual annotation", zap.String("frame_id", frameID), zap.Int("regions", len(boxes)))
		return &RegionResult{
			FrameID:   frameID,
			Count:     len(boxes),
			Regions:   regions,
			Annotated: img,
			Source:    entity.RegionManual,
		}, nil
	}

	regions, annotated, err := d.finder.FindRegions(img)
	if err != nil {
		if !errors.Is(err, entity.ErrDetection) {
			err = fmt.Errorf("%w: %v", entity.ErrDetection, err)
		}
		return nil, fmt.Errorf("frame %s: %w", frameID, err)
	}
	return &RegionResult{
		FrameID:   frameID,
		Count:     len(regions),
		Regions:   regions,
		Annotated: annotated,
		Source:    entity.RegionDetected,
	}, nil
}

// DetectRegionsByName loads a stored frame and detects regions in it, using
// the blob name as frame identity.
func (d *RegionDetector) DetectRegionsByName(ctx context.Context, name string) (*RegionResult, error) {
	data, err := d.blobs.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load frame %s: %w", name, err)
	}
	img, err := d.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrFrameDecode, name, err)
	}
	return d.DetectRegions(ctx, name, img)
}

// AddManualAnnotation replaces the boxes of frameID and persists them before
// returning. Later detections of that frame use these boxes.
func (d *RegionDetector) AddManualAnnotation(ctx context.Context, frameID string, boxes []entity.Box) error {
	if err := d.book.Set(ctx, frameID, boxes); err != nil {
		d.logger.Error("failed to save manual annotation", zap.String("frame_id", frameID), zap.Error(err))
		return err
	}
	d.logger.Info("manual annotation saved", zap.String("frame_id", frameID), zap.Int("boxes", len(boxes)))
	return nil
}
