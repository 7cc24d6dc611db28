// Package app assembles the pipeline from configuration. Both binaries share
// it so the worker and the CLI run identical stages.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/annotation"
	"github.com/framelab/actionframes/internal/infra/archive"
	"github.com/framelab/actionframes/internal/infra/config"
	"github.com/framelab/actionframes/internal/infra/imagecodec"
	"github.com/framelab/actionframes/internal/infra/localfs"
	miniostorage "github.com/framelab/actionframes/internal/infra/minio"
	"github.com/framelab/actionframes/internal/infra/opencv"
	"github.com/framelab/actionframes/internal/usecase"
	"go.uber.org/zap"
)

// Storage is a blob store that can also hand uploaded videos to the decoder.
type Storage interface {
	port.BlobStore
	port.VideoFetcher
}

type Components struct {
	Blobs    Storage
	Pipeline *usecase.Pipeline
	Regions  *usecase.RegionDetector
	Detector *usecase.ChangeDetector
}

// OpenStorage returns the blob store selected by STORAGE_BACKEND.
func OpenStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageFS:
		return localfs.NewStorage(cfg.StorageRoot)
	case config.StorageMinIO:
		s, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// OpenAnnotations keeps the annotation document next to the frames: a file
// below the storage root, or an object in the bucket.
func OpenAnnotations(cfg *config.Config, blobs port.BlobStore) port.AnnotationStore {
	if cfg.StorageBackend == config.StorageFS {
		return annotation.NewFileStore(filepath.Join(cfg.StorageRoot, cfg.AnnotationsPath))
	}
	return annotation.NewBlobStore(blobs, cfg.AnnotationsPath)
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Components, error) {
	blobs, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	book, err := usecase.NewAnnotationBook(ctx, OpenAnnotations(cfg, blobs))
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}

	codec := imagecodec.New(cfg.ImageQuality)
	rp := cfg.RegionParams()
	regions := usecase.NewRegionDetector(opencv.NewRectangleFinder(rp.MinArea, rp.MaxArea), book, blobs, codec, log)

	detector := usecase.NewChangeDetector(func(threshold, minArea float64) port.ChangeComparator {
		return opencv.NewPairDiffer(threshold, minArea)
	}, blobs, codec, log).WithRegionAnnotation(regions)

	extractor := usecase.NewFrameExtractor(opencv.NewVideoOpener(log), codec, blobs, cfg.FrameReadTimeout, log)
	pipeline := usecase.NewPipeline(extractor, detector, blobs, archive.NewZipCreator(), log, usecase.PipelineConfig{
		WorkerCount: cfg.WorkerCount,
		MaxAttempts: cfg.MaxRetries,
	})

	return &Components{Blobs: blobs, Pipeline: pipeline, Regions: regions, Detector: detector}, nil
}
