package usecase

import (
	"context"
	"path"
	"sync"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/framelab/actionframes/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultMarkupConcurrency = 4

// MarkupStage asks a renderer for an HTML replica of each action frame and
// stores it under the namespace markup directory.
type MarkupStage struct {
	renderer    port.MarkupRenderer
	blobs       port.BlobStore
	concurrency int
	logger      *zap.Logger
}

func NewMarkupStage(renderer port.MarkupRenderer, blobs port.BlobStore, concurrency int, logger *zap.Logger) *MarkupStage {
	if concurrency < 1 {
		concurrency = DefaultMarkupConcurrency
	}
	return &MarkupStage{renderer: renderer, blobs: blobs, concurrency: concurrency, logger: logger}
}

// Run renders the original-resolution image of every action frame. Failed
// frames are listed in the report; only cancellation aborts the stage.
func (s *MarkupStage) Run(ctx context.Context, namespace string, actions []entity.ActionFrame) (*entity.MarkupReport, error) {
	report := &entity.MarkupReport{Rendered: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, a := range actions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, failure := s.renderOne(gctx, namespace, a)
			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				report.Failures = append(report.Failures, *failure)
				metrics.ObserveFailures(failure.Stage, 1)
				s.logger.Warn("markup skipped", zap.String("key", a.Key), zap.String("error", failure.Message))
				return nil
			}
			report.Rendered[a.Key] = name
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.logger.Info("markup rendered",
		zap.String("namespace", namespace),
		zap.Int("rendered", len(report.Rendered)),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (s *MarkupStage) renderOne(ctx context.Context, namespace string, a entity.ActionFrame) (string, *entity.FrameFailure) {
	fail := func(stage string, err error) (string, *entity.FrameFailure) {
		f := entity.NewFrameFailure(a.Key, stage, err)
		return "", &f
	}

	data, err := s.blobs.Get(ctx, a.OriginalName)
	if err != nil {
		return fail(entity.StageLoad, err)
	}
	html, err := s.renderer.Render(ctx, data)
	if err != nil {
		return fail(entity.StageMarkup, err)
	}
	name := path.Join(namespace, entity.MarkupDir, a.Key+".html")
	if err := s.blobs.Put(ctx, name, []byte(html)); err != nil {
		return fail(entity.StageStore, err)
	}
	return name, nil
}
