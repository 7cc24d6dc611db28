package port

import (
	"context"

	"github.com/framelab/actionframes/internal/domain/entity"
)

// AnnotationStore persists the whole annotation document. Load on a store
// that was never saved returns an empty document.
type AnnotationStore interface {
	Load(ctx context.Context) (entity.AnnotationDocument, error)
	Save(ctx context.Context, doc entity.AnnotationDocument) error
}

// AnnotationLocker is implemented by stores that other processes write too.
// Lock blocks until the caller owns the document; unlock releases it.
type AnnotationLocker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}
