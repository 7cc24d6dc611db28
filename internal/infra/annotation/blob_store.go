package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
)

// BlobStore keeps the document as a single object in a port.BlobStore, for
// deployments where workers share object storage instead of a disk.
type BlobStore struct {
	blobs port.BlobStore
	name  string
}

func NewBlobStore(blobs port.BlobStore, name string) *BlobStore {
	return &BlobStore{blobs: blobs, name: name}
}

func (s *BlobStore) Load(ctx context.Context) (entity.AnnotationDocument, error) {
	data, err := s.blobs.Get(ctx, s.name)
	if errors.Is(err, port.ErrBlobNotFound) {
		return entity.AnnotationDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	return decode(data)
}

func (s *BlobStore) Save(ctx context.Context, doc entity.AnnotationDocument) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.name, data); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrAnnotationSave, err)
	}
	return nil
}
