package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
)

// AnnotationBook is one process's view of the annotation document. The store
// is the source of truth: lookups re-read it so entries written by another
// process are seen, and writes reload under the store's lock when it has one.
type AnnotationBook struct {
	mu    sync.Mutex
	store port.AnnotationStore
	doc   entity.AnnotationDocument
}

func NewAnnotationBook(ctx context.Context, store port.AnnotationStore) (*AnnotationBook, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	return &AnnotationBook{store: store, doc: doc}, nil
}

// Lookup returns a copy of the boxes currently stored for frameID.
func (b *AnnotationBook) Lookup(ctx context.Context, frameID string) ([]entity.Box, bool, error) {
	doc, err := b.store.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load annotations: %w", err)
	}

	b.mu.Lock()
	b.doc = doc
	b.mu.Unlock()

	boxes, ok := doc[frameID]
	if !ok {
		return nil, false, nil
	}
	return append([]entity.Box(nil), boxes...), true, nil
}

// Set replaces the entry for frameID and persists the whole document before
// returning. On failure the in-memory document is left unchanged.
func (b *AnnotationBook) Set(ctx context.Context, frameID string, boxes []entity.Box) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if locker, ok := b.store.(port.AnnotationLocker); ok {
		unlock, err := locker.Lock(ctx)
		if err != nil {
			return fmt.Errorf("%w: lock: %v", entity.ErrAnnotationSave, err)
		}
		defer unlock()
	}

	current, err := b.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: reload before write: %v", entity.ErrAnnotationSave, err)
	}
	next := current.Clone()
	next[frameID] = append([]entity.Box{}, boxes...)

	if err := b.store.Save(ctx, next); err != nil {
		if !errors.Is(err, entity.ErrAnnotationSave) {
			err = fmt.Errorf("%w: %v", entity.ErrAnnotationSave, err)
		}
		return err
	}
	b.doc = next
	return nil
}

func (b *AnnotationBook) Snapshot() entity.AnnotationDocument {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone()
}
