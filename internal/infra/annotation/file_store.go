// Package annotation persists the manual annotation document.
package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/infra/localfs"
)

// FileStore keeps the document as one JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (entity.AnnotationDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.AnnotationDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read annotations %s: %w", s.path, err)
	}
	return decode(data)
}

// Save overwrites the whole document. The file is replaced by rename, so a
// crash mid-write leaves the previous version intact.
func (s *FileStore) Save(ctx context.Context, doc entity.AnnotationDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: create dir: %v", entity.ErrAnnotationSave, err)
	}
	if err := localfs.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrAnnotationSave, err)
	}
	return nil
}

func decode(data []byte) (entity.AnnotationDocument, error) {
	doc := entity.AnnotationDocument{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	return doc, nil
}

func encode(doc entity.AnnotationDocument) ([]byte, error) {
	if doc == nil {
		doc = entity.AnnotationDocument{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", entity.ErrAnnotationSave, err)
	}
	return data, nil
}
