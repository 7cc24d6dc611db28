//go:build !unix

package annotation

import "context"

// Lock is process-local on platforms without flock; the book's mutex is the
// only writer serialization there.
func (s *FileStore) Lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}
