package port

import (
	"context"
	"errors"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a flat namespace of named byte blobs. List returns names in
// lexicographic order.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// VideoFetcher copies an uploaded video to a local path the decoder can open.
type VideoFetcher interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
}
