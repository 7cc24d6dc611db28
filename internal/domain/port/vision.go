package port

import (
	"image"

	"github.com/framelab/actionframes/internal/domain/entity"
)

// ChangeComparator decides whether next differs meaningfully from prev.
type ChangeComparator interface {
	Changed(prev, next image.Image) (bool, error)
}

// RegionFinder outlines rectangular regions in an image and returns an
// annotated copy.
type RegionFinder interface {
	FindRegions(img image.Image) ([]entity.Region, image.Image, error)
}

// ImageCodec converts between stored bytes and images.
type ImageCodec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, format string) ([]byte, error)
}

// ComparatorFactory builds a comparator for one detection run.
type ComparatorFactory func(threshold, minArea float64) ChangeComparator
