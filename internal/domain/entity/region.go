package entity

import "math"

type RegionSource string

const (
	RegionDetected RegionSource = "detected"
	RegionManual   RegionSource = "manual"
)

// Box is an axis-aligned pixel rectangle.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (b Box) Area() int {
	return b.W * b.H
}

// Scale maps a box into another coordinate space, rounding to whole pixels.
func (b Box) Scale(fx, fy float64) Box {
	return Box{
		X: int(math.Round(float64(b.X) * fx)),
		Y: int(math.Round(float64(b.Y) * fy)),
		W: int(math.Round(float64(b.W) * fx)),
		H: int(math.Round(float64(b.H) * fy)),
	}
}

type Region struct {
	Box    Box          `json:"box"`
	Area   float64      `json:"area"`
	Source RegionSource `json:"source"`
}

// AnnotationDocument maps a frame identity to its manually supplied boxes.
// It is persisted as one document and always overwritten as a whole.
type AnnotationDocument map[string][]Box

// Clone returns a deep copy so callers can mutate without touching the source.
func (d AnnotationDocument) Clone() AnnotationDocument {
	out := make(AnnotationDocument, len(d))
	for id, boxes := range d {
		out[id] = append([]Box(nil), boxes...)
	}
	return out
}
