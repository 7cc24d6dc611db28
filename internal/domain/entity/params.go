package entity

import "fmt"

// DiffParams tunes change detection between consecutive frames.
type DiffParams struct {
	Threshold float64 `json:"threshold"`
	MinArea   float64 `json:"min_area"`
	BatchSize int     `json:"batch_size"`
}

func (p DiffParams) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 255 {
		return fmt.Errorf("%w: diff threshold must be in (0, 255], got %v", ErrInvalidConfig, p.Threshold)
	}
	if p.MinArea <= 0 {
		return fmt.Errorf("%w: diff min_area must be positive, got %v", ErrInvalidConfig, p.MinArea)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: diff batch_size must be positive, got %d", ErrInvalidConfig, p.BatchSize)
	}
	return nil
}

// RegionParams bounds the contour area of accepted regions, inclusive.
type RegionParams struct {
	MinArea float64 `json:"min_area"`
	MaxArea float64 `json:"max_area"`
}

func (p RegionParams) Validate() error {
	if p.MinArea <= 0 || p.MaxArea <= 0 {
		return fmt.Errorf("%w: region areas must be positive, got [%v, %v]", ErrInvalidConfig, p.MinArea, p.MaxArea)
	}
	if p.MinArea > p.MaxArea {
		return fmt.Errorf("%w: region min_area %v exceeds max_area %v", ErrInvalidConfig, p.MinArea, p.MaxArea)
	}
	return nil
}
