package entity

import "errors"

var (
	// ErrSourceUnreadable means the video could not be opened or decoded at all.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrFrameDecode marks a single frame that could not be decoded.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrReadTimeout means one frame read exceeded the configured timeout.
	ErrReadTimeout = errors.New("frame read timed out")

	ErrAnnotationSave = errors.New("annotation save failed")
	ErrDetection      = errors.New("detection failed")
	ErrInvalidConfig  = errors.New("invalid configuration")
)
