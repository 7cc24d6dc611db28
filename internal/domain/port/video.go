package port

import (
	"context"
	"image"
	"time"
)

// VideoInfo is what the decoder reports about a source. FPS <= 0 marks a
// degraded source.
type VideoInfo struct {
	Path        string
	FPS         float64
	FrameCount  int
	Duration    time.Duration
	Width       int
	Height      int
	PixelAspect float64
}

func (i VideoInfo) Degraded() bool {
	return i.FPS <= 0
}

// VideoSource is a stateful decode cursor. It is not safe for concurrent use.
// ReadFrame returns io.EOF at end of stream and an error wrapping
// entity.ErrFrameDecode for a single unreadable frame.
type VideoSource interface {
	Info() VideoInfo
	Seek(position time.Duration) error
	ReadFrame(ctx context.Context) (img image.Image, position time.Duration, err error)
	Close() error
}

type VideoOpener interface {
	Open(ctx context.Context, path string) (VideoSource, error)
}
