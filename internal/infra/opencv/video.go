package opencv

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// VideoOpener opens video files through OpenCV's VideoCapture.
type VideoOpener struct {
	logger *zap.Logger
}

func NewVideoOpener(logger *zap.Logger) *VideoOpener {
	return &VideoOpener{logger: logger}
}

func (o *VideoOpener) Open(_ context.Context, path string) (port.VideoSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", entity.ErrSourceUnreadable, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: open %s: capture not opened", entity.ErrSourceUnreadable, path)
	}

	info := port.VideoInfo{
		Path:        path,
		FPS:         capture.Get(gocv.VideoCaptureFPS),
		FrameCount:  int(capture.Get(gocv.VideoCaptureFrameCount)),
		Width:       int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(capture.Get(gocv.VideoCaptureFrameHeight)),
		PixelAspect: 1,
	}
	if num, den := capture.Get(gocv.VideoCaptureSarNum), capture.Get(gocv.VideoCaptureSarDen); num > 0 && den > 0 {
		info.PixelAspect = num / den
	}
	if info.FPS > 0 && info.FrameCount > 0 {
		info.Duration = time.Duration(float64(info.FrameCount) / info.FPS * float64(time.Second))
	}

	o.logger.Debug("video opened",
		zap.String("path", path),
		zap.Float64("fps", info.FPS),
		zap.Int("frame_count", info.FrameCount),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("pixel_aspect", info.PixelAspect),
	)

	return &videoSource{capture: capture, info: info}, nil
}

type readResult struct {
	img      image.Image
	position time.Duration
	err      error
}

// videoSource wraps one VideoCapture. A read that outlives its context keeps
// the capture busy; Close waits for it before releasing native memory.
type videoSource struct {
	capture *gocv.VideoCapture
	info    port.VideoInfo

	mu     sync.Mutex
	busy   bool
	closed bool
}

func (s *videoSource) Info() port.VideoInfo {
	return s.info
}

func (s *videoSource) Seek(position time.Duration) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	s.capture.Set(gocv.VideoCapturePosMsec, float64(position)/float64(time.Millisecond))
	return nil
}

func (s *videoSource) ReadFrame(ctx context.Context) (image.Image, time.Duration, error) {
	if err := s.acquire(); err != nil {
		return nil, 0, err
	}

	results := make(chan readResult, 1)
	go func() {
		defer s.release()
		results <- s.read()
	}()

	select {
	case r := <-results:
		return r.img, r.position, r.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

func (s *videoSource) read() readResult {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		return readResult{err: io.EOF}
	}
	position := time.Duration(s.capture.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))

	img, err := mat.ToImage()
	if err != nil {
		return readResult{position: position, err: fmt.Errorf("%w: %v", entity.ErrFrameDecode, err)}
	}
	return readResult{img: img, position: position}
}

// acquire marks the capture busy. A previous read that timed out and is still
// running makes the source unusable.
func (s *videoSource) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: source closed", entity.ErrSourceUnreadable)
	}
	if s.busy {
		return fmt.Errorf("%w: previous read still running", entity.ErrReadTimeout)
	}
	s.busy = true
	return nil
}

func (s *videoSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.closed {
		s.capture.Close()
	}
}

func (s *videoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.busy {
		// the running read releases the capture when it returns
		return nil
	}
	return s.capture.Close()
}
