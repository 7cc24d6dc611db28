package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
)

// memBlobs is an in-memory port.BlobStore with optional failure injection.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut func(name string) error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		if err := m.failPut(name); err != nil {
			return err
		}
	}
	m.data[name] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrBlobNotFound, name)
	}
	return d, nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.data {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// grayFrame returns a uniform frame; the gray level stands in for content.
func grayFrame(w, h int, level uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func levelOf(img image.Image) int {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r >> 8)
}

// fakeVideo plays a synthetic video whose gray level encodes the position in
// tenths of a second.
type fakeVideo struct {
	info      port.VideoInfo
	badAt     map[time.Duration]bool
	blockAt   map[time.Duration]bool
	pos       time.Duration
	closed    atomic.Bool
	seekCalls []time.Duration
}

func (v *fakeVideo) Info() port.VideoInfo { return v.info }

func (v *fakeVideo) Seek(p time.Duration) error {
	v.pos = p
	v.seekCalls = append(v.seekCalls, p)
	return nil
}

func (v *fakeVideo) ReadFrame(ctx context.Context) (image.Image, time.Duration, error) {
	if v.info.Duration > 0 && v.pos >= v.info.Duration {
		return nil, 0, io.EOF
	}
	if v.blockAt[v.pos] {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	if v.badAt[v.pos] {
		return nil, 0, fmt.Errorf("%w: corrupt packet", entity.ErrFrameDecode)
	}
	return grayFrame(v.info.Width, v.info.Height, uint8(v.pos/(100*time.Millisecond))), v.pos, nil
}

func (v *fakeVideo) Close() error {
	v.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	videos   map[string]func() *fakeVideo
	opened   []*fakeVideo
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	hold     time.Duration
}

func (o *fakeOpener) Open(_ context.Context, path string) (port.VideoSource, error) {
	o.mu.Lock()
	mk, ok := o.videos[path]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", entity.ErrSourceUnreadable, path)
	}
	n := o.inFlight.Add(1)
	for {
		m := o.maxSeen.Load()
		if n <= m || o.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	v := mk()
	o.mu.Lock()
	o.opened = append(o.opened, v)
	o.mu.Unlock()
	if o.hold > 0 {
		time.Sleep(o.hold)
	}
	return &trackedVideo{fakeVideo: v, opener: o}, nil
}

type trackedVideo struct {
	*fakeVideo
	opener *fakeOpener
}

func (t *trackedVideo) Close() error {
	t.opener.inFlight.Add(-1)
	return t.fakeVideo.Close()
}

func video(w, h int, fps float64, duration time.Duration) func() *fakeVideo {
	return func() *fakeVideo {
		return &fakeVideo{info: port.VideoInfo{
			FPS:         fps,
			FrameCount:  int(fps * duration.Seconds()),
			Duration:    duration,
			Width:       w,
			Height:      h,
			PixelAspect: 1,
		}}
	}
}

// levelComparator flags a pair when the gray levels differ by at least the
// threshold. Frames at failLevel make it return an error.
type levelComparator struct {
	threshold float64
	failLevel int
	calls     *atomic.Int32
}

func (c levelComparator) Changed(prev, next image.Image) (bool, error) {
	if c.calls != nil {
		c.calls.Add(1)
	}
	if levelOf(next) == c.failLevel || levelOf(prev) == c.failLevel {
		return false, fmt.Errorf("%w: synthetic failure", entity.ErrDetection)
	}
	d := levelOf(next) - levelOf(prev)
	if d < 0 {
		d = -d
	}
	return float64(d) >= c.threshold, nil
}

func levelComparatorFactory(failLevel int, calls *atomic.Int32) port.ComparatorFactory {
	return func(threshold, _ float64) port.ChangeComparator {
		return levelComparator{threshold: threshold, failLevel: failLevel, calls: calls}
	}
}

// countingFinder reports one region per call and marks the annotated copy.
type countingFinder struct {
	calls atomic.Int32
	err   error
}

func (f *countingFinder) FindRegions(img image.Image) ([]entity.Region, image.Image, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	out.Set(0, 0, color.RGBA{G: 255, A: 255})
	return []entity.Region{{
		Box:    entity.Box{X: 1, Y: 1, W: b.Dx() / 2, H: b.Dy() / 2},
		Area:   float64(b.Dx() * b.Dy() / 4),
		Source: entity.RegionDetected,
	}}, out, nil
}

// memAnnotations is an in-memory port.AnnotationStore.
type memAnnotations struct {
	mu      sync.Mutex
	doc     entity.AnnotationDocument
	saves   int
	saveErr error
	loadErr error
}

func (m *memAnnotations) Load(context.Context) (entity.AnnotationDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.doc == nil {
		return entity.AnnotationDocument{}, nil
	}
	return m.doc.Clone(), nil
}

func (m *memAnnotations) Save(_ context.Context, doc entity.AnnotationDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.doc = doc.Clone()
	return nil
}

var errBoom = errors.New("boom")
