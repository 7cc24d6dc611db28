package opencv

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle) {
	draw.Draw(img, r, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
}

// fillRightTriangle paints the triangle with legs along the top and left edges
// of r.
func fillRightTriangle(img *image.RGBA, r image.Rectangle) {
	w, h := r.Dx(), r.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x*h+y*w <= w*h {
				img.Set(r.Min.X+x, r.Min.Y+y, color.White)
			}
		}
	}
}

func countGreen(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if g>>8 == 255 && r>>8 == 0 && bl>>8 == 0 {
				n++
			}
		}
	}
	return n
}

// greenOutlines counts the separate outlines drawn in pure green.
func greenOutlines(t *testing.T, img image.Image) int {
	t.Helper()
	b := img.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if g>>8 == 255 && r>>8 == 0 && bl>>8 == 0 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	mat, err := gocv.ImageGrayToMatGray(mask)
	require.NoError(t, err)
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	return contours.Size()
}

func TestPairDifferFlagsMovedRectangle(t *testing.T) {
	d := NewPairDiffer(30, 500)

	a := blankFrame(320, 240)
	fillRect(a, image.Rect(20, 20, 70, 70))
	b := blankFrame(320, 240)
	fillRect(b, image.Rect(150, 100, 200, 150))

	changed, err := d.Changed(a, b)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Changed(a, a)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPairDifferIgnoresSmallChange(t *testing.T) {
	d := NewPairDiffer(30, 500)

	a := blankFrame(320, 240)
	b := blankFrame(320, 240)
	fillRect(b, image.Rect(10, 10, 20, 20))

	changed, err := d.Changed(a, b)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPairDifferIgnoresFaintChange(t *testing.T) {
	d := NewPairDiffer(30, 500)

	a := blankFrame(320, 240)
	b := blankFrame(320, 240)
	draw.Draw(b, image.Rect(0, 0, 200, 200), &image.Uniform{C: color.Gray{Y: 20}}, image.Point{}, draw.Src)

	changed, err := d.Changed(a, b)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPairDifferRejectsSizeMismatch(t *testing.T) {
	_, err := NewPairDiffer(30, 500).Changed(blankFrame(320, 240), blankFrame(160, 120))
	assert.ErrorIs(t, err, entity.ErrDetection)
}

func TestRectangleFinderCountsQuadrilateral(t *testing.T) {
	f := NewRectangleFinder(5000, 100000)

	img := blankFrame(400, 300)
	fillRect(img, image.Rect(100, 100, 200, 160)) // 100 x 60 = 6000

	regions, annotated, err := f.FindRegions(img)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, entity.RegionDetected, regions[0].Source)
	assert.InDelta(t, 6000, regions[0].Area, 600)
	assert.InDelta(t, 100, regions[0].Box.X, 2)
	assert.InDelta(t, 100, regions[0].Box.Y, 2)

	require.NotNil(t, annotated)
	assert.Equal(t, 1, greenOutlines(t, annotated))
	assert.Zero(t, countGreen(img))
}

func TestRectangleFinderRejectsTriangle(t *testing.T) {
	f := NewRectangleFinder(5000, 100000)

	img := blankFrame(400, 300)
	fillRightTriangle(img, image.Rect(100, 80, 220, 180)) // 120 x 100 / 2 = 6000

	regions, annotated, err := f.FindRegions(img)
	require.NoError(t, err)
	assert.Empty(t, regions)
	assert.Zero(t, countGreen(annotated))
}

func TestRectangleFinderAreaBounds(t *testing.T) {
	img := blankFrame(400, 300)
	fillRect(img, image.Rect(100, 100, 130, 130)) // 900

	regions, _, err := NewRectangleFinder(5000, 100000).FindRegions(img)
	require.NoError(t, err)
	assert.Empty(t, regions)

	regions, _, err = NewRectangleFinder(500, 2000).FindRegions(img)
	require.NoError(t, err)
	assert.Len(t, regions, 1)
}

func TestRectangleFinderIsDeterministic(t *testing.T) {
	f := NewRectangleFinder(1000, 100000)

	img := blankFrame(400, 300)
	fillRect(img, image.Rect(20, 20, 120, 80))
	fillRect(img, image.Rect(200, 150, 320, 260))
	fillRightTriangle(img, image.Rect(250, 20, 350, 120))

	first, _, err := f.FindRegions(img)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := f.FindRegions(img)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Len(t, first, 2)
}
