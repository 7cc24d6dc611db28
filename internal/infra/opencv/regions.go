package opencv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/framelab/actionframes/internal/domain/entity"
	"gocv.io/x/gocv"
)

// Canny hysteresis thresholds are fixed.
const (
	cannyLow  = 50
	cannyHigh = 150

	approxEpsilonRatio = 0.02
	outlineThickness   = 2
)

var outlineColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// RectangleFinder detects UI-like rectangles: edge map, external contours in
// the [MinArea, MaxArea] range whose simplified polygon has four vertices.
type RectangleFinder struct {
	MinArea float64
	MaxArea float64
}

func NewRectangleFinder(minArea, maxArea float64) *RectangleFinder {
	return &RectangleFinder{MinArea: minArea, MaxArea: maxArea}
}

func (f *RectangleFinder) FindRegions(img image.Image) ([]entity.Region, image.Image, error) {
	canvas, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: convert image: %v", entity.ErrDetection, err)
	}
	defer canvas.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(canvas, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, cannyLow, cannyHigh)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	accepted := gocv.NewPointsVector()
	defer accepted.Close()

	var regions []entity.Region
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < f.MinArea || area > f.MaxArea {
			continue
		}
		if !isQuadrilateral(contour) {
			continue
		}
		accepted.Append(contour)
		r := gocv.BoundingRect(contour)
		regions = append(regions, entity.Region{
			Box:    entity.Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()},
			Area:   area,
			Source: entity.RegionDetected,
		})
	}

	if accepted.Size() > 0 {
		gocv.DrawContours(&canvas, accepted, -1, outlineColor, outlineThickness)
	}

	annotated, err := canvas.ToImage()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: export annotated image: %v", entity.ErrDetection, err)
	}
	return regions, annotated, nil
}

func isQuadrilateral(contour gocv.PointVector) bool {
	perimeter := gocv.ArcLength(contour, true)
	approx := gocv.ApproxPolyDP(contour, approxEpsilonRatio*perimeter, true)
	defer approx.Close()
	return approx.Size() == 4
}
