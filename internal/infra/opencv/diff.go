// Package opencv holds the gocv-backed video decoder and the frame analysis
// primitives used by the pipeline.
package opencv

import (
	"fmt"
	"image"

	"github.com/framelab/actionframes/internal/domain/entity"
	"gocv.io/x/gocv"
)

// PairDiffer flags visual change between two frames: grayscale, absolute
// difference, binary threshold, then any external contour larger than MinArea.
type PairDiffer struct {
	Threshold float64
	MinArea   float64
}

func NewPairDiffer(threshold, minArea float64) *PairDiffer {
	return &PairDiffer{Threshold: threshold, MinArea: minArea}
}

func (d *PairDiffer) Changed(prev, next image.Image) (bool, error) {
	if prev.Bounds().Size() != next.Bounds().Size() {
		return false, fmt.Errorf("%w: frame size %v differs from %v",
			entity.ErrDetection, next.Bounds().Size(), prev.Bounds().Size())
	}

	gray1, err := grayMat(prev)
	if err != nil {
		return false, err
	}
	defer gray1.Close()
	gray2, err := grayMat(next)
	if err != nil {
		return false, err
	}
	defer gray2.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray1, gray2, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, float32(d.Threshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) > d.MinArea {
			return true, nil
		}
	}
	return false, nil
}

// grayMat converts an image to a single-channel 8-bit Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: convert image: %v", entity.ErrDetection, err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
