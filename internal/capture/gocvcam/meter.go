package gocvcam

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const meterSize = 100

// Meter measures brightness as the mean of a 100x100 grayscale thumbnail.
type Meter struct{}

// Brightness decodes jpeg and returns its mean luma in [0,255].
func (Meter) Brightness(jpeg []byte) (float64, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return 0, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return 0, fmt.Errorf("decode frame: empty image")
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(img, &small, image.Pt(meterSize, meterSize), 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)

	return gray.Mean().Val1, nil
}
