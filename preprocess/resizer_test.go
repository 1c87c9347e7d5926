package preprocess

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

var grey = color.RGBA{R: 114, G: 114, B: 114, A: 255}

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcW, srcH int
		dstW, dstH int
		xPad, yPad int
		scale      float32
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
		{640, 480, 320, 320, 0, 40, 0.5},
	}

	for _, tc := range tests {

		img := gocv.NewMatWithSize(tc.srcH, tc.srcW, gocv.MatTypeCV8UC3)
		dst := gocv.NewMat()
		r := NewResizer(tc.srcW, tc.srcH, tc.dstW, tc.dstH)

		r.LetterBoxResize(img, &dst, grey)

		assert.Equal(t, tc.xPad, r.XPad(), "xpad for %dx%d", tc.srcW, tc.srcH)
		assert.Equal(t, tc.yPad, r.YPad(), "ypad for %dx%d", tc.srcW, tc.srcH)
		assert.InDelta(t, tc.scale, r.ScaleFactor(), 1e-6)
		assert.Equal(t, tc.dstW, dst.Cols())
		assert.Equal(t, tc.dstH, dst.Rows())

		img.Close()
		dst.Close()
		r.Close()
	}
}
