// Package preprocess prepares source frames for model input tensors.
package preprocess

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Resizer scales frames of a fixed source size into a model input tensor
// using letterboxing so the image aspect ratio is kept
type Resizer struct {
	srcW, srcH int
	dstW, dstH int
	scaledW    int
	scaledH    int
	xPad, yPad int
	scale      float32
	scaled     gocv.Mat
}

// NewResizer returns a Resizer for frames of srcW x srcH scaled into a
// dstW x dstH tensor
func NewResizer(srcW, srcH, dstW, dstH int) *Resizer {

	r := &Resizer{
		srcW:   srcW,
		srcH:   srcH,
		dstW:   dstW,
		dstH:   dstH,
		scaled: gocv.NewMat(),
	}

	sw := float32(dstW) / float32(srcW)
	sh := float32(dstH) / float32(srcH)

	// the smaller ratio fits the whole frame, the other axis gets padded
	r.scale = sh
	r.scaledW = int(float32(srcW) * sh)
	r.scaledH = dstH

	if sw < sh {
		r.scale = sw
		r.scaledW = dstW
		r.scaledH = int(float32(srcH) * sw)
	}

	r.xPad = (dstW - r.scaledW) / 2
	r.yPad = (dstH - r.scaledH) / 2

	return r
}

// LetterBoxResize scales src into dst padding the borders with fill
func (r *Resizer) LetterBoxResize(src gocv.Mat, dst *gocv.Mat, fill color.RGBA) {

	gocv.Resize(src, &r.scaled, image.Pt(r.scaledW, r.scaledH), 0, 0,
		gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.scaled, dst,
		r.yPad, r.dstH-r.scaledH-r.yPad,
		r.xPad, r.dstW-r.scaledW-r.xPad,
		gocv.BorderConstant, fill)
}

// ScaleFactor is the ratio applied to source pixels
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad is the left border width
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad is the top border height
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source frames
func (r *Resizer) SrcWidth() int {
	return r.srcW
}

// SrcHeight returns the height of the source frames
func (r *Resizer) SrcHeight() int {
	return r.srcH
}

// Close frees the intermediate scaled Mat
func (r *Resizer) Close() error {
	return r.scaled.Close()
}
