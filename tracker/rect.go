package tracker

import (
	"image"
	"math"
)

// Rect is a bounding box in top left, width, height form
type Rect struct {
	X, Y, W, H float32
}

// RectFromImage converts an image rectangle into a Rect
func RectFromImage(r image.Rectangle) Rect {
	return Rect{
		X: float32(r.Min.X),
		Y: float32(r.Min.Y),
		W: float32(r.Dx()),
		H: float32(r.Dy()),
	}
}

// rectFromXyah builds a Rect from centre x, centre y, aspect ratio and
// height
func rectFromXyah(cx, cy, a, h float64) Rect {
	w := a * h
	return Rect{
		X: float32(cx - w/2),
		Y: float32(cy - h/2),
		W: float32(w),
		H: float32(h),
	}
}

// Right returns the bottom right x coordinate
func (r Rect) Right() float32 {
	return r.X + r.W
}

// Bottom returns the bottom right y coordinate
func (r Rect) Bottom() float32 {
	return r.Y + r.H
}

// Centre returns the centre point of the box
func (r Rect) Centre() image.Point {
	return image.Pt(int(r.X+r.W/2), int(r.Y+r.H/2))
}

// Image returns the box as an integer image rectangle
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.Right()), int(r.Bottom()))
}

// xyah returns the box as centre x, centre y, aspect ratio and height which
// is the measurement space of the Kalman filter
func (r Rect) xyah() [4]float64 {
	return [4]float64{
		float64(r.X + r.W/2),
		float64(r.Y + r.H/2),
		float64(r.W / r.H),
		float64(r.H),
	}
}

// IoU calculates the Intersection over Union with another box treating
// coordinates as inclusive pixels
func (r Rect) IoU(o Rect) float32 {

	iw := float32(math.Min(float64(r.Right()), float64(o.Right())) -
		math.Max(float64(r.X), float64(o.X)) + 1)

	if iw <= 0 {
		return 0
	}

	ih := float32(math.Min(float64(r.Bottom()), float64(o.Bottom())) -
		math.Max(float64(r.Y), float64(o.Y)) + 1)

	if ih <= 0 {
		return 0
	}

	union := (r.W+1)*(r.H+1) + (o.W+1)*(o.H+1) - iw*ih

	return iw * ih / union
}
