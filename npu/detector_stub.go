//go:build !rknn

package npu

import (
	"fmt"
	"io"

	"github.com/swdee/go-objcount/detect"
	"gocv.io/x/gocv"
)

// Detector is unavailable without the rknn build tag
type Detector struct{}

// New always fails when built without NPU support
func New(cfg detect.Config, core Core) (*Detector, error) {
	return nil, fmt.Errorf("%w: %w", detect.ErrModelLoad, ErrUnavailable)
}

func (d *Detector) Detect(img gocv.Mat) ([]detect.Result, error) {
	return nil, ErrUnavailable
}

func (d *Detector) Close() error {
	return nil
}

// Describe always fails when built without NPU support
func Describe(modelFile string, w io.Writer) error {
	return ErrUnavailable
}
