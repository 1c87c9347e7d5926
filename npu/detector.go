//go:build rknn

package npu

import (
	"errors"
	"fmt"
	"io"

	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/preprocess"
	"gocv.io/x/gocv"
)

// Detector runs a YOLOv8 RKNN model on the NPU
type Detector struct {
	cfg     detect.Config
	rt      *runtime
	width   int
	height  int
	resizer *preprocess.Resizer
	resized gocv.Mat
	rgb     gocv.Mat
	ids     detect.IDGenerator
}

// New loads the compiled .rknn model named in the config onto the given NPU
// cores
func New(cfg detect.Config, core Core) (*Detector, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", detect.ErrModelLoad, err)
	}

	rt, err := openRuntime(cfg.Model, core)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", detect.ErrModelLoad, err)
	}

	if len(rt.inputs) != 1 || len(rt.inputs[0].Dims) != 4 {
		rt.Close()
		return nil, fmt.Errorf("%w: expected a single NHWC input tensor", detect.ErrModelLoad)
	}

	in := rt.inputs[0]
	height, width := int(in.Dims[1]), int(in.Dims[2])

	if in.Fmt == TensorNCHW {
		height, width = int(in.Dims[2]), int(in.Dims[3])
	}

	return &Detector{
		cfg:     cfg,
		rt:      rt,
		width:   width,
		height:  height,
		resized: gocv.NewMat(),
		rgb:     gocv.NewMat(),
	}, nil
}

// Detect runs inference on a BGR frame
func (d *Detector) Detect(img gocv.Mat) ([]detect.Result, error) {

	if img.Empty() {
		return nil, errors.New("empty frame")
	}

	if d.resizer == nil || d.resizer.SrcWidth() != img.Cols() ||
		d.resizer.SrcHeight() != img.Rows() {

		if d.resizer != nil {
			d.resizer.Close()
		}

		d.resizer = preprocess.NewResizer(img.Cols(), img.Rows(), d.width, d.height)
	}

	d.resizer.LetterBoxResize(img, &d.resized, detect.PadColor)
	gocv.CvtColor(d.resized, &d.rgb, gocv.ColorBGRToRGB)

	outs, err := d.rt.run(d.rgb)

	if err != nil {
		return nil, err
	}

	cands, err := Decode(outs, d.height, d.cfg.Confidence)

	if err != nil {
		return nil, err
	}

	return detect.Results(cands, detect.LetterboxOf(d.resizer), d.cfg, &d.ids), nil
}

// Close unloads the model and frees the work buffers
func (d *Detector) Close() error {

	if d.resizer != nil {
		d.resizer.Close()
	}

	d.resized.Close()
	d.rgb.Close()

	return d.rt.Close()
}

// Describe writes the runtime version and tensor layout of a model
func Describe(modelFile string, w io.Writer) error {

	rt, err := openRuntime(modelFile, SkipSetCore)

	if err != nil {
		return err
	}

	defer rt.Close()

	return rt.describe(w)
}
