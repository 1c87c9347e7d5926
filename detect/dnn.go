package detect

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/swdee/go-objcount/preprocess"
	"gocv.io/x/gocv"
)

// PadColor is the letterbox fill used by YOLOv8 training
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// DNN runs YOLOv8 ONNX models through the OpenCV DNN module
type DNN struct {
	cfg     Config
	net     gocv.Net
	input   gocv.Mat
	resizer *preprocess.Resizer
	ids     IDGenerator
}

// NewDNN loads the ONNX model named in the config
func NewDNN(cfg Config) (*DNN, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	info, err := os.Stat(cfg.Model)

	if err != nil {
		return nil, fmt.Errorf("%w: model file %s: %w", ErrModelLoad, cfg.Model, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: model file %s is a directory", ErrModelLoad, cfg.Model)
	}

	net := gocv.ReadNet(cfg.Model, "")

	if net.Empty() {
		return nil, fmt.Errorf("%w: opencv could not read %s", ErrModelLoad, cfg.Model)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU

	switch cfg.Device {
	case CUDA:
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA

		if cfg.Half {
			target = gocv.NetTargetCUDAFP16
		}

	case NPU:
		net.Close()
		return nil, fmt.Errorf("%w: device npu is not supported by the opencv backend", ErrModelLoad)
	}

	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %w", ErrModelLoad, err)
	}

	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set target: %w", ErrModelLoad, err)
	}

	return &DNN{
		cfg:   cfg,
		net:   net,
		input: gocv.NewMat(),
	}, nil
}

// Detect runs inference on a BGR frame
func (d *DNN) Detect(img gocv.Mat) ([]Result, error) {

	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	size := d.cfg.ImgSize

	if d.resizer == nil || d.resizer.SrcWidth() != img.Cols() ||
		d.resizer.SrcHeight() != img.Rows() {

		if d.resizer != nil {
			d.resizer.Close()
		}

		d.resizer = preprocess.NewResizer(img.Cols(), img.Rows(), size, size)
	}

	d.resizer.LetterBoxResize(img, &d.input, PadColor)

	blob := gocv.BlobFromImage(d.input, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	out := d.net.Forward("")
	defer out.Close()

	shape := out.Size()

	if len(shape) != 3 || shape[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	data, err := out.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading output tensor: %w", err)
	}

	cands, err := DecodeYOLOv8(data, shape[1]-4, shape[2], d.cfg.Confidence)

	if err != nil {
		return nil, err
	}

	return d.results(cands), nil
}

// results suppresses overlapping candidates and maps the survivors back to
// source coordinates
func (d *DNN) results(cands []Candidate) []Result {
	return Results(cands, LetterboxOf(d.resizer), d.cfg, &d.ids)
}

// Close frees the network and work buffers
func (d *DNN) Close() error {

	if d.resizer != nil {
		d.resizer.Close()
	}

	d.input.Close()
	return d.net.Close()
}
