// Package detect defines the object detector contract used by the counting
// pipeline and provides an OpenCV DNN backend for YOLOv8 ONNX models.
package detect

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrModelLoad is returned when a detector model can not be loaded
var ErrModelLoad = errors.New("model load failed")

// Result defines the attributes of a single object detected in a frame
type Result struct {
	// Class is the index into the class catalog the model was trained on
	Class int
	// Box is the bounding box of the object in source image coordinates
	Box image.Rectangle
	// Score is the confidence of the detection
	Score float32
	// ID is a unique ID assigned to the detection result, used to match the
	// detection to the track the tracker assigns it to
	ID int64
}

// Detector runs object detection on a single BGR frame
type Detector interface {
	// Detect returns the objects found in the image
	Detect(img gocv.Mat) ([]Result, error)
	// Close releases the model
	Close() error
}

// Device selects where inference runs
type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"
	NPU  Device = "npu"
)

// Config defines the parameters used to load a model and filter its
// detections
type Config struct {
	// Model is the path to the model weights file
	Model string
	// Confidence is the minimum score for a detection to be kept
	Confidence float32
	// IoU is the Non-Maximum Suppression threshold, the maximum allowed
	// overlap between two boxes of the same class for both to be kept
	IoU float32
	// ImgSize is the square input tensor size of the model
	ImgSize int
	// MaxDetections caps the number of detections returned per frame
	MaxDetections int
	// Device to run inference on
	Device Device
	// Half requests FP16 inference where the device supports it
	Half bool
	// Classes restricts the returned detections to these class ids.  Empty
	// means all classes are returned
	Classes []int
}

// DefaultConfig returns the detector parameters used for video input
func DefaultConfig() Config {
	return Config{
		Confidence:    0.6,
		IoU:           0.6,
		ImgSize:       640,
		MaxDetections: 300,
		Device:        CPU,
	}
}

// Validate checks the configuration values are usable
func (c Config) Validate() error {

	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %f", c.Confidence)
	}

	if c.IoU < 0 || c.IoU > 1 {
		return fmt.Errorf("iou must be between 0 and 1, got %f", c.IoU)
	}

	if c.ImgSize <= 0 || c.ImgSize%32 != 0 {
		return fmt.Errorf("image size must be a positive multiple of 32, got %d", c.ImgSize)
	}

	if c.MaxDetections <= 0 {
		return fmt.Errorf("max detections must be positive, got %d", c.MaxDetections)
	}

	switch c.Device {
	case CPU, CUDA, NPU:
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}

	return nil
}

// wants reports whether class c passes the class filter
func (c Config) wants(class int) bool {

	if len(c.Classes) == 0 {
		return true
	}

	for _, id := range c.Classes {
		if id == class {
			return true
		}
	}

	return false
}

// FilterClasses keeps only the candidates whose class is in the configured
// class set.  The input slice is left untouched
func (c Config) FilterClasses(cands []Candidate) []Candidate {

	if len(c.Classes) == 0 {
		return cands
	}

	out := make([]Candidate, 0, len(cands))

	for _, cand := range cands {
		if c.wants(cand.Class) {
			out = append(out, cand)
		}
	}

	return out
}
