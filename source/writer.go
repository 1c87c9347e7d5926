package source

import (
	"fmt"

	"gocv.io/x/gocv"
)

const (
	// Codec is the fourcc used for annotated output videos
	Codec = "avc1"
	// ReduceCodec is the fourcc used when re-encoding at a lower frame rate
	ReduceCodec = "mp4v"
	// DefaultFPS is used for output when the source does not report a rate
	DefaultFPS = 30.0
)

// VideoWriter encodes frames to a video file
type VideoWriter struct {
	w      *gocv.VideoWriter
	path   string
	frames int
}

// NewVideoWriter creates an avc1 encoded video at path
func NewVideoWriter(path string, fps float64, width, height int) (*VideoWriter, error) {
	return NewVideoWriterCodec(path, Codec, fps, width, height)
}

// NewVideoWriterCodec creates a video at path using the given fourcc
func NewVideoWriterCodec(path, codec string, fps float64, width, height int) (*VideoWriter, error) {

	if fps <= 0 {
		fps = DefaultFPS
	}

	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSink, path, err)
	}

	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("%w: %s: could not open %s writer", ErrSink, path, codec)
	}

	return &VideoWriter{w: w, path: path}, nil
}

// Write appends a frame
func (v *VideoWriter) Write(img gocv.Mat) error {

	if err := v.w.Write(img); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSink, v.path, err)
	}

	v.frames++
	return nil
}

// Frames returns the number of frames written
func (v *VideoWriter) Frames() int {
	return v.frames
}

// Close finalises the container
func (v *VideoWriter) Close() error {
	return v.w.Close()
}

// WriteImage encodes img to path, the format is taken from the extension
func WriteImage(path string, img gocv.Mat) error {

	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("%w: %s: could not write image", ErrSink, path)
	}

	return nil
}

// ReduceFrameRate re-encodes every frame of the input video into a new
// video played back at fps.  Frames are not dropped so the playback speed
// changes with the rate
func ReduceFrameRate(in, out string, fps float64) (int, error) {

	if fps <= 0 {
		return 0, fmt.Errorf("frame rate must be positive, got %f", fps)
	}

	r, err := openVideo(in, 1)

	if err != nil {
		return 0, err
	}

	defer r.Close()

	info := r.Info()

	w, err := NewVideoWriterCodec(out, ReduceCodec, fps, info.Width, info.Height)

	if err != nil {
		return 0, err
	}

	img := gocv.NewMat()
	defer img.Close()

	for {
		ok, err := r.Read(&img)

		if err != nil {
			w.Close()
			return w.Frames(), err
		}

		if !ok {
			break
		}

		if err := w.Write(img); err != nil {
			w.Close()
			return w.Frames(), err
		}
	}

	if err := w.Close(); err != nil {
		return w.Frames(), fmt.Errorf("%w: %s: %v", ErrSink, out, err)
	}

	return w.Frames(), nil
}
