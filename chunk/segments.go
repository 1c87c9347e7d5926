package chunk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-objcount/source"
	"gocv.io/x/gocv"
)

// VideoSegments writes segments as video files and joins them into the
// output video with gocv
type VideoSegments struct {
	out    string
	fps    float64
	width  int
	height int
	// Codec is the fourcc of segments and output
	Codec string
}

// NewVideoSegments returns a sink producing out at the given geometry
func NewVideoSegments(out string, fps float64, width, height int) *VideoSegments {
	return &VideoSegments{
		out:    out,
		fps:    fps,
		width:  width,
		height: height,
		Codec:  source.Codec,
	}
}

// NewSegment creates a segment file
func (v *VideoSegments) NewSegment(path string) (Segment, error) {

	w, err := source.NewVideoWriterCodec(path, v.Codec, v.fps, v.width, v.height)

	if err != nil {
		return nil, err
	}

	return w, nil
}

// Concat rewrites the output from all segments.  The new output is built
// beside the old one and renamed over it
func (v *VideoSegments) Concat(paths []string) error {

	partial := filepath.Join(filepath.Dir(v.out), "partial_"+filepath.Base(v.out))

	w, err := source.NewVideoWriterCodec(partial, v.Codec, v.fps, v.width, v.height)

	if err != nil {
		return err
	}

	img := gocv.NewMat()
	defer img.Close()

	for _, path := range paths {
		if err := appendSegment(w, path, &img); err != nil {
			w.Close()
			os.Remove(partial)
			return err
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: %s: %v", source.ErrSink, partial, err)
	}

	if err := os.Rename(partial, v.out); err != nil {
		return fmt.Errorf("%w: %s: %v", source.ErrSink, v.out, err)
	}

	return nil
}

// Output returns the path of the joined video
func (v *VideoSegments) Output() string {
	return v.out
}

func appendSegment(w *source.VideoWriter, path string, img *gocv.Mat) error {

	r, err := source.Open(source.Media{Kind: source.Video, Path: path}, source.Options{})

	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}

	defer r.Close()

	for {
		ok, err := r.Read(img)

		if err != nil {
			return fmt.Errorf("read segment %s: %w", path, err)
		}

		if !ok {
			return nil
		}

		if err := w.Write(*img); err != nil {
			return err
		}
	}
}
