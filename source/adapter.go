package source

import (
	"context"
	"fmt"
	"io"

	"github.com/cyclopcam/logs"
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/render"
	"github.com/swdee/go-objcount/tracker"
	"gocv.io/x/gocv"
)

// Frame is one processed frame.  The caller owns Annotated and must Close
// the frame once done with it
type Frame struct {
	// Index counts frames returned by the adapter from 0
	Index int
	// Records holds one detection record per object of a requested class
	Records []count.Detection
	// Tracks are the tracks confirmed on this frame
	Tracks    []*tracker.Track
	Annotated gocv.Mat
	// Err is set when detection failed and the frame was passed through
	// unannotated
	Err error
}

// Close releases the annotated image
func (f *Frame) Close() error {
	return f.Annotated.Close()
}

// Adapter turns raw frames into detection records and annotated frames
type Adapter struct {
	reader   Reader
	detector detect.Detector
	assigner *tracker.Assigner
	annotate *render.Annotator
	classes  map[int]bool
	opts     Options
	log      logs.Log
	raw      gocv.Mat
	index    int
	// Overlay, when set, supplies the counts drawn on each annotated frame
	Overlay func() count.Counts
}

// NewAdapter returns an Adapter reading from r.  Only detections whose class
// is in classIDs are tracked and returned
func NewAdapter(r Reader, det detect.Detector, assigner *tracker.Assigner,
	ann *render.Annotator, classIDs []int, opts Options, log logs.Log) *Adapter {

	classes := make(map[int]bool, len(classIDs))

	for _, id := range classIDs {
		classes[id] = true
	}

	return &Adapter{
		reader:   r,
		detector: det,
		assigner: assigner,
		annotate: ann,
		classes:  classes,
		opts:     opts,
		log:      log,
		raw:      gocv.NewMat(),
	}
}

// Info returns the geometry of the underlying reader
func (a *Adapter) Info() Info {
	return a.reader.Info()
}

// Next processes the next frame.  It returns io.EOF once the source is
// exhausted or ctx has been cancelled, cancellation is only observed
// between frames
func (a *Adapter) Next(ctx context.Context) (*Frame, error) {

	if ctx.Err() != nil {
		return nil, io.EOF
	}

	ok, err := a.reader.Read(&a.raw)

	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", a.index, err)
	}

	if !ok {
		return nil, io.EOF
	}

	frame := &Frame{
		Index:     a.index,
		Annotated: gocv.NewMat(),
	}

	a.index++
	a.raw.CopyTo(&frame.Annotated)

	results, err := a.detector.Detect(a.raw)

	if err != nil {
		if a.opts.AbortOnFrameError {
			frame.Close()
			return nil, fmt.Errorf("detect frame %d: %w", frame.Index, err)
		}

		a.log.Warnf("Skipping detection on frame %d: %v", frame.Index, err)
		frame.Err = err

		return frame, nil
	}

	results = a.filter(results)

	recs, tracks, err := a.assigner.Assign(results)

	if err != nil {
		if a.opts.AbortOnFrameError {
			frame.Close()
			return nil, fmt.Errorf("track frame %d: %w", frame.Index, err)
		}

		a.log.Warnf("Skipping tracking on frame %d: %v", frame.Index, err)
		frame.Err = err

		return frame, nil
	}

	frame.Records = recs
	frame.Tracks = tracks

	if a.annotate != nil {
		var counts count.Counts

		if a.Overlay != nil {
			counts = a.Overlay()
		}

		a.annotate.Annotate(&frame.Annotated, recs, tracks, counts)
	}

	return frame, nil
}

// filter keeps results of the requested classes
func (a *Adapter) filter(results []detect.Result) []detect.Result {

	out := make([]detect.Result, 0, len(results))

	for _, r := range results {
		if a.classes[r.Class] {
			out = append(out, r)
		}
	}

	return out
}

// Close releases the adapter's working image and the reader
func (a *Adapter) Close() error {
	a.raw.Close()
	return a.reader.Close()
}
