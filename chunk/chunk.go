// Package chunk drives a video run in fixed size windows of frames.  Each
// window is encoded to a temporary segment and the output video is rebuilt
// from the completed segments so partial results are viewable while the run
// progresses.  Live runs are recorded straight into the output instead.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/source"
	"gocv.io/x/gocv"
)

// DefaultSize is the number of frames per window
const DefaultSize = 10

// Progress is reported after each window
type Progress struct {
	Done  int
	Total int
	// Fraction is Done/Total capped at 1
	Fraction float64
}

// Stats summarises a completed run
type Stats struct {
	Frames int
	Chunks int
	// Skipped counts frames passed through without detections after a
	// detector failure
	Skipped int
}

// FrameSource yields processed frames, io.EOF marks the end
type FrameSource interface {
	Next(ctx context.Context) (*source.Frame, error)
}

// Segment receives the annotated frames of one window
type Segment interface {
	Write(img gocv.Mat) error
	Close() error
}

// SegmentSink creates temporary segments and rebuilds the output from them
type SegmentSink interface {
	NewSegment(path string) (Segment, error)
	// Concat replaces the output with the segments joined in order
	Concat(paths []string) error
}

// Controller runs the window loop
type Controller struct {
	// Size is the number of frames per window
	Size int
	// TempDir holds the segments and is removed when Run returns
	TempDir  string
	Segments SegmentSink
	// Progress is called after each window when the total frame count is
	// known, and once with Fraction 1 when the run completes without being
	// cancelled
	Progress func(Progress)
	// OnFrame is called with each frame after it has been counted
	OnFrame func(*source.Frame)
	Log     logs.Log
}

// Run pulls frames until the source is exhausted, feeding the records of
// every frame to agg.  Window boundaries have no effect on aggregation
func (c *Controller) Run(ctx context.Context, frames FrameSource,
	agg *count.Aggregator, total int) (Stats, error) {

	var stats Stats

	if c.Size < 1 {
		return stats, fmt.Errorf("chunk size must be at least 1, got %d", c.Size)
	}

	if err := os.MkdirAll(c.TempDir, 0755); err != nil {
		return stats, fmt.Errorf("%w: %s: %v", source.ErrSink, c.TempDir, err)
	}

	defer c.cleanup()

	var paths []string

	for {
		path := filepath.Join(c.TempDir, fmt.Sprintf("segment_%05d.mp4", stats.Chunks))
		n, err := c.window(ctx, frames, agg, path, &stats)

		if err != nil {
			return stats, err
		}

		if n == 0 {
			break
		}

		paths = append(paths, path)
		stats.Chunks++
		stats.Frames += n

		if err := c.Segments.Concat(paths); err != nil {
			return stats, fmt.Errorf("concatenate %d segments: %w", len(paths), err)
		}

		if total > 0 {
			c.report(stats.Frames, total)
		}

		if n < c.Size {
			break
		}
	}

	if len(paths) == 0 {
		// an empty source still produces an (empty) output
		if err := c.Segments.Concat(nil); err != nil {
			return stats, fmt.Errorf("concatenate segments: %w", err)
		}
	}

	if c.Progress != nil && ctx.Err() == nil {
		c.Progress(Progress{Done: stats.Frames, Total: total, Fraction: 1})
	}

	return stats, nil
}

// Record pulls frames until the source ends or ctx is cancelled and writes
// them into a single segment at out.  It is used for live sources where
// the frame count is unbounded and rebuilding the output per window would
// grow without limit.  Aggregation and OnFrame behave as in Run
func (c *Controller) Record(ctx context.Context, frames FrameSource,
	agg *count.Aggregator, out string) (Stats, error) {

	var stats Stats

	seg, err := c.Segments.NewSegment(out)

	if err != nil {
		return stats, err
	}

	for {
		f, err := frames.Next(ctx)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			seg.Close()
			return stats, err
		}

		if err := c.frame(f, seg, agg, &stats); err != nil {
			seg.Close()
			return stats, err
		}

		stats.Frames++
	}

	if err := seg.Close(); err != nil {
		return stats, fmt.Errorf("%w: close %s: %v", source.ErrSink, out, err)
	}

	if stats.Frames > 0 {
		stats.Chunks = 1
	}

	if c.Progress != nil {
		c.Progress(Progress{Done: stats.Frames, Fraction: 1})
	}

	return stats, nil
}

// window processes up to Size frames into one segment and returns the
// number of frames it held
func (c *Controller) window(ctx context.Context, frames FrameSource,
	agg *count.Aggregator, path string, stats *Stats) (int, error) {

	var seg Segment
	n := 0

	closeSeg := func() error {
		if seg == nil {
			return nil
		}
		return seg.Close()
	}

	for n < c.Size {
		f, err := frames.Next(ctx)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			closeSeg()
			return n, err
		}

		if seg == nil {
			if seg, err = c.Segments.NewSegment(path); err != nil {
				f.Close()
				return n, err
			}
		}

		if err := c.frame(f, seg, agg, stats); err != nil {
			closeSeg()
			return n, err
		}

		n++
	}

	if err := closeSeg(); err != nil {
		return n, fmt.Errorf("%w: close segment %s: %v", source.ErrSink, path, err)
	}

	return n, nil
}

func (c *Controller) frame(f *source.Frame, seg Segment, agg *count.Aggregator,
	stats *Stats) error {

	defer f.Close()

	if f.Err != nil {
		stats.Skipped++
	}

	if err := agg.ObserveFrame(f.Records); err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}

	if c.OnFrame != nil {
		c.OnFrame(f)
	}

	return seg.Write(f.Annotated)
}

func (c *Controller) report(done, total int) {

	if c.Progress == nil {
		return
	}

	frac := float64(done) / float64(total)

	if frac > 1 {
		frac = 1
	}

	c.Progress(Progress{Done: done, Total: total, Fraction: frac})
}

func (c *Controller) cleanup() {
	if err := os.RemoveAll(c.TempDir); err != nil && c.Log != nil {
		c.Log.Warnf("Failed to remove temporary segments %v: %v", c.TempDir, err)
	}
}
