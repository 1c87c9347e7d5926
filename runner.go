package objcount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/swdee/go-objcount/chunk"
	"github.com/swdee/go-objcount/config"
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/metrics"
	"github.com/swdee/go-objcount/npu"
	"github.com/swdee/go-objcount/render"
	"github.com/swdee/go-objcount/report"
	"github.com/swdee/go-objcount/source"
	"github.com/swdee/go-objcount/stream"
	"github.com/swdee/go-objcount/tracker"
)

const (
	// VideoOutput is the annotated video written into the run directory
	VideoOutput = "output_video.mp4"
	// ImageOutput is the annotated image written into the run directory
	ImageOutput = "output_image.jpg"
	// LiveOutput is the recording of a live run
	LiveOutput = "output_live.mp4"
	// TempDir is the directory under the run directory holding segments
	TempDir = "tempdel"
)

// DetectorFactory loads the detector for a run
type DetectorFactory func(cfg detect.Config) (detect.Detector, error)

// Opener opens the media of a run
type Opener func(m source.Media, opts source.Options) (source.Reader, error)

// SegmentFactory returns the sink building the output video of a run
type SegmentFactory func(out string, fps float64, width, height int) chunk.SegmentSink

// NewDetector returns a factory loading ONNX models through OpenCV on the
// cpu and cuda devices and RKNN models on the npu cores given
func NewDetector(core npu.Core) DetectorFactory {
	return func(cfg detect.Config) (detect.Detector, error) {

		if cfg.Device == detect.NPU {
			return npu.New(cfg, core)
		}

		return detect.NewDNN(cfg)
	}
}

func videoSegments(out string, fps float64, width, height int) chunk.SegmentSink {
	return chunk.NewVideoSegments(out, fps, width, height)
}

// Runner processes media into counts using one configuration.  A Runner
// may be used for several runs, each run gets its own detector, tracker and
// aggregator
type Runner struct {
	Config *config.Config
	Log    logs.Log

	NewDetector DetectorFactory
	Open        Opener
	NewSegments SegmentFactory

	// Progress receives the fraction of a video processed
	Progress func(chunk.Progress)
	// Metrics, when set, is updated for every frame and run
	Metrics *metrics.Metrics
	// History, when set, records every completed run
	History *report.History
	// Stream, when set, receives every annotated frame with the running
	// counts
	Stream *stream.Server
	// Model names the run in the history, defaults to the model path
	Model string
}

// NewRunner returns a Runner using the gocv media readers and writers
func NewRunner(cfg *config.Config, log logs.Log) *Runner {
	return &Runner{
		Config:      cfg,
		Log:         log,
		NewDetector: NewDetector(cfg.GetNPUCore()),
		Open:        source.Open,
		NewSegments: videoSegments,
	}
}

// ProcessVideo counts the objects of a video file
func (r *Runner) ProcessVideo(ctx context.Context, path string) (*report.Result, error) {
	return r.Process(ctx, source.Media{Kind: source.Video, Path: path})
}

// ProcessImage counts the objects of a still image
func (r *Runner) ProcessImage(ctx context.Context, path string) (*report.Result, error) {
	return r.Process(ctx, source.Media{Kind: source.Image, Path: path})
}

// ProcessLive counts the objects seen by a camera or stream until ctx is
// cancelled.  The counts drawn on the frames are updated as tracks appear
func (r *Runner) ProcessLive(ctx context.Context, m source.Media) (*report.Result, error) {
	m.Kind = source.Live
	return r.Process(ctx, m)
}

// run holds the state of one pass over the media
type run struct {
	media   source.Media
	agg     *count.Aggregator
	adapter *source.Adapter
	runDir  string
	output  string
	stats   chunk.Stats
	started time.Time
}

// Process runs the media through detection, tracking and counting and
// writes the annotated output and count record into the run directory
func (r *Runner) Process(ctx context.Context, m source.Media) (*report.Result, error) {

	res, rn, err := r.process(ctx, m)

	if r.Metrics != nil {
		r.Metrics.ObserveRun(err)
	}

	if err != nil {
		r.Log.Errorf("Run on %v failed: %v", m, err)
		return nil, err
	}

	r.Log.Infof("Counted %d objects in %v: %v", res.Counts.Total(), m, res.Counts)

	if r.History != nil {
		r.record(rn, res)
	}

	return res, nil
}

func (r *Runner) process(ctx context.Context, m source.Media) (*report.Result, *run, error) {

	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	catalog, err := r.Config.ClassNames()

	if err != nil {
		return nil, nil, err
	}

	classes, err := r.Config.ClassIDs(catalog)

	if err != nil {
		return nil, nil, err
	}

	rn := &run{
		media:   m,
		runDir:  r.Config.GetRunDir(),
		started: time.Now(),
	}

	opts := r.Config.SourceOptions()
	reader, err := r.Open(m, opts)

	if err != nil {
		return nil, nil, classify(err)
	}

	det, err := r.NewDetector(r.Config.DetectConfig(m.Kind))

	if err != nil {
		reader.Close()
		return nil, nil, fmt.Errorf("load detector: %w", err)
	}

	defer det.Close()

	if rn.agg, err = count.NewAggregator(catalog, classes); err != nil {
		reader.Close()
		return nil, nil, err
	}

	rn.adapter = source.NewAdapter(reader, det,
		tracker.NewAssigner(r.Config.TrackerConfig()),
		render.NewAnnotator(catalog), classes, opts, r.Log)

	defer rn.adapter.Close()

	if m.Kind == source.Live {
		rn.adapter.Overlay = rn.agg.Snapshot
	}

	if err := os.MkdirAll(rn.runDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, rn.runDir, err)
	}

	r.Log.Infof("Processing %v (%v) counting %v", m, rn.adapter.Info(), r.Config.GetClasses())

	switch m.Kind {
	case source.Image:
		rn.output = filepath.Join(rn.runDir, ImageOutput)
		err = r.image(ctx, rn)
	case source.Live:
		rn.output = filepath.Join(rn.runDir, LiveOutput)
		err = r.video(ctx, rn)
	default:
		rn.output = filepath.Join(rn.runDir, VideoOutput)
		err = r.video(ctx, rn)
	}

	// only a live run ends by cancellation, a cut short file yields no report
	if m.Kind != source.Live && ctx.Err() != nil {
		os.Remove(rn.output)
		return nil, nil, fmt.Errorf("%v stopped after %d frames: %w", m, rn.stats.Frames, ctx.Err())
	}

	if err != nil {
		if errors.Is(err, source.ErrSink) {
			os.Remove(rn.output)
		}
		return nil, nil, classify(err)
	}

	counts, _ := rn.agg.Finalize()

	b := report.Builder{RunDir: rn.runDir, Chart: r.Config.GetChart()}
	res, err := b.Build(counts, rn.output)

	if err != nil {
		return nil, nil, classify(err)
	}

	if r.Stream != nil {
		r.Stream.SetCounts(counts)
	}

	return res, rn, nil
}

// video runs the chunked window loop over a video file.  Live sources are
// recorded straight into the output
func (r *Runner) video(ctx context.Context, rn *run) error {

	info := rn.adapter.Info()
	fps := info.FPS

	if fps <= 0 {
		fps = source.DefaultFPS
	}

	// keep playback speed when frames are skipped
	fps /= float64(r.Config.GetStride())

	ctrl := &chunk.Controller{
		Size:     r.Config.GetChunkSize(),
		TempDir:  filepath.Join(rn.runDir, TempDir),
		Segments: r.NewSegments(rn.output, fps, info.Width, info.Height),
		Progress: r.Progress,
		OnFrame:  r.onFrame(rn.agg),
		Log:      r.Log,
	}

	var stats chunk.Stats
	var err error

	if rn.media.Kind == source.Live {
		stats, err = ctrl.Record(ctx, rn.adapter, rn.agg, rn.output)
	} else {
		stats, err = ctrl.Run(ctx, rn.adapter, rn.agg, info.Frames)
	}

	rn.stats = stats

	if stats.Skipped > 0 {
		r.Log.Warnf("Detection failed on %d of %d frames", stats.Skipped, stats.Frames)
	}

	return err
}

// image processes the single frame of a still image
func (r *Runner) image(ctx context.Context, rn *run) error {

	f, err := rn.adapter.Next(ctx)

	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v yielded no frame", source.ErrNotFound, rn.media)
	}

	if err != nil {
		return err
	}

	defer f.Close()

	rn.stats.Frames = 1

	if f.Err != nil {
		rn.stats.Skipped = 1
	}

	if err := rn.agg.ObserveFrame(f.Records); err != nil {
		return err
	}

	r.onFrame(rn.agg)(f)

	if err := source.WriteImage(rn.output, f.Annotated); err != nil {
		return err
	}

	if r.Progress != nil {
		r.Progress(chunk.Progress{Done: 1, Total: 1, Fraction: 1})
	}

	return nil
}

// onFrame returns the per frame hook feeding metrics and the live stream
func (r *Runner) onFrame(agg *count.Aggregator) func(*source.Frame) {

	last := time.Now()

	return func(f *source.Frame) {

		now := time.Now()

		if r.Metrics != nil {
			r.Metrics.ObserveFrame(f, now.Sub(last))
		}

		last = now

		if r.Stream == nil {
			return
		}

		if err := r.Stream.Publish(f.Annotated, agg.Snapshot()); err != nil {
			r.Log.Warnf("Failed to publish frame %d: %v", f.Index, err)
		}
	}
}

// record saves a completed run in the history, failures are only logged
func (r *Runner) record(rn *run, res *report.Result) {

	model := r.Model

	if model == "" {
		model = r.Config.DetectConfig(rn.media.Kind).Model
	}

	entry := &report.Run{
		Kind:       rn.media.Kind.String(),
		Media:      rn.media.String(),
		Model:      model,
		Classes:    r.Config.GetClasses(),
		Started:    rn.started,
		Finished:   time.Now(),
		Frames:     rn.stats.Frames,
		Skipped:    rn.stats.Skipped,
		OutputPath: res.OutputPath,
		CountsPath: res.CountsPath,
		Counts:     res.Counts,
	}

	if err := r.History.Record(entry); err != nil {
		r.Log.Warnf("Failed to record run in history: %v", err)
		return
	}

	r.Log.Debugf("Recorded run %v", entry.ID)
}
