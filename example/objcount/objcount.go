package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/swdee/go-objcount"
	"github.com/swdee/go-objcount/chunk"
	"github.com/swdee/go-objcount/config"
	"github.com/swdee/go-objcount/metrics"
	"github.com/swdee/go-objcount/npu"
	"github.com/swdee/go-objcount/report"
	"github.com/swdee/go-objcount/source"
	"github.com/swdee/go-objcount/stream"
)

// runFlags are the flags shared by every counting command, they override
// the config file
type runFlags struct {
	config   *string
	model    *string
	catalog  *string
	labels   *string
	classes  *[]string
	conf     *float64
	iou      *float64
	imgsz    *int
	device   *string
	npuCore  *string
	runDir   *string
	chunk    *int
	stride   *int
	chart    *bool
	history  *string
	abort    *bool
	platform *string
	cpuCores *string
}

func addRunFlags(cmd *argparse.Command) *runFlags {
	return &runFlags{
		config:   cmd.String("c", "config", &argparse.Options{Help: "JSON config file"}),
		model:    cmd.String("m", "model", &argparse.Options{Help: "Model file, .onnx for cpu/cuda or .rknn for npu"}),
		catalog:  cmd.Selector("", "catalog", []string{"coco", "kitchen"}, &argparse.Options{Help: "Built in class catalog the model was trained on"}),
		labels:   cmd.String("l", "labels", &argparse.Options{Help: "Label file with one class per line, overrides the catalog"}),
		classes:  cmd.StringList("", "class", &argparse.Options{Help: "Class to count, repeat for several (default chair and laptop)"}),
		conf:     cmd.Float("", "conf", &argparse.Options{Help: "Detection confidence threshold", Default: -1.0}),
		iou:      cmd.Float("", "iou", &argparse.Options{Help: "NMS IoU threshold", Default: -1.0}),
		imgsz:    cmd.Int("", "imgsz", &argparse.Options{Help: "Model input size", Default: 0}),
		device:   cmd.Selector("d", "device", []string{"cpu", "cuda", "npu"}, &argparse.Options{Help: "Inference device"}),
		npuCore:  cmd.String("", "npu-core", &argparse.Options{Help: "NPU cores auto|0|1|2|0_1|0_1_2|skip"}),
		runDir:   cmd.String("o", "run-dir", &argparse.Options{Help: "Output directory (default runs/temp)"}),
		chunk:    cmd.Int("", "chunk", &argparse.Options{Help: "Frames per output segment", Default: 0}),
		stride:   cmd.Int("", "stride", &argparse.Options{Help: "Process every n-th video frame", Default: 0}),
		chart:    cmd.Flag("", "chart", &argparse.Options{Help: "Draw a bar chart of the counts"}),
		history:  cmd.String("", "history", &argparse.Options{Help: "Record the run in this sqlite database"}),
		abort:    cmd.Flag("", "abort-on-frame-error", &argparse.Options{Help: "Stop the run when detection fails on a frame"}),
		platform: cmd.Selector("p", "platform", []string{"rk3562", "rk3566", "rk3568", "rk3576", "rk3582", "rk3588"}, &argparse.Options{Help: "Rockchip platform to pin CPU cores on"}),
		cpuCores: cmd.Selector("", "cpu-cores", []string{"fast", "slow", "all"}, &argparse.Options{Help: "CPU core type to pin to on the platform", Default: "fast"}),
	}
}

// load reads the config file when given and overlays the flags
func (f *runFlags) load() (*config.Config, error) {

	cfg := &config.Config{}

	if *f.config != "" {
		var err error

		if cfg, err = config.Load(*f.config); err != nil {
			return nil, err
		}
	}

	flags := &config.Config{}

	if *f.model != "" {
		flags.Model = f.model
	}
	if *f.catalog != "" {
		flags.Catalog = f.catalog
	}
	if *f.labels != "" {
		flags.Labels = f.labels
	}
	if len(*f.classes) > 0 {
		flags.Classes = *f.classes
	}
	if *f.conf >= 0 {
		flags.Confidence = f.conf
		flags.ImageConfidence = f.conf
	}
	if *f.iou >= 0 {
		flags.IoU = f.iou
	}
	if *f.imgsz > 0 {
		flags.ImgSize = f.imgsz
	}
	if *f.device != "" {
		flags.Device = f.device
	}
	if *f.npuCore != "" {
		flags.NPUCore = f.npuCore
	}
	if *f.runDir != "" {
		flags.RunDir = f.runDir
	}
	if *f.chunk > 0 {
		flags.ChunkSize = f.chunk
	}
	if *f.stride > 0 {
		flags.Stride = f.stride
	}
	if *f.chart {
		flags.Chart = f.chart
	}
	if *f.history != "" {
		flags.History = f.history
	}
	if *f.abort {
		flags.AbortOnFrameError = f.abort
	}

	cfg.Merge(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// pin sets the CPU affinity when a platform was given
func (f *runFlags) pin(log logs.Log) error {

	if *f.platform == "" {
		return nil
	}

	ct, err := npu.ParseCoreType(*f.cpuCores)

	if err != nil {
		return err
	}

	if err := npu.SetCPUAffinityByPlatform(*f.platform, ct); err != nil {
		return err
	}

	mask, err := npu.GetCPUAffinity()

	if err != nil {
		return err
	}

	log.Infof("Pinned to %v %v cores, mask %#x", *f.platform, *f.cpuCores, mask)
	return nil
}

func main() {

	parser := argparse.NewParser("objcount", "Count distinct objects in videos, images and live streams")

	videoCmd := parser.NewCommand("video", "Count objects in a video file")
	videoIn := videoCmd.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	videoFlags := addRunFlags(videoCmd)

	imageCmd := parser.NewCommand("image", "Count objects in an image")
	imageIn := imageCmd.String("i", "input", &argparse.Options{Help: "Input image file", Required: true})
	imageFlags := addRunFlags(imageCmd)

	liveCmd := parser.NewCommand("live", "Count objects seen by a camera or stream until stopped")
	liveDevice := liveCmd.Int("", "camera", &argparse.Options{Help: "Camera device index", Default: 0})
	liveURL := liveCmd.String("u", "url", &argparse.Options{Help: "Stream URL, overrides the camera"})
	liveListen := liveCmd.String("", "listen", &argparse.Options{Help: "Address of the MJPEG viewer (default localhost:8080)"})
	liveLinger := liveCmd.Int("", "linger", &argparse.Options{Help: "Seconds to keep serving the final counts after the run stops", Default: 0})
	liveFlags := addRunFlags(liveCmd)

	compareCmd := parser.NewCommand("compare", "Count objects in a video or image with several models at once")
	compareIn := compareCmd.String("i", "input", &argparse.Options{Help: "Input video or image file", Required: true})
	compareImage := compareCmd.Flag("", "image", &argparse.Options{Help: "The input is a still image"})
	compareModels := compareCmd.StringList("", "with", &argparse.Options{Help: "Model to compare, repeat for each model", Required: true})
	compareFlags := addRunFlags(compareCmd)

	reduceCmd := parser.NewCommand("reduce-fps", "Re-encode a video at a lower frame rate")
	reduceIn := reduceCmd.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	reduceOut := reduceCmd.String("o", "output", &argparse.Options{Help: "Output video file", Required: true})
	reduceFPS := reduceCmd.Float("f", "fps", &argparse.Options{Help: "New frame rate", Default: config.DefaultReduceFPS})

	historyCmd := parser.NewCommand("history", "List recorded runs")
	historyDB := historyCmd.String("", "db", &argparse.Options{Help: "Run history database", Required: true})
	historyLimit := historyCmd.Int("n", "limit", &argparse.Options{Help: "Number of runs to list", Default: 20})

	infoCmd := parser.NewCommand("npu-info", "Print the tensor layout of an RKNN model")
	infoModel := infoCmd.String("m", "model", &argparse.Options{Help: "RKNN model file", Required: true})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := logs.NewLog()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case videoCmd.Happened():
		err = count(log, videoFlags, func(r *objcount.Runner) (*report.Result, error) {
			return r.ProcessVideo(ctx, *videoIn)
		})

	case imageCmd.Happened():
		err = count(log, imageFlags, func(r *objcount.Runner) (*report.Result, error) {
			return r.ProcessImage(ctx, *imageIn)
		})

	case liveCmd.Happened():
		err = live(ctx, log, liveFlags, source.Media{Device: *liveDevice, URL: *liveURL}, *liveListen,
			time.Duration(*liveLinger)*time.Second)

	case compareCmd.Happened():
		m := source.Media{Kind: source.Video, Path: *compareIn}
		if *compareImage {
			m.Kind = source.Image
		}
		err = compare(ctx, log, compareFlags, m, *compareModels)

	case reduceCmd.Happened():
		var n int

		if n, err = source.ReduceFrameRate(*reduceIn, *reduceOut, *reduceFPS); err == nil {
			log.Infof("Wrote %d frames to %v at %.1f fps", n, *reduceOut, *reduceFPS)
		}

	case historyCmd.Happened():
		err = history(log, *historyDB, *historyLimit)

	case infoCmd.Happened():
		err = npu.Describe(*infoModel, os.Stdout)
	}

	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// newRunner builds a runner from the flags with progress logging, metrics
// and the run history when configured
func newRunner(log logs.Log, f *runFlags) (*objcount.Runner, func(), error) {

	cfg, err := f.load()

	if err != nil {
		return nil, nil, err
	}

	if err := f.pin(log); err != nil {
		return nil, nil, err
	}

	r := objcount.NewRunner(cfg, log)
	r.Metrics = metrics.New()
	r.Progress = func(p chunk.Progress) {
		log.Infof("Processed %d/%d frames (%.0f%%)", p.Done, p.Total, p.Fraction*100)
	}

	done := func() {}

	if path := cfg.GetHistory(); path != "" {
		h, err := report.OpenHistory(log, path)

		if err != nil {
			return nil, nil, err
		}

		r.History = h
		done = func() { h.Close() }
	}

	return r, done, nil
}

func count(log logs.Log, f *runFlags,
	process func(r *objcount.Runner) (*report.Result, error)) error {

	r, done, err := newRunner(log, f)

	if err != nil {
		return err
	}

	defer done()

	res, err := process(r)

	if err != nil {
		return err
	}

	printResult(res)
	return nil
}

func live(ctx context.Context, log logs.Log, f *runFlags, m source.Media, listen string,
	linger time.Duration) error {

	r, done, err := newRunner(log, f)

	if err != nil {
		return err
	}

	defer done()

	if listen == "" {
		listen = r.Config.GetListen()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	r.Stream = stream.New(log, r.Metrics, stop)

	if err := r.Stream.Start(listen); err != nil {
		return err
	}

	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.Stream.Shutdown(shutdown); err != nil {
			log.Warnf("Live server shutdown: %v", err)
		}
	}()

	res, err := r.ProcessLive(runCtx, m)

	if err != nil {
		return err
	}

	printResult(res)

	if linger > 0 {
		log.Infof("Serving final counts at http://%v/counts for %v", r.Stream.Addr(), linger)

		select {
		case <-ctx.Done():
		case <-time.After(linger):
		}
	}

	return nil
}

func compare(ctx context.Context, log logs.Log, f *runFlags, m source.Media, models []string) error {

	r, done, err := newRunner(log, f)

	if err != nil {
		return err
	}

	defer done()

	out, err := r.Compare(ctx, m, models)

	for _, c := range out {
		if c.Err != nil {
			fmt.Printf("%s: failed: %v\n", c.Model, c.Err)
			continue
		}

		fmt.Printf("%s:\n", c.Model)
		printResult(c.Result)
	}

	return err
}

func history(log logs.Log, path string, limit int) error {

	h, err := report.OpenHistory(log, path)

	if err != nil {
		return err
	}

	defer h.Close()

	runs, err := h.List(limit)

	if err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %-5s %-30s %5d frames %8s  %s\n", run.ID,
			run.Started.Format("2006-01-02 15:04:05"), run.Kind, run.Media,
			run.Frames, run.Duration().Round(1e6), formatCounts(run.Counts))
	}

	return nil
}

func printResult(res *report.Result) {

	fmt.Printf("  counts: %s\n", formatCounts(res.Counts))
	fmt.Printf("  output: %s\n", res.OutputPath)
	fmt.Printf("  record: %s\n", res.CountsPath)

	if res.ChartPath != "" {
		fmt.Printf("  chart:  %s\n", res.ChartPath)
	}
}

func formatCounts(counts map[string]int) string {

	if len(counts) == 0 {
		return "none"
	}

	names := make([]string, 0, len(counts))

	for name := range counts {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, len(names))

	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
	}

	return strings.Join(parts, " ")
}
