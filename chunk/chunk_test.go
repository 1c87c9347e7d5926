package chunk

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/render"
	"github.com/swdee/go-objcount/source"
	"github.com/swdee/go-objcount/tracker"
	"gocv.io/x/gocv"
)

const (
	cup   = 0
	fork  = 2
	plate = 7
)

// memSink records segments in memory
type memSink struct {
	segments map[string]int
	concats  [][]string
}

func newMemSink() *memSink {
	return &memSink{segments: make(map[string]int)}
}

type memSegment struct {
	sink *memSink
	path string
}

func (s *memSegment) Write(img gocv.Mat) error {
	s.sink.segments[s.path]++
	return nil
}

func (s *memSegment) Close() error {
	return nil
}

func (m *memSink) NewSegment(path string) (Segment, error) {
	m.segments[path] = 0
	return &memSegment{sink: m, path: path}, nil
}

func (m *memSink) Concat(paths []string) error {
	m.concats = append(m.concats, append([]string(nil), paths...))
	return nil
}

// scripted returns frames directly without detection or tracking
type scripted struct {
	recs [][]count.Detection
	pos  int
}

func (s *scripted) Next(ctx context.Context) (*source.Frame, error) {

	if s.pos >= len(s.recs) || ctx.Err() != nil {
		return nil, io.EOF
	}

	f := &source.Frame{Index: s.pos, Records: s.recs[s.pos], Annotated: gocv.NewMat()}
	s.pos++

	return f, nil
}

func blankFrames(n int) [][]count.Detection {
	return make([][]count.Detection, n)
}

// scene is a cup misread as a plate on some frames, a fork that appears
// halfway through and a plate that stays put
func scene(n int) [][]detect.Result {

	out := make([][]detect.Result, n)

	for i := range out {
		cls := cup
		if i%4 == 3 {
			cls = plate
		}

		out[i] = []detect.Result{
			{Class: cls, Box: image.Rect(20+i, 40, 90+i, 130), Score: 0.9},
			{Class: plate, Box: image.Rect(200, 150, 300, 220), Score: 0.85},
		}

		if i >= n/2 {
			out[i] = append(out[i], detect.Result{
				Class: fork, Box: image.Rect(400, 50, 430, 200), Score: 0.9,
			})
		}
	}

	return out
}

func adapter(t *testing.T, n int) *source.Adapter {
	t.Helper()

	mats := make([]gocv.Mat, n)

	for i := range mats {
		mats[i] = gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	}

	t.Cleanup(func() {
		for _, m := range mats {
			m.Close()
		}
	})

	a := source.NewAdapter(source.NewBufferReader(mats, 30),
		detect.NewReplay(scene(n)), tracker.NewAssigner(tracker.DefaultConfig()),
		render.NewAnnotator(detect.Kitchen), []int{cup, fork, plate},
		source.Options{}, logs.NewTestingLog(t))

	t.Cleanup(func() { a.Close() })

	return a
}

func aggregator(t *testing.T) *count.Aggregator {
	t.Helper()

	agg, err := count.NewAggregator(detect.Kitchen, []int{cup, fork, plate})
	require.NoError(t, err)

	return agg
}

func controller(t *testing.T, size int, sink SegmentSink) *Controller {
	return &Controller{
		Size:     size,
		TempDir:  filepath.Join(t.TempDir(), "tempdel"),
		Segments: sink,
		Log:      logs.NewTestingLog(t),
	}
}

func TestChunkingDoesNotChangeCounts(t *testing.T) {

	const frames = 23

	ref := aggregator(t)
	_, err := controller(t, frames+5, newMemSink()).Run(context.Background(),
		adapter(t, frames), ref, frames)
	require.NoError(t, err)

	want, wantObjs := ref.Finalize()
	assert.Equal(t, count.Counts{"cup": 1, "fork": 1, "plate": 1}, want)

	for size := 1; size <= frames+1; size++ {
		agg := aggregator(t)
		sink := newMemSink()

		stats, err := controller(t, size, sink).Run(context.Background(),
			adapter(t, frames), agg, frames)
		require.NoError(t, err, "size %d", size)

		got, objs := agg.Finalize()
		assert.Equal(t, want, got, "size %d", size)
		assert.Equal(t, wantObjs, objs, "size %d", size)

		assert.Equal(t, frames, stats.Frames)
		assert.Equal(t, (frames+size-1)/size, stats.Chunks, "size %d", size)
		assert.Len(t, sink.segments, stats.Chunks)
	}
}

func TestSegmentsAndConcat(t *testing.T) {

	sink := newMemSink()
	c := controller(t, 4, sink)

	stats, err := c.Run(context.Background(), &scripted{recs: blankFrames(10)},
		aggregator(t), 10)
	require.NoError(t, err)

	assert.Equal(t, Stats{Frames: 10, Chunks: 3}, stats)

	// each window rebuilds the output from every segment so far
	require.Len(t, sink.concats, 3)
	assert.Len(t, sink.concats[0], 1)
	assert.Len(t, sink.concats[2], 3)

	sizes := []int{}
	for _, p := range sink.concats[2] {
		sizes = append(sizes, sink.segments[p])
		assert.Equal(t, c.TempDir, filepath.Dir(p))
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)

	_, err = os.Stat(c.TempDir)
	assert.True(t, os.IsNotExist(err))
}

func TestProgress(t *testing.T) {

	tests := []struct {
		name   string
		frames int
		total  int
		want   []Progress
	}{
		{
			name:   "known total",
			frames: 25,
			total:  25,
			want: []Progress{
				{Done: 10, Total: 25, Fraction: 0.4},
				{Done: 20, Total: 25, Fraction: 0.8},
				{Done: 25, Total: 25, Fraction: 1},
				{Done: 25, Total: 25, Fraction: 1},
			},
		},
		{
			name:   "total underestimated",
			frames: 25,
			total:  15,
			want: []Progress{
				{Done: 10, Total: 15, Fraction: 10.0 / 15.0},
				{Done: 20, Total: 15, Fraction: 1},
				{Done: 25, Total: 15, Fraction: 1},
				{Done: 25, Total: 15, Fraction: 1},
			},
		},
		{
			name:   "unknown total",
			frames: 25,
			total:  0,
			want: []Progress{
				{Done: 25, Total: 0, Fraction: 1},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			var got []Progress

			c := controller(t, 10, newMemSink())
			c.Progress = func(p Progress) {
				got = append(got, p)
			}

			_, err := c.Run(context.Background(), &scripted{recs: blankFrames(tc.frames)},
				aggregator(t), tc.total)
			require.NoError(t, err)

			require.Len(t, got, len(tc.want))

			for i := range got {
				assert.Equal(t, tc.want[i].Done, got[i].Done)
				assert.Equal(t, tc.want[i].Total, got[i].Total)
				assert.InDelta(t, tc.want[i].Fraction, got[i].Fraction, 1e-9)
			}
		})
	}
}

func TestEmptySource(t *testing.T) {

	sink := newMemSink()
	agg := aggregator(t)

	var final []Progress

	c := controller(t, 10, sink)
	c.Progress = func(p Progress) { final = append(final, p) }

	stats, err := c.Run(context.Background(), &scripted{}, agg, 0)
	require.NoError(t, err)

	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, [][]string{nil}, sink.concats)
	assert.Len(t, final, 1)

	counts, _ := agg.Finalize()
	assert.Empty(t, counts)
}

func TestUntrackedNeverCounted(t *testing.T) {

	recs := [][]count.Detection{
		{{ClassID: cup, Box: image.Rect(0, 0, 10, 10)}},
		{{ClassID: cup, Box: image.Rect(0, 0, 10, 10)}},
	}

	agg := aggregator(t)
	_, err := controller(t, 1, newMemSink()).Run(context.Background(),
		&scripted{recs: recs}, agg, 2)
	require.NoError(t, err)

	counts, _ := agg.Finalize()
	assert.Empty(t, counts)
}

func TestCancelStopsAtFrameBoundary(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0

	var progress []Progress

	c := controller(t, 4, newMemSink())
	c.OnFrame = func(f *source.Frame) {
		seen++
		if seen == 6 {
			cancel()
		}
	}
	c.Progress = func(p Progress) { progress = append(progress, p) }

	stats, err := c.Run(ctx, &scripted{recs: blankFrames(20)}, aggregator(t), 20)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Frames)
	assert.Equal(t, 2, stats.Chunks)

	// a cancelled run never claims completion
	for _, p := range progress {
		assert.Less(t, p.Fraction, 1.0)
	}
}

func TestRecordWritesOneSegment(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := 0
	var progress []Progress

	sink := newMemSink()
	c := controller(t, 4, sink)
	c.OnFrame = func(f *source.Frame) {
		if seen++; seen == 12 {
			cancel()
		}
	}
	c.Progress = func(p Progress) { progress = append(progress, p) }

	out := filepath.Join(t.TempDir(), "live.mp4")

	stats, err := c.Record(ctx, &scripted{recs: blankFrames(1000)}, aggregator(t), out)
	require.NoError(t, err)

	assert.Equal(t, Stats{Frames: 12, Chunks: 1}, stats)
	assert.Equal(t, map[string]int{out: 12}, sink.segments)
	assert.Empty(t, sink.concats)
	assert.Equal(t, []Progress{{Done: 12, Fraction: 1}}, progress)
	assert.NoDirExists(t, c.TempDir)
}

func TestRecordMatchesRun(t *testing.T) {

	const frames = 23

	ref := aggregator(t)
	_, err := controller(t, 4, newMemSink()).Run(context.Background(),
		adapter(t, frames), ref, frames)
	require.NoError(t, err)

	agg := aggregator(t)
	stats, err := controller(t, 4, newMemSink()).Record(context.Background(),
		adapter(t, frames), agg, filepath.Join(t.TempDir(), "live.mp4"))
	require.NoError(t, err)
	assert.Equal(t, frames, stats.Frames)

	want, _ := ref.Finalize()
	got, _ := agg.Finalize()
	assert.Equal(t, want, got)
}

func TestFinalizedAggregator(t *testing.T) {

	agg := aggregator(t)
	agg.Finalize()

	recs := [][]count.Detection{{{ClassID: cup, TrackID: 1, Tracked: true}}}

	_, err := controller(t, 2, newMemSink()).Run(context.Background(),
		&scripted{recs: recs}, agg, 1)
	assert.ErrorIs(t, err, count.ErrFinalized)
}

func TestInvalidSize(t *testing.T) {

	_, err := controller(t, 0, newMemSink()).Run(context.Background(),
		&scripted{}, aggregator(t), 0)
	assert.Error(t, err)
}

func TestVideoSegments(t *testing.T) {

	dir := t.TempDir()
	out := filepath.Join(dir, "out.avi")

	sink := NewVideoSegments(out, 10, 64, 48)
	sink.Codec = "MJPG"

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 48, 64,
		gocv.MatTypeCV8UC3)
	defer img.Close()

	var paths []string

	for s := 0; s < 2; s++ {
		path := filepath.Join(dir, "seg"+string(rune('a'+s))+".avi")
		seg, err := sink.NewSegment(path)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, seg.Write(img))
		}

		require.NoError(t, seg.Close())
		paths = append(paths, path)
	}

	require.NoError(t, sink.Concat(paths))
	assert.Equal(t, out, sink.Output())

	r, err := source.Open(source.Media{Kind: source.Video, Path: out}, source.Options{})
	require.NoError(t, err)
	defer r.Close()

	read := gocv.NewMat()
	defer read.Close()

	n := 0
	for {
		ok, err := r.Read(&read)
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}

	assert.Equal(t, 6, n)

	_, err = os.Stat(filepath.Join(dir, "partial_out.avi"))
	assert.True(t, os.IsNotExist(err))
}
