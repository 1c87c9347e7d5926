package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-objcount/count"
)

func TestWriteCountsFormat(t *testing.T) {

	path := filepath.Join(t.TempDir(), CountsFile)

	require.NoError(t, WriteCounts(path, count.Counts{"plate": 1, "cup": 2, "fork": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "{\n    \"cup\": 2,\n    \"fork\": 1,\n    \"plate\": 1\n}\n", string(data))
}

func TestWriteCountsEmpty(t *testing.T) {

	dir := t.TempDir()

	for _, counts := range []count.Counts{nil, {}} {
		path := filepath.Join(dir, CountsFile)
		require.NoError(t, WriteCounts(path, counts))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{}\n", string(data))
	}
}

func TestWriteCountsDeterministic(t *testing.T) {

	dir := t.TempDir()
	counts := count.Counts{}

	for i, name := range []string{"spoon", "cup", "knife", "plant", "pan", "fork"} {
		counts[name] = i + 1
	}

	var first []byte

	for i := 0; i < 10; i++ {
		path := filepath.Join(dir, "counts.json")
		require.NoError(t, WriteCounts(path, counts.Clone()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		if first == nil {
			first = data
		}

		assert.Equal(t, first, data)
	}

	// no temporary files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err := ReadCounts(filepath.Join(dir, "counts.json"))
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestWriteCountsUnwritable(t *testing.T) {

	err := WriteCounts(filepath.Join(t.TempDir(), "missing", CountsFile), count.Counts{"cup": 1})
	assert.ErrorIs(t, err, ErrWrite)
}

func TestBuilder(t *testing.T) {

	dir := filepath.Join(t.TempDir(), "run1")
	counts := count.Counts{"cup": 1}

	res, err := Builder{RunDir: dir, Chart: true}.Build(counts, "/videos/out.mp4")
	require.NoError(t, err)

	assert.Equal(t, "/videos/out.mp4", res.OutputPath)
	assert.Equal(t, filepath.Join(dir, CountsFile), res.CountsPath)
	assert.Equal(t, filepath.Join(dir, ChartFile), res.ChartPath)
	assert.Equal(t, counts, res.Counts)

	// the result does not alias the caller's map
	counts["cup"] = 5
	assert.Equal(t, 1, res.Counts["cup"])

	assert.FileExists(t, res.CountsPath)
	assert.FileExists(t, res.ChartPath)
}

func TestBuilderEmptySkipsChart(t *testing.T) {

	dir := t.TempDir()

	res, err := Builder{RunDir: dir, Chart: true}.Build(count.Counts{}, "")
	require.NoError(t, err)

	assert.Empty(t, res.ChartPath)
	assert.Empty(t, res.Counts)
	assert.NoFileExists(t, filepath.Join(dir, ChartFile))
}

func TestChart(t *testing.T) {

	path := filepath.Join(t.TempDir(), "chart.png")

	require.NoError(t, Chart(map[string]int{"cup": 3, "plate": 1}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	assert.Error(t, Chart(nil, path))
}

func TestHistory(t *testing.T) {

	h, err := OpenHistory(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	defer h.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := &Run{
		Kind:     "video",
		Media:    "kitchen.mp4",
		Model:    "kitchen.onnx",
		Classes:  []string{"cup", "plate"},
		Started:  start,
		Finished: start.Add(90 * time.Second),
		Frames:   300,
		Skipped:  2,
		Counts:   count.Counts{"cup": 3, "plate": 1},
	}
	require.NoError(t, h.Record(older))
	assert.NotEmpty(t, older.ID)

	newer := &Run{
		ID:       "fixed-id",
		Kind:     "image",
		Media:    "table.jpg",
		Model:    "kitchen.onnx",
		Started:  start.Add(time.Hour),
		Finished: start.Add(time.Hour + time.Second),
		Frames:   1,
	}
	require.NoError(t, h.Record(newer))

	got, err := h.Get(older.ID)
	require.NoError(t, err)

	assert.Equal(t, older.Counts, got.Counts)
	assert.Equal(t, older.Classes, got.Classes)
	assert.Equal(t, 90*time.Second, got.Duration())
	assert.True(t, older.Started.Equal(got.Started))
	assert.Equal(t, 2, got.Skipped)

	got, err = h.Get("fixed-id")
	require.NoError(t, err)
	assert.Empty(t, got.Counts)
	assert.Empty(t, got.Classes)

	_, err = h.Get("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := h.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "fixed-id", runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	runs, err = h.List(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// ids are unique
	assert.Error(t, h.Record(newer))
}
