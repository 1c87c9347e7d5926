package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/npu"
	"github.com/swdee/go-objcount/source"
	"github.com/swdee/go-objcount/tracker"
)

func write(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	return path
}

func TestDefaults(t *testing.T) {

	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	det := cfg.DetectConfig(source.Video)
	assert.Equal(t, float32(0.6), det.Confidence)
	assert.Equal(t, float32(0.6), det.IoU)
	assert.Equal(t, 640, det.ImgSize)
	assert.Equal(t, detect.CPU, det.Device)
	assert.False(t, det.Half)

	assert.Equal(t, float32(0.2), cfg.DetectConfig(source.Image).Confidence)
	assert.Equal(t, tracker.DefaultConfig(), cfg.TrackerConfig())

	assert.Equal(t, "runs/temp", cfg.GetRunDir())
	assert.Equal(t, 10, cfg.GetChunkSize())
	assert.Equal(t, 1, cfg.GetStride())
	assert.Equal(t, []string{"chair", "laptop"}, cfg.GetClasses())
	assert.Equal(t, DefaultListen, cfg.GetListen())
	assert.False(t, cfg.GetChart())
	assert.Empty(t, cfg.GetHistory())
	assert.Equal(t, npu.CoreAuto, cfg.GetNPUCore())

	names, err := cfg.ClassNames()
	require.NoError(t, err)
	ids, err := cfg.ClassIDs(names)
	require.NoError(t, err)
	assert.Equal(t, []int{56, 63}, ids)
}

func TestLoadPartial(t *testing.T) {

	path := write(t, "run.json", `{
		"model": "models/kitchen.onnx",
		"catalog": "kitchen",
		"classes": ["cup", "plate"],
		"confidence": 0.5,
		"device": "cuda",
		"chunk_size": 25,
		"vid_stride": 2,
		"abort_on_frame_error": true,
		"npu_core": "0_1_2",
		"tracker": {"track_buffer": 60}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	det := cfg.DetectConfig(source.Video)
	assert.Equal(t, "models/kitchen.onnx", det.Model)
	assert.Equal(t, float32(0.5), det.Confidence)
	assert.Equal(t, detect.CUDA, det.Device)
	assert.True(t, det.Half)

	tr := cfg.TrackerConfig()
	assert.Equal(t, 60, tr.TrackBuffer)
	assert.Equal(t, 30, tr.FrameRate)

	assert.Equal(t, 25, cfg.GetChunkSize())
	assert.Equal(t, npu.Core012, cfg.GetNPUCore())
	assert.Equal(t, source.Options{Stride: 2, AbortOnFrameError: true}, cfg.SourceOptions())

	names, err := cfg.ClassNames()
	require.NoError(t, err)
	ids, err := cfg.ClassIDs(names)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 7}, ids)
}

func TestLoadErrors(t *testing.T) {

	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "run.yaml", `{}`, ".json extension"},
		{"syntax", "run.json", `{"model": `, "parse config"},
		{"confidence", "run.json", `{"confidence": 1.5}`, "confidence must be between"},
		{"chunk size", "run.json", `{"chunk_size": 0}`, "chunk_size must be at least 1"},
		{"stride", "run.json", `{"vid_stride": 0}`, "vid_stride"},
		{"imgsz", "run.json", `{"imgsz": 600}`, "multiple of 32"},
		{"device", "run.json", `{"device": "tpu"}`, "unknown device"},
		{"catalog", "run.json", `{"catalog": "zoo"}`, "zoo"},
		{"tracker", "run.json", `{"tracker": {"match_thresh": 0}}`, "match threshold"},
		{"npu core", "run.json", `{"npu_core": "5"}`, "unknown npu core"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(write(t, tc.file, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadTooLarge(t *testing.T) {

	body := `{"model": "` + strings.Repeat("x", maxFileSize) + `"}`

	_, err := Load(write(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMerge(t *testing.T) {

	base := &Config{
		Model:     ptr("a.onnx"),
		ChunkSize: ptr(5),
		Classes:   []string{"cup"},
	}

	base.Merge(&Config{
		Model:  ptr("b.onnx"),
		RunDir: ptr("out"),
	})

	assert.Equal(t, "b.onnx", *base.Model)
	assert.Equal(t, 5, *base.ChunkSize)
	assert.Equal(t, []string{"cup"}, base.Classes)
	assert.Equal(t, "out", base.GetRunDir())

	base.Merge(nil)
	assert.Equal(t, "b.onnx", *base.Model)
}

func ptr[T any](v T) *T {
	return &v
}
