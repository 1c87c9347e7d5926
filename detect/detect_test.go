package detect

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// tensor builds a [4+classes, anchors] YOLOv8 output from per anchor rows
func tensor(classes int, rows [][]float32) []float32 {

	anchors := len(rows)
	data := make([]float32, (4+classes)*anchors)

	for i, row := range rows {
		for k, v := range row {
			data[k*anchors+i] = v
		}
	}

	return data
}

func TestDecodeYOLOv8(t *testing.T) {

	data := tensor(3, [][]float32{
		// cx, cy, w, h, class0, class1, class2
		{100, 100, 20, 40, 0.1, 0.9, 0.2},
		{200, 50, 10, 10, 0.3, 0.2, 0.1},
		{320, 320, 64, 32, 0.7, 0.0, 0.71},
	})

	cands, err := DecodeYOLOv8(data, 3, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, Candidate{X1: 90, Y1: 80, X2: 110, Y2: 120, Score: 0.9, Class: 1}, cands[0])
	assert.Equal(t, 2, cands[1].Class)
	assert.InDelta(t, 0.71, cands[1].Score, 1e-6)
}

func TestDecodeYOLOv8Shape(t *testing.T) {

	_, err := DecodeYOLOv8(make([]float32, 10), 3, 3, 0.5)
	assert.Error(t, err)

	_, err = DecodeYOLOv8(nil, 0, 3, 0.5)
	assert.Error(t, err)
}

func TestNMS(t *testing.T) {

	cands := []Candidate{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.8, Class: 0},
		{X1: 5, Y1: 5, X2: 105, Y2: 105, Score: 0.9, Class: 0},
		// same place, different class survives
		{X1: 5, Y1: 5, X2: 105, Y2: 105, Score: 0.7, Class: 1},
		{X1: 300, Y1: 300, X2: 350, Y2: 350, Score: 0.6, Class: 0},
	}

	kept := NMS(cands, 0.5, 0)
	require.Len(t, kept, 3)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, 1, kept[1].Class)
	assert.Equal(t, float32(0.6), kept[2].Score)

	capped := NMS(cands, 0.5, 2)
	assert.Len(t, capped, 2)
}

func TestLetterboxToSource(t *testing.T) {

	lb := Letterbox{Scale: 0.5, XPad: 0, YPad: 140, SrcW: 1280, SrcH: 720}

	box := lb.ToSource(Candidate{X1: 10, Y1: 150, X2: 110, Y2: 250})
	assert.Equal(t, image.Rect(20, 20, 220, 220), box)

	// boxes spilling into the padding are clamped to the frame
	box = lb.ToSource(Candidate{X1: -10, Y1: 100, X2: 700, Y2: 600})
	assert.Equal(t, image.Rect(0, 0, 1280, 720), box)
}

func TestConfigValidate(t *testing.T) {

	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"confidence", func(c *Config) { c.Confidence = 1.5 }},
		{"iou", func(c *Config) { c.IoU = -0.1 }},
		{"imgsz", func(c *Config) { c.ImgSize = 100 }},
		{"maxdet", func(c *Config) { c.MaxDetections = 0 }},
		{"device", func(c *Config) { c.Device = "tpu" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFilterClasses(t *testing.T) {

	cands := []Candidate{{Class: 0}, {Class: 2}, {Class: 7}}

	cfg := DefaultConfig()
	assert.Len(t, cfg.FilterClasses(cands), 3)

	cfg.Classes = []int{0, 7}
	got := cfg.FilterClasses(cands)
	assert.Equal(t, []Candidate{{Class: 0}, {Class: 7}}, got)
	assert.Equal(t, 2, cands[1].Class)
}

func TestResultsFilterBeforeCap(t *testing.T) {

	var cands []Candidate

	// unwanted class with higher scores than every wanted one
	for i := 0; i < 4; i++ {
		x := float32(i * 100)
		cands = append(cands,
			Candidate{X1: x, Y1: 0, X2: x + 50, Y2: 50, Score: 0.95, Class: 1},
			Candidate{X1: x, Y1: 200, X2: x + 50, Y2: 250, Score: 0.6, Class: 0},
		)
	}

	cfg := DefaultConfig()
	cfg.Classes = []int{0}
	cfg.MaxDetections = 3

	lb := Letterbox{Scale: 1, SrcW: 640, SrcH: 640}
	var ids IDGenerator

	res := Results(cands, lb, cfg, &ids)
	require.Len(t, res, 3)

	for _, r := range res {
		assert.Equal(t, 0, r.Class)
	}

	assert.Equal(t, image.Rect(0, 200, 50, 250), res[0].Box)
	assert.Equal(t, int64(1), res[0].ID)
}

func TestResolveClasses(t *testing.T) {

	ids, err := ResolveClasses(Kitchen, []string{"plate", "cup", " plate", "9"})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 0, 9}, ids)

	_, err = ResolveClasses(Kitchen, []string{"teapot"})
	assert.Error(t, err)

	_, err = ResolveClasses(Kitchen, []string{"10"})
	assert.Error(t, err)

	_, err = ResolveClasses(Kitchen, []string{""})
	assert.Error(t, err)

	ids, err = ResolveClasses(COCO, []string{"chair", "laptop"})
	require.NoError(t, err)
	assert.Equal(t, []int{56, 63}, ids)
}

func TestCatalog(t *testing.T) {

	c, err := Catalog("Kitchen")
	require.NoError(t, err)
	assert.Len(t, c, 10)

	c, err = Catalog("coco")
	require.NoError(t, err)
	assert.Len(t, c, 80)

	_, err = Catalog("imagenet")
	assert.Error(t, err)
}

func TestLoadLabels(t *testing.T) {

	file := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(file, []byte("cup\n\n plate \nspoon\n"), 0644))

	labels, err := LoadLabels(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"cup", "plate", "spoon"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewDNNMissingModel(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Model = filepath.Join(t.TempDir(), "missing.onnx")

	_, err := NewDNN(cfg)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestReplay(t *testing.T) {

	boom := errors.New("boom")
	r := NewReplay([][]Result{
		{{Class: 1, Box: image.Rect(0, 0, 10, 10), Score: 0.9}},
		{{Class: 2, Box: image.Rect(5, 5, 20, 20), Score: 0.8}},
	}).FailOn(1, boom)

	img := gocv.NewMat()
	defer img.Close()

	res, err := r.Detect(img)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Class)

	// callers may modify what they get back
	res[0].Class = 9

	_, err = r.Detect(img)
	assert.ErrorIs(t, err, boom)

	res, err = r.Detect(img)
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.Equal(t, 3, r.Calls())
	assert.Equal(t, 1, r.frames[0][0].Class)

	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
}
