package render

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/tracker"
	"gocv.io/x/gocv"
)

// blank returns a mid grey frame so both dark and light drawing shows up
func blank(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0),
		240, 320, gocv.MatTypeCV8UC3)
	require.False(t, img.Empty())
	return img
}

func painted(img gocv.Mat, x, y int) bool {
	v := img.GetVecbAt(y, x)
	return v[0] != 128 || v[1] != 128 || v[2] != 128
}

func TestColorFor(t *testing.T) {

	assert.Equal(t, classColors[0], ColorFor(0))
	assert.Equal(t, classColors[1], ColorFor(len(classColors)+1))
	assert.Equal(t, classColors[3], ColorFor(-3))
}

func TestClassName(t *testing.T) {

	names := []string{"cup", "plate"}

	assert.Equal(t, "plate", className(names, 1))
	assert.Equal(t, "class5", className(names, 5))
	assert.Equal(t, "class-1", className(names, -1))
}

func TestDetectionsDrawsBoxes(t *testing.T) {

	img := blank(t)
	defer img.Close()

	recs := []count.Detection{
		{ClassID: 0, TrackID: 3, Tracked: true, Box: image.Rect(50, 80, 150, 200), Score: 0.9},
		{ClassID: 1, Box: image.Rect(200, 100, 300, 200), Score: 0.7},
	}

	Detections(&img, recs, []string{"cup", "plate"}, DefaultFont(), 2)

	// left edge of both boxes, below their labels
	assert.True(t, painted(img, 50, 150))
	assert.True(t, painted(img, 200, 150))
	// box interiors stay empty
	assert.False(t, painted(img, 100, 150))
	assert.False(t, painted(img, 250, 150))
}

func TestLabelMovesInsideAtTopEdge(t *testing.T) {

	box := image.Rect(10, 0, 100, 60)
	l := placeLabel(box, "cup 0.90", White, DefaultFont(), 2)

	assert.GreaterOrEqual(t, l.rect.Min.Y, 0)
	assert.Greater(t, l.textPos.Y, box.Min.Y)
}

func TestCountsPanel(t *testing.T) {

	img := blank(t)
	defer img.Close()

	Counts(&img, count.Counts{}, CountsFont())
	assert.False(t, painted(img, 2, 2))

	Counts(&img, count.Counts{"cup": 2, "plate": 1}, CountsFont())
	assert.True(t, painted(img, 2, 2))
	assert.False(t, painted(img, 300, 220))
}

func TestAnnotatorRecordsTrail(t *testing.T) {

	img := blank(t)
	defer img.Close()

	a := NewAnnotator([]string{"cup"})
	assigner := tracker.NewAssigner(tracker.DefaultConfig())

	var id int

	for dx := 0; dx < 40; dx += 10 {
		recs, tracks, err := assigner.Assign([]detect.Result{
			{Class: 0, Box: image.Rect(40+dx, 60, 120+dx, 160), Score: 0.9},
		})
		require.NoError(t, err)
		require.Len(t, tracks, 1)

		id = tracks[0].ID()
		a.Annotate(&img, recs, tracks, count.Counts{"cup": 1})
	}

	pts := a.Trail.Points(id)
	require.Len(t, pts, 4)
	assert.Less(t, pts[0].X, pts[3].X)

	a.Reset()
	assert.Empty(t, a.Trail.Points(id))
}
