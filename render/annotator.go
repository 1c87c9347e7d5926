package render

import (
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/tracker"
	"gocv.io/x/gocv"
)

// Annotator draws the per frame overlay: boxes for each detection record,
// motion trails for confirmed tracks and optionally the running counts
type Annotator struct {
	ClassNames    []string
	Font          Font
	LineThickness int
	// Trail, when set, records and draws track history
	Trail      *tracker.Trail
	TrailStyle TrailStyle
	// CountsFont is used for the counts panel drawn when counts are passed
	// to Annotate
	CountsFont Font
}

// NewAnnotator returns an Annotator with default fonts, a 30 point trail and
// 2 pixel box lines
func NewAnnotator(classNames []string) *Annotator {
	return &Annotator{
		ClassNames:    classNames,
		Font:          DefaultFont(),
		LineThickness: 2,
		Trail:         tracker.NewTrail(30),
		TrailStyle:    DefaultTrailStyle(),
		CountsFont:    CountsFont(),
	}
}

// Annotate draws onto img in place.  A nil counts map skips the counts panel
func (a *Annotator) Annotate(img *gocv.Mat, recs []count.Detection,
	tracks []*tracker.Track, counts count.Counts) {

	if a.Trail != nil {
		a.Trail.Add(tracks)
		Trail(img, tracks, a.Trail, a.TrailStyle)
	}

	Detections(img, recs, a.ClassNames, a.Font, a.LineThickness)

	if counts != nil {
		Counts(img, counts, a.CountsFont)
	}
}

// Reset clears trail history between runs
func (a *Annotator) Reset() {
	if a.Trail != nil {
		a.Trail.Reset()
	}
}
