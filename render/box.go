package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-objcount/count"
	"gocv.io/x/gocv"
)

// boxLabel holds a precalculated label so labels can be drawn after all
// boxes and sit on the top most layer
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// className returns the catalog name of a class id, falling back to the
// numeric id when the catalog does not cover it
func className(classNames []string, id int) string {
	if id >= 0 && id < len(classNames) {
		return classNames[id]
	}
	return fmt.Sprintf("class%d", id)
}

// placeLabel calculates where the label text and its background box go
// relative to the bounding box
func placeLabel(box image.Rectangle, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (box.Min.X + box.Max.X) / 2

	case Right:
		centerX = box.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = box.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	top := box.Min.Y

	// labels that would run off the top of the frame go inside the box
	if top-textSize.Y-font.TopPad-font.BottomPad < 0 {
		top = box.Min.Y + textSize.Y + font.TopPad + font.BottomPad
	}

	return boxLabel{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			top-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, top),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, top-font.BottomPad),
	}
}

// drawLabels renders precalculated labels
func drawLabels(img *gocv.Mat, labels []boxLabel, font Font) {
	for _, l := range labels {
		gocv.Rectangle(img, l.rect, l.clr, -1)
		gocv.PutTextWithParams(img, l.text, l.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// Detections renders the bounding box of every detection record of a frame.
// Tracked records are colored by track id and labelled with it, untracked
// records are colored by class
func Detections(img *gocv.Mat, recs []count.Detection, classNames []string,
	font Font, lineThickness int) {

	labels := make([]boxLabel, 0, len(recs))

	for _, rec := range recs {

		var clr color.RGBA
		var text string

		if rec.Tracked {
			clr = ColorFor(rec.TrackID)
			text = fmt.Sprintf("%s #%d %.2f", className(classNames, rec.ClassID),
				rec.TrackID, rec.Score)
		} else {
			clr = ColorFor(rec.ClassID)
			text = fmt.Sprintf("%s %.2f", className(classNames, rec.ClassID),
				rec.Score)
		}

		gocv.Rectangle(img, rec.Box, clr, lineThickness)
		labels = append(labels, placeLabel(rec.Box, text, clr, font, lineThickness))
	}

	drawLabels(img, labels, font)
}
