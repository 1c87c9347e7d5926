package render

import (
	"fmt"
	"image"
	"sort"

	"github.com/swdee/go-objcount/count"
	"gocv.io/x/gocv"
)

// Counts renders a panel in the top left corner of the image listing the
// number of distinct objects per class, sorted by class name
func Counts(img *gocv.Mat, counts count.Counts, font Font) {

	if len(counts) == 0 {
		return
	}

	names := make([]string, 0, len(counts))

	for name := range counts {
		names = append(names, name)
	}

	sort.Strings(names)

	lines := make([]string, len(names))
	width, height := 0, 0

	for i, name := range names {
		lines[i] = fmt.Sprintf("%s: %d", name, counts[name])
		sz := gocv.GetTextSize(lines[i], font.Face, font.Scale, font.Thickness)

		if sz.X > width {
			width = sz.X
		}

		if sz.Y > height {
			height = sz.Y
		}
	}

	lineH := height + font.TopPad + font.BottomPad
	panel := image.Rect(0, 0, width+font.LeftPad+font.RightPad, lineH*len(lines))

	gocv.Rectangle(img, panel, Black, -1)

	for i, text := range lines {
		pos := image.Pt(font.LeftPad, (i+1)*lineH-font.BottomPad)
		gocv.PutTextWithParams(img, text, pos, font.Face, font.Scale,
			font.Color, font.Thickness, font.LineType, false)
	}
}
