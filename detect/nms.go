package detect

import (
	"image"
	"math"
	"sort"
	"sync"

	"github.com/swdee/go-objcount/preprocess"
)

// Candidate is a decoded box prior to Non-Maximum Suppression.  Coordinates
// are in model input space
type Candidate struct {
	X1, Y1, X2, Y2 float32
	Score          float32
	Class          int
}

// NMS runs class aware Non-Maximum Suppression and returns the surviving
// candidates ordered by descending score, capped at maxDet
func NMS(cands []Candidate, threshold float32, maxDet int) []Candidate {

	order := make([]int, len(cands))

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return cands[order[a]].Score > cands[order[b]].Score
	})

	suppressed := make([]bool, len(cands))
	keep := make([]Candidate, 0, len(cands))

	for i, n := range order {

		if suppressed[n] {
			continue
		}

		keep = append(keep, cands[n])

		if maxDet > 0 && len(keep) >= maxDet {
			break
		}

		for _, m := range order[i+1:] {
			if suppressed[m] || cands[m].Class != cands[n].Class {
				continue
			}

			if overlap(cands[n], cands[m]) > threshold {
				suppressed[m] = true
			}
		}
	}

	return keep
}

// overlap works out the Intersection over Union of two boxes treating the
// coordinates as inclusive pixels
func overlap(a, b Candidate) float32 {

	w := math.Max(0, math.Min(float64(a.X2), float64(b.X2))-math.Max(float64(a.X1), float64(b.X1))+1)
	h := math.Max(0, math.Min(float64(a.Y2), float64(b.Y2))-math.Max(float64(a.Y1), float64(b.Y1))+1)
	inter := float32(w * h)

	areaA := (a.X2 - a.X1 + 1) * (a.Y2 - a.Y1 + 1)
	areaB := (b.X2 - b.X1 + 1) * (b.Y2 - b.Y1 + 1)
	union := areaA + areaB - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// Letterbox describes how a source frame was scaled and padded into the
// model input
type Letterbox struct {
	Scale      float32
	XPad, YPad int
	SrcW, SrcH int
}

// ToSource maps a candidate box back to source image coordinates, clamped to
// the source frame
func (l Letterbox) ToSource(c Candidate) image.Rectangle {

	conv := func(v float32, pad int, limit int) int {
		v = (v - float32(pad)) / l.Scale

		if v < 0 {
			return 0
		}

		if v > float32(limit) {
			return limit
		}

		return int(v)
	}

	return image.Rect(
		conv(c.X1, l.XPad, l.SrcW), conv(c.Y1, l.YPad, l.SrcH),
		conv(c.X2, l.XPad, l.SrcW), conv(c.Y2, l.YPad, l.SrcH),
	)
}

// LetterboxOf returns the letterbox geometry last applied by a resizer
func LetterboxOf(r *preprocess.Resizer) Letterbox {
	return Letterbox{
		Scale: r.ScaleFactor(),
		XPad:  r.XPad(),
		YPad:  r.YPad(),
		SrcW:  r.SrcWidth(),
		SrcH:  r.SrcHeight(),
	}
}

// Results applies the class filter of cfg, suppresses overlapping
// candidates and maps the survivors back to source coordinates.  Classes
// outside the filter never take up the MaxDetections budget.  Each result
// gets a fresh ID from ids
func Results(cands []Candidate, lb Letterbox, cfg Config, ids *IDGenerator) []Result {

	kept := NMS(cfg.FilterClasses(cands), cfg.IoU, cfg.MaxDetections)
	res := make([]Result, 0, len(kept))

	for _, c := range kept {
		res = append(res, Result{
			Class: c.Class,
			Box:   lb.ToSource(c),
			Score: c.Score,
			ID:    ids.Next(),
		})
	}

	return res
}

// IDGenerator hands out incrementing detection IDs
type IDGenerator struct {
	id int64
	sync.Mutex
}

// Next returns the next ID
func (g *IDGenerator) Next() int64 {
	g.Lock()
	defer g.Unlock()
	g.id++
	return g.id
}
