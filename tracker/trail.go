package tracker

import (
	"image"
	"sync"
)

// Trail keeps the recent centre points of each track for drawing motion
// trails
type Trail struct {
	size    int
	history map[int][]image.Point
	sync.Mutex
}

// NewTrail returns a Trail keeping at most size points per track
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int][]image.Point),
	}
}

// Add appends the current centre of each track to its history
func (t *Trail) Add(tracks []*Track) {
	t.Lock()
	defer t.Unlock()

	for _, tr := range tracks {
		pts := append(t.history[tr.ID()], tr.Rect().Centre())

		if len(pts) > t.size {
			pts = pts[len(pts)-t.size:]
		}

		t.history[tr.ID()] = pts
	}
}

// Points returns a copy of the point history of a track
func (t *Trail) Points(id int) []image.Point {
	t.Lock()
	defer t.Unlock()

	return append([]image.Point(nil), t.history[id]...)
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]image.Point)
}
