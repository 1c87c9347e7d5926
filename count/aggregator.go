package count

import (
	"errors"
	"fmt"
)

// ErrFinalized is returned when observations are made on an Aggregator
// that has already been finalized
var ErrFinalized = errors.New("aggregator already finalized")

// histogram is the per track record of how often each class was seen.
// Classes are kept in the order they were first observed so ties resolve
// deterministically
type histogram struct {
	order  []string
	counts map[string]int
}

func (h *histogram) add(class string) {

	if _, ok := h.counts[class]; !ok {
		h.order = append(h.order, class)
	}

	h.counts[class]++
}

// winner returns the class with the highest count.  On a tie the class that
// was observed first in this track wins
func (h *histogram) winner() string {

	best := ""
	bestCount := 0

	for _, class := range h.order {
		if n := h.counts[class]; n > bestCount {
			best = class
			bestCount = n
		}
	}

	return best
}

// Aggregator reduces per frame tracked detections into one class per track
// and a count per class.  An Aggregator serves a single run and is not safe
// for concurrent use
type Aggregator struct {
	// catalog is the full list of class names, indexed by class id
	catalog []string
	// filter is the set of class ids requested for counting
	filter map[int]bool
	// tracks holds the class histogram of each track id
	tracks map[int]*histogram
	// trackOrder records track ids in order of first observation
	trackOrder []int
	// finalized is set once Finalize has been called
	finalized bool
	counts    Counts
	objects   []Object
}

// NewAggregator returns an Aggregator counting the given class ids of the
// catalog
func NewAggregator(catalog []string, classIDs []int) (*Aggregator, error) {

	if len(classIDs) == 0 {
		return nil, errors.New("no classes requested for counting")
	}

	filter := make(map[int]bool, len(classIDs))

	for _, id := range classIDs {
		if id < 0 || id >= len(catalog) {
			return nil, fmt.Errorf("class id %d outside catalog of %d classes",
				id, len(catalog))
		}

		filter[id] = true
	}

	return &Aggregator{
		catalog: catalog,
		filter:  filter,
		tracks:  make(map[int]*histogram),
	}, nil
}

// Observe records one detection.  Detections without a track id or whose
// class was not requested are ignored
func (a *Aggregator) Observe(d Detection) error {

	if a.finalized {
		return ErrFinalized
	}

	if !d.Tracked || !a.filter[d.ClassID] {
		return nil
	}

	h, ok := a.tracks[d.TrackID]

	if !ok {
		h = &histogram{counts: make(map[string]int)}
		a.tracks[d.TrackID] = h
		a.trackOrder = append(a.trackOrder, d.TrackID)
	}

	h.add(a.catalog[d.ClassID])

	return nil
}

// ObserveFrame records all detections from a single frame
func (a *Aggregator) ObserveFrame(dets []Detection) error {

	for _, d := range dets {
		if err := a.Observe(d); err != nil {
			return err
		}
	}

	return nil
}

// Finalize selects the winning class of every track and reduces them to
// per class counts.  Subsequent calls return the same result
func (a *Aggregator) Finalize() (Counts, []Object) {

	if !a.finalized {
		a.counts, a.objects = a.reduce()
		a.finalized = true
	}

	return a.counts.Clone(), append([]Object(nil), a.objects...)
}

// Snapshot returns the counts as they would be if the run ended now without
// finalizing the Aggregator
func (a *Aggregator) Snapshot() Counts {

	if a.finalized {
		return a.counts.Clone()
	}

	counts, _ := a.reduce()
	return counts
}

func (a *Aggregator) reduce() (Counts, []Object) {

	counts := make(Counts)
	objects := make([]Object, 0, len(a.trackOrder))

	for _, id := range a.trackOrder {
		class := a.tracks[id].winner()
		objects = append(objects, Object{TrackID: id, Class: class})
		counts[class]++
	}

	return counts, objects
}

// Tracks returns the number of distinct tracks observed
func (a *Aggregator) Tracks() int {
	return len(a.trackOrder)
}

// Histogram returns a copy of the class histogram for a track
func (a *Aggregator) Histogram(trackID int) (map[string]int, bool) {

	h, ok := a.tracks[trackID]

	if !ok {
		return nil, false
	}

	out := make(map[string]int, len(h.counts))

	for k, v := range h.counts {
		out[k] = v
	}

	return out, true
}

// Finalized reports whether Finalize has been called
func (a *Aggregator) Finalized() bool {
	return a.finalized
}
