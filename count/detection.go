package count

import "image"

// Detection is a single object instance found in one frame, after the
// tracker has had a chance to attach a persistent track id to it
type Detection struct {
	// ClassID is the index into the class catalog the detector was trained on
	ClassID int
	// TrackID is the tracker assigned identity of the object.  It is only
	// meaningful when Tracked is true
	TrackID int
	// Tracked is false when the tracker could not establish temporal
	// identity for this detection
	Tracked bool
	// Box is the bounding box of the object in source image coordinates
	Box image.Rectangle
	// Score is the detector confidence
	Score float32
}

// Object is one finalized tracked object with the class that won the
// majority vote over its lifetime
type Object struct {
	TrackID int
	Class   string
}

// Counts maps a class name to the number of distinct tracks whose winning
// class is that name.  Classes with no tracks are absent
type Counts map[string]int

// Total returns the sum of all class counts
func (c Counts) Total() int {

	total := 0

	for _, n := range c {
		total += n
	}

	return total
}

// Clone returns a copy of the counts
func (c Counts) Clone() Counts {

	out := make(Counts, len(c))

	for k, v := range c {
		out[k] = v
	}

	return out
}
