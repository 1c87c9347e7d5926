package tracker

import (
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/detect"
)

// Assigner runs detections of each frame through a ByteTrack tracker and
// returns them as count records carrying their track id
type Assigner struct {
	bt *ByteTrack
	// seq numbers detections so tracks can be mapped back to them whatever
	// IDs the detector used
	seq int64
}

// NewAssigner returns an Assigner backed by a new ByteTrack tracker
func NewAssigner(cfg Config) *Assigner {
	return &Assigner{bt: NewByteTrack(cfg)}
}

// Assign tracks one frame of detections.  The returned records are in the
// same order as dets.  Detections the tracker did not confirm on this frame
// are returned untracked
func (a *Assigner) Assign(dets []detect.Result) ([]count.Detection, []*Track, error) {

	objs := make([]Object, len(dets))
	base := a.seq

	for i, d := range dets {
		objs[i] = Object{
			Rect:  RectFromImage(d.Box),
			Label: d.Class,
			Score: d.Score,
			ID:    base + int64(i) + 1,
		}
	}

	a.seq += int64(len(dets))

	tracks, err := a.bt.Update(objs)

	if err != nil {
		return nil, nil, err
	}

	recs := make([]count.Detection, len(dets))

	for i, d := range dets {
		recs[i] = count.Detection{
			ClassID: d.Class,
			Box:     d.Box,
			Score:   d.Score,
		}
	}

	for _, t := range tracks {
		idx := t.DetectionID() - base - 1

		if idx < 0 || idx >= int64(len(dets)) {
			continue
		}

		recs[idx].TrackID = t.ID()
		recs[idx].Tracked = true
	}

	return recs, tracks, nil
}

// Reset forgets all tracks
func (a *Assigner) Reset() {
	a.bt.Reset()
}
