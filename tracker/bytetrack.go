// Package tracker implements the ByteTrack multi object tracker which
// assigns persistent ids to per frame detections.
package tracker

import (
	"fmt"
)

// Config defines the ByteTrack parameters
type Config struct {
	// FrameRate of the source, used to scale TrackBuffer
	FrameRate int `json:"frame_rate"`
	// TrackBuffer is the number of frames at 30fps a lost track is kept
	TrackBuffer int `json:"track_buffer"`
	// TrackThresh splits detections into high and low confidence sets
	TrackThresh float32 `json:"track_thresh"`
	// HighThresh is the minimum score to start a new track
	HighThresh float32 `json:"high_thresh"`
	// MatchThresh is the maximum IoU distance for a first round match
	MatchThresh float32 `json:"match_thresh"`
}

// DefaultConfig returns the standard ByteTrack parameters
func DefaultConfig() Config {
	return Config{
		FrameRate:   30,
		TrackBuffer: 30,
		TrackThresh: 0.5,
		HighThresh:  0.6,
		MatchThresh: 0.8,
	}
}

// Validate checks the parameters are usable
func (c Config) Validate() error {

	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}

	if c.TrackBuffer <= 0 {
		return fmt.Errorf("track buffer must be positive, got %d", c.TrackBuffer)
	}

	if c.MatchThresh <= 0 || c.MatchThresh > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %f", c.MatchThresh)
	}

	return nil
}

// ByteTrack associates detections across frames using IoU matching of high
// then low confidence detections against Kalman predicted tracks
type ByteTrack struct {
	cfg         Config
	kalman      *kalmanFilter
	maxTimeLost int
	frameID     int
	nextID      int
	tracked     []*Track
	lost        []*Track
	removed     []*Track
}

// NewByteTrack returns a tracker using the given parameters
func NewByteTrack(cfg Config) *ByteTrack {
	return &ByteTrack{
		cfg:         cfg,
		kalman:      newKalmanFilter(1.0/20, 1.0/160),
		maxTimeLost: int(float32(cfg.FrameRate) / 30.0 * float32(cfg.TrackBuffer)),
	}
}

// Reset clears all tracks and restarts track ids from 1
func (bt *ByteTrack) Reset() {
	bt.frameID = 0
	bt.nextID = 0
	bt.tracked = nil
	bt.lost = nil
	bt.removed = nil
}

// Update advances the tracker by one frame and returns the confirmed tracks
// matched in this frame
func (bt *ByteTrack) Update(objects []Object) ([]*Track, error) {

	bt.frameID++

	var high, low []*Track

	for _, obj := range objects {
		if obj.Score >= bt.cfg.TrackThresh {
			high = append(high, newTrack(obj))
		} else {
			low = append(low, newTrack(obj))
		}
	}

	var unconfirmed, confirmed []*Track

	for _, t := range bt.tracked {
		if t.activated {
			confirmed = append(confirmed, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}

	pool := joinTracks(confirmed, bt.lost)

	for _, t := range pool {
		t.predict(bt.kalman)
	}

	var active, refound, newlyLost, newlyRemoved []*Track

	// first association of all known tracks with high score detections
	matches, uTracks, uDets, err := linearAssignment(iouDistance(pool, high),
		len(pool), len(high), bt.cfg.MatchThresh)

	if err != nil {
		return nil, fmt.Errorf("first association: %w", err)
	}

	for _, m := range matches {
		t, det := pool[m[0]], high[m[1]]

		if err := bt.rematch(t, det, &active, &refound); err != nil {
			return nil, fmt.Errorf("first association: %w", err)
		}
	}

	var remainDets, remainTracks []*Track

	for _, i := range uDets {
		remainDets = append(remainDets, high[i])
	}

	for _, i := range uTracks {
		if pool[i].state == Tracked {
			remainTracks = append(remainTracks, pool[i])
		}
	}

	// second association of the leftover tracks with low score detections
	matches, uTracks, _, err = linearAssignment(iouDistance(remainTracks, low),
		len(remainTracks), len(low), 0.5)

	if err != nil {
		return nil, fmt.Errorf("second association: %w", err)
	}

	for _, m := range matches {
		t, det := remainTracks[m[0]], low[m[1]]

		if err := bt.rematch(t, det, &active, &refound); err != nil {
			return nil, fmt.Errorf("second association: %w", err)
		}
	}

	for _, i := range uTracks {
		if t := remainTracks[i]; t.state != Lost {
			t.state = Lost
			newlyLost = append(newlyLost, t)
		}
	}

	// unconfirmed tracks get one chance against the unmatched high
	// detections, otherwise they are dropped
	matches, uUnconfirmed, uDets, err := linearAssignment(
		iouDistance(unconfirmed, remainDets),
		len(unconfirmed), len(remainDets), 0.7)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association: %w", err)
	}

	for _, m := range matches {
		t := unconfirmed[m[0]]

		if err := t.update(bt.kalman, remainDets[m[1]], bt.frameID); err != nil {
			return nil, fmt.Errorf("unconfirmed association: %w", err)
		}

		active = append(active, t)
	}

	for _, i := range uUnconfirmed {
		t := unconfirmed[i]
		t.state = Removed
		newlyRemoved = append(newlyRemoved, t)
	}

	for _, i := range uDets {
		det := remainDets[i]

		if det.score < bt.cfg.HighThresh {
			continue
		}

		bt.nextID++
		det.activate(bt.kalman, bt.frameID, bt.nextID)
		active = append(active, det)
	}

	for _, t := range bt.lost {
		if bt.frameID-t.frameID > bt.maxTimeLost {
			t.state = Removed
			newlyRemoved = append(newlyRemoved, t)
		}
	}

	bt.tracked = joinTracks(active, refound)
	bt.lost = subTracks(joinTracks(subTracks(bt.lost, bt.tracked), newlyLost), bt.removed)
	bt.removed = joinTracks(bt.removed, newlyRemoved)
	bt.tracked, bt.lost = removeDuplicates(bt.tracked, bt.lost)

	var out []*Track

	for _, t := range bt.tracked {
		if t.activated {
			out = append(out, t)
		}
	}

	return out, nil
}

// rematch applies a matched detection to a track, continuing a tracked
// track or recovering a lost one
func (bt *ByteTrack) rematch(t, det *Track, active, refound *[]*Track) error {

	if t.state == Tracked {
		if err := t.update(bt.kalman, det, bt.frameID); err != nil {
			return err
		}

		*active = append(*active, t)
		return nil
	}

	if err := t.reactivate(bt.kalman, det, bt.frameID); err != nil {
		return err
	}

	*refound = append(*refound, t)
	return nil
}

// joinTracks returns a followed by the tracks of b whose id is not in a
func joinTracks(a, b []*Track) []*Track {

	seen := make(map[int]bool, len(a)+len(b))
	out := make([]*Track, 0, len(a)+len(b))

	for _, t := range a {
		seen[t.id] = true
		out = append(out, t)
	}

	for _, t := range b {
		if !seen[t.id] {
			seen[t.id] = true
			out = append(out, t)
		}
	}

	return out
}

// subTracks returns the tracks of a whose id is not in b, keeping order
func subTracks(a, b []*Track) []*Track {

	drop := make(map[int]bool, len(b))

	for _, t := range b {
		drop[t.id] = true
	}

	var out []*Track

	for _, t := range a {
		if !drop[t.id] {
			out = append(out, t)
		}
	}

	return out
}

// removeDuplicates drops the shorter lived track of any tracked and lost
// pair that overlap almost completely
func removeDuplicates(a, b []*Track) ([]*Track, []*Track) {

	dist := iouDistance(a, b)
	dropA := make([]bool, len(a))
	dropB := make([]bool, len(b))

	for i := range dist {
		for j := range dist[i] {

			if dist[i][j] >= 0.15 {
				continue
			}

			ageA := a[i].frameID - a[i].startFrameID
			ageB := b[j].frameID - b[j].startFrameID

			if ageA > ageB {
				dropB[j] = true
			} else {
				dropA[i] = true
			}
		}
	}

	var outA, outB []*Track

	for i, t := range a {
		if !dropA[i] {
			outA = append(outA, t)
		}
	}

	for j, t := range b {
		if !dropB[j] {
			outB = append(outB, t)
		}
	}

	return outA, outB
}

// iouDistance returns the 1 - IoU cost matrix between two sets of tracks
func iouDistance(a, b []*Track) [][]float32 {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	cost := make([][]float32, len(a))

	for i, ta := range a {
		cost[i] = make([]float32, len(b))

		for j, tb := range b {
			cost[i][j] = 1 - tb.rect.IoU(ta.rect)
		}
	}

	return cost
}
