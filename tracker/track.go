package tracker

// State is the lifecycle state of a track
type State int

const (
	// New is a track created from a detection but not yet confirmed
	New State = iota
	// Tracked is a track matched in the current frame
	Tracked
	// Lost is a track that went unmatched but may still be recovered
	Lost
	// Removed is a track that has been lost for too long
	Removed
)

// Object is a detection handed to the tracker
type Object struct {
	Rect  Rect
	Label int
	Score float32
	// ID is unique per detection and is copied onto the track it is
	// matched to so callers can map tracks back to detections
	ID int64
}

// Track is a single tracked object
type Track struct {
	kalman       kalmanState
	rect         Rect
	state        State
	activated    bool
	score        float32
	id           int
	frameID      int
	startFrameID int
	detectionID  int64
	label        int
}

func newTrack(obj Object) *Track {
	return &Track{
		rect:        obj.Rect,
		state:       New,
		score:       obj.Score,
		detectionID: obj.ID,
		label:       obj.Label,
	}
}

// ID returns the track id, unique within one tracker run
func (t *Track) ID() int {
	return t.id
}

// Label returns the class label of the most recent detection matched to the
// track.  Labels may change from frame to frame
func (t *Track) Label() int {
	return t.label
}

// Rect returns the bounding box of the track
func (t *Track) Rect() Rect {
	return t.rect
}

// Score returns the confidence of the most recent matched detection
func (t *Track) Score() float32 {
	return t.score
}

// DetectionID returns the ID of the most recent matched detection
func (t *Track) DetectionID() int64 {
	return t.detectionID
}

// State returns the lifecycle state
func (t *Track) State() State {
	return t.state
}

// Activated reports whether the track has been confirmed
func (t *Track) Activated() bool {
	return t.activated
}

// FrameID returns the frame the track was last matched on
func (t *Track) FrameID() int {
	return t.frameID
}

// activate starts a new track
func (t *Track) activate(kf *kalmanFilter, frameID, id int) {

	t.kalman = kf.initiate(t.rect.xyah())
	t.syncRect()

	t.state = Tracked

	// tracks born on the first frame are trusted immediately, all others
	// need a second match
	if frameID == 1 {
		t.activated = true
	}

	t.id = id
	t.frameID = frameID
	t.startFrameID = frameID
}

// reactivate recovers a lost track with a new detection
func (t *Track) reactivate(kf *kalmanFilter, det *Track, frameID int) error {

	if err := kf.correct(&t.kalman, det.rect.xyah()); err != nil {
		return err
	}

	t.syncRect()
	t.state = Tracked
	t.activated = true
	t.frameID = frameID
	t.adopt(det)

	return nil
}

// update continues a tracked track with a new detection
func (t *Track) update(kf *kalmanFilter, det *Track, frameID int) error {

	if err := kf.correct(&t.kalman, det.rect.xyah()); err != nil {
		return err
	}

	t.syncRect()
	t.state = Tracked
	t.activated = true
	t.frameID = frameID
	t.adopt(det)

	return nil
}

// adopt copies the per detection attributes of a matched detection
func (t *Track) adopt(det *Track) {
	t.score = det.score
	t.detectionID = det.detectionID
	t.label = det.label
}

func (t *Track) predict(kf *kalmanFilter) {

	if t.state != Tracked {
		t.kalman.mean.SetVec(7, 0)
	}

	kf.predict(&t.kalman)
}

// syncRect sets the box from the filter state
func (t *Track) syncRect() {
	m := t.kalman.mean
	t.rect = rectFromXyah(m.AtVec(0), m.AtVec(1), m.AtVec(2), m.AtVec(3))
}
