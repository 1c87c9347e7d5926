package detect

import (
	"sync"

	"gocv.io/x/gocv"
)

// Replay is a Detector returning prerecorded results, one slice per call in
// order.  Once the recording is exhausted it returns no detections.  It lets
// the counting pipeline run without a model
type Replay struct {
	frames [][]Result
	fail   map[int]error
	next   int
	closed bool
	sync.Mutex
}

// NewReplay returns a Replay over the per frame results
func NewReplay(frames [][]Result) *Replay {
	return &Replay{
		frames: frames,
		fail:   make(map[int]error),
	}
}

// FailOn makes the call for frame n, counted from 0, return err
func (r *Replay) FailOn(n int, err error) *Replay {
	r.Lock()
	defer r.Unlock()

	r.fail[n] = err
	return r
}

// Detect returns the next recorded frame of results
func (r *Replay) Detect(img gocv.Mat) ([]Result, error) {
	r.Lock()
	defer r.Unlock()

	n := r.next
	r.next++

	if err, ok := r.fail[n]; ok {
		return nil, err
	}

	if n >= len(r.frames) {
		return nil, nil
	}

	return append([]Result(nil), r.frames[n]...), nil
}

// Calls returns the number of Detect calls made
func (r *Replay) Calls() int {
	r.Lock()
	defer r.Unlock()

	return r.next
}

// Closed reports whether Close has been called
func (r *Replay) Closed() bool {
	r.Lock()
	defer r.Unlock()

	return r.closed
}

func (r *Replay) Close() error {
	r.Lock()
	defer r.Unlock()

	r.closed = true
	return nil
}
