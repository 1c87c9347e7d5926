// Package source reads frames from a video file, a still image or a live
// camera/stream and turns each frame into tracked detection records plus an
// annotated copy of the frame.
package source

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a media handle cannot be opened
	ErrNotFound = errors.New("media source not found")
	// ErrSink is returned when an output file cannot be created or written
	ErrSink = errors.New("output sink unavailable")
)

// Kind is the media variant
type Kind int

const (
	Video Kind = iota
	Image
	Live
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Image:
		return "image"
	case Live:
		return "live"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a kind name back to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "video":
		return Video, nil
	case "image":
		return Image, nil
	case "live":
		return Live, nil
	}
	return 0, fmt.Errorf("unknown media kind %q", s)
}

// Media identifies the input to a run.  Path is used by Video and Image,
// Live uses URL when set and the camera Device index otherwise
type Media struct {
	Kind   Kind
	Path   string
	Device int
	URL    string
}

// Validate checks the fields required by the media kind are set
func (m Media) Validate() error {

	switch m.Kind {
	case Video, Image:
		if m.Path == "" {
			return fmt.Errorf("%s media requires a path", m.Kind)
		}

	case Live:
		if m.URL == "" && m.Device < 0 {
			return fmt.Errorf("live media requires a url or device index, got device %d", m.Device)
		}

	default:
		return fmt.Errorf("unknown media kind %d", int(m.Kind))
	}

	return nil
}

// String returns a description of the media for logs and run history
func (m Media) String() string {

	switch m.Kind {
	case Live:
		if m.URL != "" {
			return m.URL
		}
		return fmt.Sprintf("device:%d", m.Device)
	}

	return m.Path
}
