package objcount

import (
	"errors"
	"fmt"

	"github.com/swdee/go-objcount/detect"
	"github.com/swdee/go-objcount/report"
	"github.com/swdee/go-objcount/source"
)

var (
	// ErrSourceUnavailable is returned when the media can not be opened
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSinkUnavailable is returned when an output or the count record can
	// not be written
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrModelLoad is returned when the detector model can not be loaded
	ErrModelLoad = detect.ErrModelLoad
)

// classify wraps errors from the packages below with the matching run level
// sentinel
func classify(err error) error {

	switch {
	case err == nil:
		return nil
	case errors.Is(err, source.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	case errors.Is(err, source.ErrSink), errors.Is(err, report.ErrWrite):
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}

	return err
}
