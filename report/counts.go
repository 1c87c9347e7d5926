// Package report persists the outcome of a counting run: the per class
// counts record, a chart of the counts and the history of past runs.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-objcount/count"
)

// ErrWrite is returned when a report file can not be written
var ErrWrite = errors.New("report write failed")

// WriteCounts writes counts to path as a JSON object with sorted keys and a
// four space indent.  The record is written to a temporary file and renamed
// into place so a partial record is never visible
func WriteCounts(path string, counts count.Counts) error {

	if counts == nil {
		counts = count.Counts{}
	}

	data, err := json.MarshalIndent(counts, "", "    ")

	if err != nil {
		return fmt.Errorf("%w: encode counts: %v", ErrWrite, err)
	}

	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".counts-*.json")

	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	// removing a renamed file fails harmlessly
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrWrite, tmp.Name(), err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrWrite, tmp.Name(), err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	return nil
}

// ReadCounts loads a record written by WriteCounts
func ReadCounts(path string) (count.Counts, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, err
	}

	counts := count.Counts{}

	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return counts, nil
}
