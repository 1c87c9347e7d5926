package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-objcount/count"
)

const (
	// CountsFile is the name of the counts record in the run directory
	CountsFile = "object_counts.json"
	// ChartFile is the name of the counts chart in the run directory
	ChartFile = "object_counts.png"
)

// Result is what a run hands back to its caller
type Result struct {
	Counts count.Counts
	// OutputPath is the annotated video or image
	OutputPath string
	CountsPath string
	// ChartPath is empty unless a chart was drawn
	ChartPath string
}

// Builder writes the report files of a run into RunDir
type Builder struct {
	RunDir string
	// Chart enables the counts bar chart
	Chart bool
}

// Build persists counts and returns the run result.  The output path is
// passed through unchanged
func (b Builder) Build(counts count.Counts, outputPath string) (*Result, error) {

	if err := os.MkdirAll(b.RunDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWrite, b.RunDir, err)
	}

	res := &Result{
		Counts:     counts.Clone(),
		OutputPath: outputPath,
		CountsPath: filepath.Join(b.RunDir, CountsFile),
	}

	if err := WriteCounts(res.CountsPath, counts); err != nil {
		return nil, err
	}

	if b.Chart && len(counts) > 0 {
		res.ChartPath = filepath.Join(b.RunDir, ChartFile)

		if err := Chart(counts, res.ChartPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}

	return res, nil
}
