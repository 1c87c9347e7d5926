package report

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart draws a bar chart of counts, one bar per class in name order, and
// saves it to path.  The image format follows the file extension
func Chart(counts map[string]int, path string) error {

	if len(counts) == 0 {
		return errors.New("no counts to chart")
	}

	names := make([]string, 0, len(counts))

	for name := range counts {
		names = append(names, name)
	}

	sort.Strings(names)

	values := make(plotter.Values, len(names))

	for i, name := range names {
		values[i] = float64(counts[name])
	}

	p := plot.New()
	p.Title.Text = "Objects counted"
	p.Y.Label.Text = "count"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(24))

	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}

	bars.Color = plotter.DefaultLineStyle.Color
	bars.LineStyle.Width = vg.Length(0)

	p.Add(bars)
	p.NominalX(names...)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}

	return nil
}
