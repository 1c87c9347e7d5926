package objcount

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/swdee/go-objcount/report"
	"github.com/swdee/go-objcount/source"
)

// Comparison is the outcome of one model of a comparison
type Comparison struct {
	Model  string
	RunDir string
	Result *report.Result
	Err    error
}

// Compare runs the same media through each model concurrently.  Every model
// gets its own detector, tracker, aggregator and run directory below the
// configured run directory.  The returned slice follows the order of models,
// the error joins the failures of all runs.  An image that can not be read
// fails the comparison before any model runs
func (r *Runner) Compare(ctx context.Context, m source.Media, models []string) ([]Comparison, error) {

	if len(models) == 0 {
		return nil, errors.New("no models to compare")
	}

	open := r.Open

	// a still image is decoded once and replayed to every model
	if m.Kind == source.Image {

		buf, err := r.buffer(m)

		if err != nil {
			return nil, err
		}

		defer buf.Release()

		open = func(source.Media, source.Options) (source.Reader, error) {
			return buf.Replay(), nil
		}
	}

	dirs := runDirs(r.Config.GetRunDir(), models)
	out := make([]Comparison, len(models))

	var wg sync.WaitGroup

	for i, model := range models {

		cfg := *r.Config
		cfg.Model = &model
		cfg.RunDir = &dirs[i]

		sub := *r
		sub.Config = &cfg
		sub.Model = model
		sub.Open = open
		// the stream and progress callbacks serve a single run
		sub.Stream = nil
		sub.Progress = nil

		out[i] = Comparison{Model: model, RunDir: dirs[i]}

		wg.Add(1)

		go func(c *Comparison) {
			defer wg.Done()

			r.Log.Infof("Comparing model %v in %v", c.Model, c.RunDir)
			c.Result, c.Err = sub.Process(ctx, m)
		}(&out[i])
	}

	wg.Wait()

	var errs []error

	for _, c := range out {
		if c.Err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", c.Model, c.Err))
		}
	}

	return out, errors.Join(errs...)
}

// buffer reads every frame of m into memory
func (r *Runner) buffer(m source.Media) (*source.BufferReader, error) {

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	rd, err := r.Open(m, r.Config.SourceOptions())

	if err != nil {
		return nil, classify(err)
	}

	buf, err := source.Buffer(rd)

	if err != nil {
		return nil, classify(err)
	}

	return buf, nil
}

// runDirs names one run directory per model after the model file, numbering
// repeated names
func runDirs(base string, models []string) []string {

	seen := make(map[string]int, len(models))
	dirs := make([]string, len(models))

	for i, model := range models {

		name := strings.TrimSuffix(filepath.Base(model), filepath.Ext(model))

		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "model"
		}

		seen[name]++

		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}

		dirs[i] = filepath.Join(base, name)
	}

	return dirs
}
