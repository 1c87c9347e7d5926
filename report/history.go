package report

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/swdee/go-objcount/count"
	_ "modernc.org/sqlite"
)

// schema.sql creates the runs table, one row per completed run
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned by Get for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// Run is one entry of the run history
type Run struct {
	ID         string
	Kind       string
	Media      string
	Model      string
	Classes    []string
	Started    time.Time
	Finished   time.Time
	Frames     int
	Skipped    int
	OutputPath string
	CountsPath string
	Counts     count.Counts
}

// Duration is the wall time of the run
func (r *Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// History stores completed runs in a sqlite database
type History struct {
	db  *sql.DB
	log logs.Log
}

// OpenHistory opens or creates the history database at path
func OpenHistory(log logs.Log, path string) (*History, error) {

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	log.Debugf("Opened run history %v", path)

	return &History{db: db, log: log}, nil
}

// Record saves a run, assigning it a new id when ID is empty
func (h *History) Record(run *Run) error {

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	classes, err := json.Marshal(run.Classes)

	if err != nil {
		return fmt.Errorf("encode classes: %w", err)
	}

	counts := run.Counts

	if counts == nil {
		counts = count.Counts{}
	}

	countsJSON, err := json.Marshal(counts)

	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	_, err = h.db.Exec(`
		INSERT INTO runs (run_id, kind, media, model, classes, started_at,
			finished_at, frames, skipped, output_path, counts_path, counts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Media, run.Model, string(classes),
		run.Started.UnixNano(), run.Finished.UnixNano(), run.Frames,
		run.Skipped, run.OutputPath, run.CountsPath, string(countsJSON))

	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	h.log.Infof("Recorded run %v: %v objects from %v", run.ID, counts.Total(), run.Media)

	return nil
}

const selectRuns = `
	SELECT run_id, kind, media, model, classes, started_at, finished_at,
		frames, skipped, output_path, counts_path, counts
	FROM runs`

// Get returns the run with the given id
func (h *History) Get(id string) (*Run, error) {

	row := h.db.QueryRow(selectRuns+" WHERE run_id = ?", id)
	run, err := scanRun(row)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return run, err
}

// List returns up to limit runs, most recently started first.  A limit of
// zero or less returns all runs
func (h *History) List(limit int) ([]*Run, error) {

	query := selectRuns + " ORDER BY started_at DESC, run_id"
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.Query(query, args...)

	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	defer rows.Close()

	var runs []*Run

	for rows.Next() {
		run, err := scanRun(rows)

		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {

	var run Run
	var classes, counts string
	var started, finished int64

	err := s.Scan(&run.ID, &run.Kind, &run.Media, &run.Model, &classes,
		&started, &finished, &run.Frames, &run.Skipped, &run.OutputPath,
		&run.CountsPath, &counts)

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(classes), &run.Classes); err != nil {
		return nil, fmt.Errorf("decode classes of run %s: %w", run.ID, err)
	}

	run.Counts = count.Counts{}

	if err := json.Unmarshal([]byte(counts), &run.Counts); err != nil {
		return nil, fmt.Errorf("decode counts of run %s: %w", run.ID, err)
	}

	run.Started = time.Unix(0, started)
	run.Finished = time.Unix(0, finished)

	return &run, nil
}
