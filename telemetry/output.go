package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/pthm-cable/racer/config"
	"github.com/pthm-cable/racer/neural"
)

// CSV and artifact file names inside a run directory.
const (
	FileGenerations = "generations.csv"
	FileCMAES       = "cmaes.csv"
	FileEpisodes    = "episodes.csv"
	FileRobustness  = "robustness.csv"
	FileTrajectory  = "trajectory.csv"
	FilePerf        = "perf.csv"
	FileBookmarks   = "bookmarks.csv"
	FileConfig      = "config.yaml"
	FileHallOfFame  = "hall_of_fame.json"

	CheckpointDir = "checkpoints"
)

// csvFile appends gocsv records to a file created on first write. The header
// row is written once.
type csvFile struct {
	path          string
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if c.f == nil {
		f, err := os.Create(c.path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Base(c.path), err)
		}
		c.f = f
	}

	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(c.path), err)
		}
		c.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, c.f); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(c.path), err)
	}
	return nil
}

func (c *csvFile) close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// OutputManager handles structured run output: CSV logs, config snapshot,
// checkpoints and plots, all under one run directory.
type OutputManager struct {
	dir   string
	runID string
	files map[string]*csvFile
}

// NewOutputManager creates <root>/<run-id> and returns a manager writing
// into it. Returns nil if root is empty (output disabled); every method is
// safe on a nil manager.
func NewOutputManager(root string) (*OutputManager, error) {
	if root == "" {
		return nil, nil
	}

	runID := uuid.NewString()
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(dir, CheckpointDir), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &OutputManager{
		dir:   dir,
		runID: runID,
		files: make(map[string]*csvFile),
	}, nil
}

func (om *OutputManager) csv(name string) *csvFile {
	f, ok := om.files[name]
	if !ok {
		f = &csvFile{path: filepath.Join(om.dir, name)}
		om.files[name] = f
	}
	return f
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, FileConfig))
}

// WriteGeneration appends a row to generations.csv.
func (om *OutputManager) WriteGeneration(stats GenerationStats) error {
	if om == nil {
		return nil
	}
	return om.csv(FileGenerations).write([]GenerationStats{stats})
}

// WriteCMAESEval appends a row to cmaes.csv.
func (om *OutputManager) WriteCMAESEval(row CMAESEvalRow) error {
	if om == nil {
		return nil
	}
	return om.csv(FileCMAES).write([]CMAESEvalRow{row})
}

// WritePerf appends a performance row to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, generation int) error {
	if om == nil {
		return nil
	}
	return om.csv(FilePerf).write([]PerfStatsCSV{stats.ToCSV(generation)})
}

// WriteBookmark appends a bookmark to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.csv(FileBookmarks).write([]Bookmark{b})
}

// WriteEpisodes appends per-episode rows to episodes.csv.
func (om *OutputManager) WriteEpisodes(rows []EpisodeStats) error {
	if om == nil || len(rows) == 0 {
		return nil
	}
	return om.csv(FileEpisodes).write(rows)
}

// WriteSweep appends an experiment summary to robustness.csv.
func (om *OutputManager) WriteSweep(stats SweepStats) error {
	if om == nil {
		return nil
	}
	return om.csv(FileRobustness).write([]SweepStats{stats})
}

// WriteTrajectory writes a recorded episode to its own CSV file. name
// defaults to trajectory.csv.
func (om *OutputManager) WriteTrajectory(name string, rows []TrajectoryRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}
	if name == "" {
		name = FileTrajectory
	}
	f, err := os.Create(filepath.Join(om.dir, name))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// WriteCheckpoint saves a policy as checkpoints/<name>.json and returns the
// path written.
func (om *OutputManager) WriteCheckpoint(name string, p *neural.Policy) (string, error) {
	if om == nil {
		return "", nil
	}
	path := filepath.Join(om.dir, CheckpointDir, name+".json")
	if err := neural.SaveFile(path, p); err != nil {
		return "", err
	}
	return path, nil
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame(hof *HallOfFame) error {
	if om == nil || hof == nil {
		return nil
	}

	data, err := hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, FileHallOfFame), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", FileHallOfFame, err)
	}
	return nil
}

// Path returns name joined onto the run directory, e.g. for plots.
func (om *OutputManager) Path(name string) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, name)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// RunID returns the generated run identifier.
func (om *OutputManager) RunID() string {
	if om == nil {
		return ""
	}
	return om.runID
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range om.files {
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
