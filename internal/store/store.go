// Package store keeps a registry of completed runs in SQLite, so repeated
// batches can be compared and reprocessed without re-reading every chain
// directory.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fagan2888/dyPolyChord/internal/dynamic"
	"github.com/fagan2888/dyPolyChord/internal/engine"
	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// RunRecord is one registered run: the settings it was produced with, the
// phase counters, and (once processed) the merged run's summary numbers.
type RunRecord struct {
	ID        string
	CreatedAt time.Time
	BaseDir   string
	FileRoot  string

	Goal     float64
	NInit    int
	InitStep int

	Resumed     bool
	ResumeNDead int
	ResumeNLike int64
	InitNLike   int64
	DynNLike    int64
	PeakOnset   int
	Schedule    engine.Schedule

	// Filled in after processing; nil until then.
	Samples *int
	Threads *int
	NLike   *int64
	LogZ    *float64
}

// FromResult builds the registry record for a finished pipeline result.
func FromResult(res *dynamic.Result) *RunRecord {
	return &RunRecord{
		ID:          res.ID,
		CreatedAt:   res.CreatedAt,
		BaseDir:     res.BaseDir,
		FileRoot:    res.FileRoot,
		Goal:        res.Goal,
		NInit:       res.NInit,
		InitStep:    res.InitStep,
		Resumed:     res.Resumed,
		ResumeNDead: res.ResumeNDead,
		ResumeNLike: res.ResumeNLike,
		InitNLike:   res.InitNLike,
		DynNLike:    res.DynNLike,
		PeakOnset:   res.PeakOnset,
		Schedule:    res.Schedule,
	}
}

// AttachMerged fills in the summary fields from the processed run.
func (r *RunRecord) AttachMerged(run *nsrun.Run) error {
	samples := run.Len()
	threads := run.NumThreads()
	nlike := run.Info.NLike
	r.Samples = &samples
	r.Threads = &threads
	r.NLike = &nlike
	logz, err := run.LogZ()
	if err != nil {
		return fmt.Errorf("failed to summarise run %s: %w", r.ID, err)
	}
	r.LogZ = &logz
	return nil
}

// Store manages the run registry database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens a run registry at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		base_dir TEXT NOT NULL,
		file_root TEXT NOT NULL,
		goal REAL NOT NULL,
		ninit INTEGER NOT NULL,
		init_step INTEGER NOT NULL,
		resumed INTEGER NOT NULL,
		resume_ndead INTEGER NOT NULL,
		resume_nlike INTEGER NOT NULL,
		init_nlike INTEGER NOT NULL,
		dyn_nlike INTEGER NOT NULL,
		peak_onset INTEGER NOT NULL,
		schedule_json TEXT,
		samples INTEGER,
		threads INTEGER,
		nlike INTEGER,
		logz REAL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_file_root ON runs(file_root);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or updates a run record. Re-saving after processing
// fills in the summary columns.
func (s *Store) SaveRun(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	scheduleJSON, err := json.Marshal(rec.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, created_at, base_dir, file_root, goal, ninit,
			init_step, resumed, resume_ndead, resume_nlike, init_nlike,
			dyn_nlike, peak_onset, schedule_json, samples, threads, nlike, logz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			samples = excluded.samples,
			threads = excluded.threads,
			nlike = excluded.nlike,
			logz = excluded.logz
	`, rec.ID, rec.CreatedAt, rec.BaseDir, rec.FileRoot, rec.Goal, rec.NInit,
		rec.InitStep, rec.Resumed, rec.ResumeNDead, rec.ResumeNLike,
		rec.InitNLike, rec.DynNLike, rec.PeakOnset, string(scheduleJSON),
		rec.Samples, rec.Threads, rec.NLike, rec.LogZ)

	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves a run record by id. Returns nil when no run with that
// id is registered.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, created_at, base_dir, file_root, goal, ninit, init_step,
			resumed, resume_ndead, resume_nlike, init_nlike, dyn_nlike,
			peak_onset, schedule_json, samples, threads, nlike, logz
		FROM runs WHERE id = ?
	`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns retrieves the most recent run records, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, created_at, base_dir, file_root, goal, ninit, init_step,
			resumed, resume_ndead, resume_nlike, init_nlike, dyn_nlike,
			peak_onset, schedule_json, samples, threads, nlike, logz
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// DeleteRun removes a run record.
func (s *Store) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var scheduleJSON sql.NullString
	var samples, threads sql.NullInt64
	var nlike sql.NullInt64
	var logz sql.NullFloat64

	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.BaseDir, &rec.FileRoot,
		&rec.Goal, &rec.NInit, &rec.InitStep, &rec.Resumed, &rec.ResumeNDead,
		&rec.ResumeNLike, &rec.InitNLike, &rec.DynNLike, &rec.PeakOnset,
		&scheduleJSON, &samples, &threads, &nlike, &logz)
	if err != nil {
		return nil, err
	}

	if scheduleJSON.Valid && scheduleJSON.String != "null" {
		if err := json.Unmarshal([]byte(scheduleJSON.String), &rec.Schedule); err != nil {
			return nil, fmt.Errorf("corrupt schedule for run %s: %w", rec.ID, err)
		}
	}
	if samples.Valid {
		v := int(samples.Int64)
		rec.Samples = &v
	}
	if threads.Valid {
		v := int(threads.Int64)
		rec.Threads = &v
	}
	if nlike.Valid {
		v := nlike.Int64
		rec.NLike = &v
	}
	if logz.Valid {
		v := logz.Float64
		rec.LogZ = &v
	}
	return &rec, nil
}
