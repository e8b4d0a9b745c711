package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"aerialplan/internal/geo"
	"aerialplan/internal/pattern"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps SQLite-backed persistence for missions, plan jobs and plan
// results.
type Store struct {
	DB *sql.DB
}

// New opens the plan history database at path, creating tables as needed.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY from
	// concurrent workers.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS missions (
            id TEXT PRIMARY KEY,
            latitude REAL NOT NULL,
            longitude REAL NOT NULL,
            altitude_msl REAL NOT NULL,
            generation INTEGER NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS plan_jobs (
            id TEXT PRIMARY KEY,
            mission_id TEXT NOT NULL,
            name TEXT,
            pattern TEXT NOT NULL,
            source TEXT,
            status TEXT NOT NULL,
            request_json TEXT,
            generation INTEGER,
            stale BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS plan_results (
            job_id TEXT PRIMARY KEY,
            waypoint_count INTEGER,
            waypoints BLOB,
            stats_json TEXT,
            warnings_json TEXT,
            optics_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_plan_jobs_mission ON plan_jobs(mission_id, generation);`,
		`CREATE INDEX IF NOT EXISTS idx_plan_jobs_created ON plan_jobs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// JobRecord captures persisted plan job info.
type JobRecord struct {
	ID          string
	MissionID   string
	Name        string
	Pattern     string
	Source      string
	Status      string
	RequestJSON string
	Generation  uint64
	Stale       bool
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ResultRecord is a stored plan outcome. The JSON columns are kept as
// raw messages so storage does not depend on the planner's types.
type ResultRecord struct {
	JobID     string
	Waypoints []pattern.Waypoint
	Stats     json.RawMessage
	Warnings  json.RawMessage
	Optics    json.RawMessage
	CreatedAt time.Time
}

// SaveOrigin upserts the origin of a mission.
func (s *Store) SaveOrigin(missionID string, ref geo.Reference) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO missions (id, latitude, longitude, altitude_msl, generation, updated_at)
        VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(id) DO UPDATE SET latitude=excluded.latitude, longitude=excluded.longitude,
            altitude_msl=excluded.altitude_msl, generation=excluded.generation, updated_at=CURRENT_TIMESTAMP;`,
		missionID, ref.Origin.Latitude, ref.Origin.Longitude, ref.Origin.AltitudeMSL, ref.Generation)
	if err != nil {
		return err
	}
	return s.MarkStale(missionID, ref.Generation)
}

// LoadOrigin returns the stored reference of a mission.
func (s *Store) LoadOrigin(missionID string) (geo.Reference, error) {
	if s == nil {
		return geo.Reference{}, errors.New("store not initialized")
	}
	var ref geo.Reference
	err := s.DB.QueryRow(`SELECT latitude, longitude, altitude_msl, generation FROM missions WHERE id=?;`, missionID).
		Scan(&ref.Origin.Latitude, &ref.Origin.Longitude, &ref.Origin.AltitudeMSL, &ref.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Reference{}, fmt.Errorf("mission %s: %w", missionID, ErrNotFound)
	}
	return ref, err
}

// MarkStale flags every plan of a mission made under an older generation.
func (s *Store) MarkStale(missionID string, current uint64) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE plan_jobs SET stale=TRUE WHERE mission_id=? AND generation IS NOT NULL AND generation < ?;`, missionID, current)
	return err
}

// RecordJobQueued stores a job as it enters the queue.
func (s *Store) RecordJobQueued(rec JobRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO plan_jobs (id, mission_id, name, pattern, source, status, request_json) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.MissionID, rec.Name, rec.Pattern, rec.Source, rec.Status, rec.RequestJSON)
	return err
}

// RecordJobStart flips a queued job to running.
func (s *Store) RecordJobStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE plan_jobs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordJobFailed finalizes a job that produced no plan.
func (s *Store) RecordJobFailed(id string, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE plan_jobs SET status='failed', completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, errMsg, id)
	return err
}

// RecordJobResult finalizes a job with its plan.
func (s *Store) RecordJobResult(id string, generation uint64, res ResultRecord) error {
	if s == nil {
		return nil
	}
	blob, err := EncodeWaypoints(res.Waypoints)
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A re-origin may have landed while the job ran.
	if _, err := tx.Exec(`UPDATE plan_jobs SET status='completed', completed_at=CURRENT_TIMESTAMP, generation=?, error_message=NULL,
            stale = (? < COALESCE((SELECT generation FROM missions WHERE missions.id = plan_jobs.mission_id), 0))
        WHERE id=?;`, generation, generation, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO plan_results (job_id, waypoint_count, waypoints, stats_json, warnings_json, optics_json) VALUES (?, ?, ?, ?, ?, ?);`,
		id, len(res.Waypoints), blob, nullableJSON(res.Stats), nullableJSON(res.Warnings), nullableJSON(res.Optics)); err != nil {
		return err
	}
	return tx.Commit()
}

func nullableJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}

const jobColumns = `id, mission_id, name, pattern, source, status, request_json, generation, stale, created_at, started_at, completed_at, error_message`

func scanJob(sc interface{ Scan(...any) error }) (JobRecord, error) {
	var rec JobRecord
	var name, source, request, errorMsg sql.NullString
	var generation sql.NullInt64
	var started, completed sql.NullTime
	if err := sc.Scan(&rec.ID, &rec.MissionID, &name, &rec.Pattern, &source, &rec.Status, &request, &generation, &rec.Stale, &rec.CreatedAt, &started, &completed, &errorMsg); err != nil {
		return JobRecord{}, err
	}
	rec.Name = name.String
	rec.Source = source.String
	rec.RequestJSON = request.String
	rec.Error = errorMsg.String
	if generation.Valid {
		rec.Generation = uint64(generation.Int64)
	}
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	return rec, nil
}

// RecentJobs lists plan jobs newest first.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT `+jobColumns+` FROM plan_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Job fetches one job by id.
func (s *Store) Job(id string) (JobRecord, error) {
	if s == nil {
		return JobRecord{}, errors.New("store not initialized")
	}
	rec, err := scanJob(s.DB.QueryRow(`SELECT `+jobColumns+` FROM plan_jobs WHERE id=?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// JobResult fetches the stored plan of a completed job.
func (s *Store) JobResult(id string) (ResultRecord, error) {
	if s == nil {
		return ResultRecord{}, errors.New("store not initialized")
	}
	var (
		rec                     ResultRecord
		blob                    []byte
		stats, warnings, optics sql.NullString
	)
	err := s.DB.QueryRow(`SELECT job_id, waypoints, stats_json, warnings_json, optics_json, created_at FROM plan_results WHERE job_id=?;`, id).
		Scan(&rec.JobID, &blob, &stats, &warnings, &optics, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ResultRecord{}, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ResultRecord{}, err
	}
	if rec.Waypoints, err = DecodeWaypoints(blob); err != nil {
		return ResultRecord{}, err
	}
	rec.Stats = rawOrNil(stats)
	rec.Warnings = rawOrNil(warnings)
	rec.Optics = rawOrNil(optics)
	return rec, nil
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}
