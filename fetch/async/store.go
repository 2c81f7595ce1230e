package async

import (
	"database/sql"
	"strings"
	"time"

	"github.com/fitbaus/fitbaus/errors"
)

// ArchivedJob is a terminal job record persisted to the archive. Registry
// ids restart from 1 on every boot, so rows carry their own autoincrement
// key and JobID is only unique within one server run.
type ArchivedJob struct {
	ArchiveID  int64      `json:"archive_id"`
	JobID      string     `json:"job_id"`
	Kind       JobKind    `json:"kind"`
	Profile    string     `json:"profile"`
	Status     JobStatus  `json:"status"`
	ReturnCode *int       `json:"return_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	Progress   float64    `json:"progress"`
	Message    string     `json:"message,omitempty"`
	CurrentCSV string     `json:"current_csv,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ArchivedAt time.Time  `json:"archived_at"`
}

// Store handles persistence of terminal job records. Live job state stays
// in the in-memory registries; the archive is history.
type Store struct {
	db *sql.DB
}

// NewStore creates an archive store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ArchiveJob inserts one terminal job record.
func (s *Store) ArchiveJob(job *Job) error {
	query := `
		INSERT INTO fetch_job_archive (
			job_id, kind, profile, status,
			return_code, error,
			progress, progress_message, current_csv,
			created_at, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var returnCode sql.NullInt64
	if job.ReturnCode != nil {
		returnCode = sql.NullInt64{Int64: int64(*job.ReturnCode), Valid: true}
	}
	var startedAt, endedAt sql.NullTime
	if job.StartTime != nil {
		startedAt = sql.NullTime{Time: *job.StartTime, Valid: true}
	}
	if job.EndTime != nil {
		endedAt = sql.NullTime{Time: *job.EndTime, Valid: true}
	}

	_, err := s.db.Exec(query,
		job.ID,
		string(job.Kind),
		job.Profile,
		string(job.Status),
		returnCode,
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		job.Progress,
		sql.NullString{String: job.Message, Valid: job.Message != ""},
		sql.NullString{String: job.CurrentCSV, Valid: job.CurrentCSV != ""},
		job.CreatedTime,
		startedAt,
		endedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to archive job %s", job.ID)
	}
	return nil
}

// GetArchivedJob retrieves one record by its archive id.
func (s *Store) GetArchivedJob(archiveID int64) (*ArchivedJob, error) {
	query := `SELECT ` + archiveSelectColumns() + ` FROM fetch_job_archive WHERE archive_id = ?`

	var rec ArchivedJob
	args := newArchiveScanArgs()

	err := s.db.QueryRow(query, archiveID).Scan(archiveScanTargets(&rec, args)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("archived job %d not found", archiveID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get archived job")
	}

	applyArchiveScanArgs(&rec, args)
	return &rec, nil
}

// ListArchive returns archived records newest first. Kind and profile
// filter when non-empty; limit caps the page.
func (s *Store) ListArchive(kind JobKind, profileName string, limit int) ([]*ArchivedJob, error) {
	query := `SELECT ` + archiveSelectColumns() + ` FROM fetch_job_archive`

	var conds []string
	var args []interface{}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}
	if profileName != "" {
		conds = append(conds, "profile = ?")
		args = append(args, profileName)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY archive_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list archived jobs")
	}
	defer rows.Close()

	return scanArchivedJobs(rows)
}

// CountByStatus tallies archived records per terminal status.
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM fetch_job_archive GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count archived jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan status count")
		}
		counts[JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating status counts")
	}
	return counts, nil
}

// PurgeOlderThan deletes records archived before the cutoff. Returns how
// many rows went away.
func (s *Store) PurgeOlderThan(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.Exec(`DELETE FROM fetch_job_archive WHERE archived_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge archive")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// scanArchivedJobs scans a result set of archive rows.
func scanArchivedJobs(rows *sql.Rows) ([]*ArchivedJob, error) {
	var recs []*ArchivedJob
	for rows.Next() {
		var rec ArchivedJob
		args := newArchiveScanArgs()
		if err := rows.Scan(archiveScanTargets(&rec, args)...); err != nil {
			return nil, errors.Wrap(err, "failed to scan archived job")
		}
		applyArchiveScanArgs(&rec, args)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating archived jobs")
	}
	return recs, nil
}
