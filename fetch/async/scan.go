package async

import "database/sql"

// archiveScanArgs holds the nullable columns of a fetch_job_archive row
// during scanning.
type archiveScanArgs struct {
	ReturnCode sql.NullInt64
	ErrorMsg   sql.NullString
	Message    sql.NullString
	CurrentCSV sql.NullString
	StartedAt  sql.NullTime
	EndedAt    sql.NullTime
}

func newArchiveScanArgs() *archiveScanArgs {
	return &archiveScanArgs{}
}

// archiveScanTargets returns scan destinations matching the order of
// archiveSelectColumns.
func archiveScanTargets(rec *ArchivedJob, args *archiveScanArgs) []interface{} {
	return []interface{}{
		&rec.ArchiveID,
		&rec.JobID,
		&rec.Kind,
		&rec.Profile,
		&rec.Status,
		&args.ReturnCode,
		&args.ErrorMsg,
		&rec.Progress,
		&args.Message,
		&args.CurrentCSV,
		&rec.CreatedAt,
		&args.StartedAt,
		&args.EndedAt,
		&rec.ArchivedAt,
	}
}

// applyArchiveScanArgs moves the nullable columns into the record.
func applyArchiveScanArgs(rec *ArchivedJob, args *archiveScanArgs) {
	if args.ReturnCode.Valid {
		code := int(args.ReturnCode.Int64)
		rec.ReturnCode = &code
	}
	if args.ErrorMsg.Valid {
		rec.Error = args.ErrorMsg.String
	}
	if args.Message.Valid {
		rec.Message = args.Message.String
	}
	if args.CurrentCSV.Valid {
		rec.CurrentCSV = args.CurrentCSV.String
	}
	if args.StartedAt.Valid {
		rec.StartedAt = &args.StartedAt.Time
	}
	if args.EndedAt.Valid {
		rec.EndedAt = &args.EndedAt.Time
	}
}

// archiveSelectColumns returns the standard column list for archive SELECTs.
func archiveSelectColumns() string {
	return `archive_id, job_id, kind, profile, status,
		return_code, error,
		progress, progress_message, current_csv,
		created_at, started_at, ended_at, archived_at`
}
