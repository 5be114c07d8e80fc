package runs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, request_id, analysis_id, list_name, upload_id, list_id, status, remote_status,
       result_url, artifact_key, error, poll_attempts, created_at, updated_at
FROM workflow_runs`

// Create inserts a new run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO workflow_runs (
	id, request_id, analysis_id, list_name, upload_id, list_id, status, remote_status,
	result_url, artifact_key, error, poll_attempts, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.DB.ExecContext(ctx, query,
		run.ID,
		nullString(run.RequestID),
		run.AnalysisID,
		nullString(run.ListName),
		nullString(run.UploadID),
		nullString(run.ListID),
		run.Status,
		nullString(run.RemoteState),
		nullString(run.ResultURL),
		nullString(run.ArtifactKey),
		nullString(run.Error),
		run.Attempts,
		run.CreatedAt,
		run.CreatedAt,
	)
	return err
}

// Update writes every mutable field of the run.
func (r *PGRepo) Update(ctx context.Context, run Run) error {
	const query = `
UPDATE workflow_runs
SET list_name = $2, upload_id = $3, list_id = $4, status = $5, remote_status = $6,
    result_url = $7, artifact_key = $8, error = $9, poll_attempts = $10, updated_at = $11
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		run.ID,
		nullString(run.ListName),
		nullString(run.UploadID),
		nullString(run.ListID),
		run.Status,
		nullString(run.RemoteState),
		nullString(run.ResultURL),
		nullString(run.ArtifactKey),
		nullString(run.Error),
		run.Attempts,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+` WHERE id = $1 LIMIT 1`, runID)
	return scanRun(row)
}

// GetLatestByListID returns the newest run for a list and analysis.
func (r *PGRepo) GetLatestByListID(ctx context.Context, listID, analysisID string) (Run, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE list_id = $1 AND analysis_id = $2
ORDER BY created_at DESC
LIMIT 1`, listID, analysisID)
	return scanRun(row)
}

// List returns runs newest first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, selectColumns+`
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var requestID, listName, uploadID, listID, remoteStatus, resultURL, artifactKey, errMsg sql.NullString
	err := row.Scan(
		&run.ID,
		&requestID,
		&run.AnalysisID,
		&listName,
		&uploadID,
		&listID,
		&run.Status,
		&remoteStatus,
		&resultURL,
		&artifactKey,
		&errMsg,
		&run.Attempts,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	run.RequestID = requestID.String
	run.ListName = listName.String
	run.UploadID = uploadID.String
	run.ListID = listID.String
	run.RemoteState = remoteStatus.String
	run.ResultURL = resultURL.String
	run.ArtifactKey = artifactKey.String
	run.Error = errMsg.String
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repo = (*PGRepo)(nil)
