// infrastructure/postgres_job_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitovidale/clip-processor-service/domain"
)

const jobColumns = `id, video_id, instructions, explicit_ranges, with_subtitles, status, ai_response, warnings,
	error_message, started_at, completed_at, created_at, updated_at`

type PostgresJobRepository struct {
	DB *sql.DB
}

func NewPostgresJobRepository(db *sql.DB) *PostgresJobRepository {
	return &PostgresJobRepository{DB: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanJob(row rowScanner) (*domain.ProcessingJob, error) {
	var j domain.ProcessingJob
	var ranges, warnings []byte
	var aiResponse, errorMessage sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.VideoID, &j.Instructions, &ranges, &j.WithSubtitles, &j.Status, &aiResponse, &warnings,
		&errorMessage, &started, &completed, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ranges, &j.ExplicitRanges); err != nil {
		return nil, domain.NewIntegrityError("job.decode", "ranges of %s: %v", j.ID, err)
	}
	if err := json.Unmarshal(warnings, &j.Warnings); err != nil {
		return nil, domain.NewIntegrityError("job.decode", "warnings of %s: %v", j.ID, err)
	}
	if len(j.ExplicitRanges) == 0 {
		j.ExplicitRanges = nil
	}
	if len(j.Warnings) == 0 {
		j.Warnings = nil
	}
	j.AIResponse = stringPtr(aiResponse)
	j.ErrorMessage = stringPtr(errorMessage)
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	return &j, nil
}

func encodeList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func (r *PostgresJobRepository) Create(ctx context.Context, j *domain.ProcessingJob) error {
	ranges, err := encodeList(j.ExplicitRanges)
	if err != nil {
		return fmt.Errorf("encode ranges: %w", err)
	}
	warnings, err := encodeList(j.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO processing_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		j.ID, j.VideoID, j.Instructions, ranges, j.WithSubtitles, j.Status, nullString(j.AIResponse), warnings,
		nullString(j.ErrorMessage), nullTime(j.StartedAt), nullTime(j.CompletedAt), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepository) FindByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	j, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return j, nil
}

func (r *PostgresJobRepository) ListByVideoID(ctx context.Context, videoID string) ([]domain.ProcessingJob, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE video_id = $1 ORDER BY created_at`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning job row: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over jobs: %w", err)
	}
	return jobs, nil
}

func (r *PostgresJobRepository) NextPending(ctx context.Context, videoID string) (*domain.ProcessingJob, error) {
	j, err := scanJob(r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE video_id = $1 AND status = 'pending' ORDER BY created_at LIMIT 1`, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}
	return j, nil
}

func (r *PostgresJobRepository) Update(ctx context.Context, j *domain.ProcessingJob) error {
	warnings, err := encodeList(j.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE processing_jobs SET status = $1, ai_response = $2, warnings = $3, error_message = $4,
			started_at = $5, completed_at = $6, updated_at = $7 WHERE id = $8`,
		j.Status, nullString(j.AIResponse), warnings, nullString(j.ErrorMessage),
		nullTime(j.StartedAt), nullTime(j.CompletedAt), j.UpdatedAt, j.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return expectOneRow(res, "job", j.ID)
}

func (r *PostgresJobRepository) FailActive(ctx context.Context, videoID, reason string) (int, error) {
	return failActiveJobs(ctx, r.DB, videoID, reason)
}

func failActiveJobs(ctx context.Context, db execer, videoID, reason string) (int, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE processing_jobs SET status = 'failed', error_message = $1, completed_at = NOW(), updated_at = NOW()
		WHERE video_id = $2 AND status IN ('analyzing', 'extracting', 'uploading')`, reason, videoID)
	if err != nil {
		return 0, fmt.Errorf("failed to fail active jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
