// infrastructure/postgres_clip_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitovidale/clip-processor-service/domain"
)

const clipColumns = `id, video_id, job_id, remote_file_id, title, start_seconds, end_seconds, duration_seconds,
	transcript, status, error_message, created_at, updated_at`

type PostgresClipRepository struct {
	DB *sql.DB
}

func NewPostgresClipRepository(db *sql.DB) *PostgresClipRepository {
	return &PostgresClipRepository{DB: db}
}

func scanClip(row rowScanner) (*domain.Clip, error) {
	var c domain.Clip
	var jobID, remote, title, transcript, errorMessage sql.NullString
	err := row.Scan(&c.ID, &c.VideoID, &jobID, &remote, &title, &c.StartSeconds, &c.EndSeconds, &c.DurationSeconds,
		&transcript, &c.Status, &errorMessage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.JobID = stringPtr(jobID)
	c.RemoteFileID = stringPtr(remote)
	c.Title = stringPtr(title)
	c.Transcript = stringPtr(transcript)
	c.ErrorMessage = stringPtr(errorMessage)
	return &c, nil
}

// CreateBatch inserts all clips or none.
func (r *PostgresClipRepository) CreateBatch(ctx context.Context, clips []*domain.Clip) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clip batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO clips (`+clipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("prepare clip insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range clips {
		if err := c.Validate(nil); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx, c.ID, c.VideoID, nullString(c.JobID), nullString(c.RemoteFileID), nullString(c.Title),
			c.StartSeconds, c.EndSeconds, c.DurationSeconds, nullString(c.Transcript), c.Status,
			nullString(c.ErrorMessage), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert clip %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clip batch: %w", err)
	}
	return nil
}

func (r *PostgresClipRepository) FindByID(ctx context.Context, id string) (*domain.Clip, error) {
	c, err := scanClip(r.DB.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query clip: %w", err)
	}
	return c, nil
}

func (r *PostgresClipRepository) ListByVideoID(ctx context.Context, videoID string) ([]domain.Clip, error) {
	return r.list(ctx, `SELECT `+clipColumns+` FROM clips WHERE video_id = $1 ORDER BY start_seconds, created_at`, videoID)
}

func (r *PostgresClipRepository) ListByJobID(ctx context.Context, jobID string) ([]domain.Clip, error) {
	return r.list(ctx, `SELECT `+clipColumns+` FROM clips WHERE job_id = $1 ORDER BY start_seconds, created_at`, jobID)
}

func (r *PostgresClipRepository) list(ctx context.Context, query, arg string) ([]domain.Clip, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()
	var clips []domain.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning clip row: %w", err)
		}
		clips = append(clips, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over clips: %w", err)
	}
	return clips, nil
}

func (r *PostgresClipRepository) Update(ctx context.Context, c *domain.Clip) error {
	if err := c.Validate(nil); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE clips SET remote_file_id = $1, status = $2, error_message = $3, updated_at = $4 WHERE id = $5`,
		nullString(c.RemoteFileID), c.Status, nullString(c.ErrorMessage), c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update clip: %w", err)
	}
	return expectOneRow(res, "clip", c.ID)
}

func (r *PostgresClipRepository) SaveSubtitle(ctx context.Context, s *domain.ClipSubtitle) error {
	segments, err := json.Marshal(s.Segments)
	if err != nil {
		return fmt.Errorf("encode subtitle segments: %w", err)
	}
	query := `INSERT INTO clip_subtitles (id, clip_id, segments, status, max_chars, created_at, updated_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (clip_id) DO UPDATE SET segments = EXCLUDED.segments, status = EXCLUDED.status,
			max_chars = EXCLUDED.max_chars, updated_at = EXCLUDED.updated_at, confirmed_at = EXCLUDED.confirmed_at`
	_, err = r.DB.ExecContext(ctx, query, s.ID, s.ClipID, segments, s.Status, s.MaxChars, s.CreatedAt, s.UpdatedAt, nullTime(s.ConfirmedAt))
	if err != nil {
		return fmt.Errorf("failed to save subtitle: %w", err)
	}
	return nil
}

func (r *PostgresClipRepository) FindSubtitle(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	var s domain.ClipSubtitle
	var segments []byte
	var confirmed sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, clip_id, segments, status, max_chars, created_at, updated_at, confirmed_at
		FROM clip_subtitles WHERE clip_id = $1`, clipID,
	).Scan(&s.ID, &s.ClipID, &segments, &s.Status, &s.MaxChars, &s.CreatedAt, &s.UpdatedAt, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitle: %w", err)
	}
	if err := json.Unmarshal(segments, &s.Segments); err != nil {
		return nil, domain.NewIntegrityError("subtitle.decode", "segments of %s: %v", s.ID, err)
	}
	s.ConfirmedAt = timePtr(confirmed)
	return &s, nil
}
