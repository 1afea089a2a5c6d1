// infrastructure/postgres_video_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vitovidale/clip-processor-service/domain"
)

const videoColumns = `id, source_file_id, source_url, title, description, duration_seconds, size_bytes,
	status, transcription_phase, cache_uri, cache_expires_at, audio_uri, error_message, created_at, updated_at`

type PostgresVideoRepository struct {
	DB *sql.DB
}

func NewPostgresVideoRepository(db *sql.DB) *PostgresVideoRepository {
	return &PostgresVideoRepository{DB: db}
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	var v domain.Video
	var title, description, phase, cacheURI, audioURI, errorMessage sql.NullString
	var duration sql.NullFloat64
	var size sql.NullInt64
	var cacheExpires sql.NullTime
	err := row.Scan(
		&v.ID, &v.SourceFileID, &v.SourceURL, &title, &description, &duration, &size,
		&v.Status, &phase, &cacheURI, &cacheExpires, &audioURI, &errorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Title = stringPtr(title)
	v.Description = stringPtr(description)
	v.DurationSeconds = floatPtr(duration)
	if size.Valid {
		n := size.Int64
		v.SizeBytes = &n
	}
	if phase.Valid {
		p := domain.TranscriptionPhase(phase.String)
		v.TranscriptionPhase = &p
	}
	v.CacheURI = stringPtr(cacheURI)
	v.CacheExpiresAt = timePtr(cacheExpires)
	v.AudioURI = stringPtr(audioURI)
	v.ErrorMessage = stringPtr(errorMessage)
	return &v, nil
}

func (r *PostgresVideoRepository) Create(ctx context.Context, video *domain.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}
	var size sql.NullInt64
	if video.SizeBytes != nil {
		size = sql.NullInt64{Int64: *video.SizeBytes, Valid: true}
	}
	query := `INSERT INTO videos (id, source_file_id, source_url, title, description, duration_seconds, size_bytes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.DB.ExecContext(ctx, query,
		video.ID, video.SourceFileID, video.SourceURL, nullString(video.Title), nullString(video.Description),
		nullFloat(video.DurationSeconds), size, video.Status, video.CreatedAt, video.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.NewConflictError("video.create", "source %s is already registered", video.SourceFileID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (*domain.Video, error) {
	v, err := scanVideo(r.DB.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video: %w", err)
	}
	return v, nil
}

func (r *PostgresVideoRepository) FindBySourceFileID(ctx context.Context, fileID string) (*domain.Video, error) {
	v, err := scanVideo(r.DB.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE source_file_id = $1`, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video by source: %w", err)
	}
	return v, nil
}

func (r *PostgresVideoRepository) List(ctx context.Context, limit int) ([]domain.Video, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	return collectVideos(rows)
}

func (r *PostgresVideoRepository) ListStale(ctx context.Context, statuses []domain.VideoStatus, updatedBefore time.Time) ([]domain.Video, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at`,
		pq.Array(names), updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale videos: %w", err)
	}
	return collectVideos(rows)
}

func collectVideos(rows *sql.Rows) ([]domain.Video, error) {
	defer rows.Close()
	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning video row: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over videos: %w", err)
	}
	return videos, nil
}

func (r *PostgresVideoRepository) UpdateState(ctx context.Context, video *domain.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}
	var phase sql.NullString
	if video.TranscriptionPhase != nil {
		phase = sql.NullString{String: string(*video.TranscriptionPhase), Valid: true}
	}
	query := `UPDATE videos SET status = $1, transcription_phase = $2, error_message = $3, duration_seconds = $4,
		audio_uri = $5, updated_at = NOW() WHERE id = $6`
	res, err := r.DB.ExecContext(ctx, query,
		video.Status, phase, nullString(video.ErrorMessage), nullFloat(video.DurationSeconds),
		nullString(video.AudioURI), video.ID)
	if err != nil {
		return fmt.Errorf("failed to update video state: %w", err)
	}
	return expectOneRow(res, "video", video.ID)
}

func (r *PostgresVideoRepository) UpdateCache(ctx context.Context, videoID, uri string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE videos SET cache_uri = $1, cache_expires_at = $2, updated_at = NOW() WHERE id = $3`,
		uri, expiresAt, videoID)
	if err != nil {
		return fmt.Errorf("failed to update video cache: %w", err)
	}
	return expectOneRow(res, "video", videoID)
}

// ApplyReset clears the planned artifacts and rewinds the status in one
// transaction.
func (r *PostgresVideoRepository) ApplyReset(ctx context.Context, plan domain.ResetPlan) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	set := `status = $1, transcription_phase = NULL, error_message = NULL, updated_at = NOW()`
	if plan.ClearCache {
		set += `, cache_uri = NULL, cache_expires_at = NULL`
	}
	if plan.ClearAudio {
		set += `, audio_uri = NULL`
	}
	res, err := tx.ExecContext(ctx, `UPDATE videos SET `+set+` WHERE id = $2`, plan.Status, plan.VideoID)
	if err != nil {
		return fmt.Errorf("reset video: %w", err)
	}
	if err := expectOneRow(res, "video", plan.VideoID); err != nil {
		return err
	}

	if plan.ClearRefined {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refined_transcriptions WHERE video_id = $1`, plan.VideoID); err != nil {
			return fmt.Errorf("delete refined transcription: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transcriptions SET refinement_outcome = NULL, refinement_note = NULL WHERE video_id = $1`, plan.VideoID); err != nil {
			return fmt.Errorf("clear refinement outcome: %w", err)
		}
	}
	if plan.ClearTranscription {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE video_id = $1`, plan.VideoID); err != nil {
			return fmt.Errorf("delete transcription: %w", err)
		}
	}
	if plan.ClearClips {
		q := `DELETE FROM clips WHERE video_id = $1`
		if plan.KeepCompletedClips {
			q += ` AND status <> 'completed'`
		}
		if _, err := tx.ExecContext(ctx, q, plan.VideoID); err != nil {
			return fmt.Errorf("delete clips: %w", err)
		}
	}
	if plan.DeleteJobs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM processing_jobs WHERE video_id = $1`, plan.VideoID); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
	} else if plan.FailActiveJobsReason != "" {
		if _, err := failActiveJobs(ctx, tx, plan.VideoID, plan.FailActiveJobsReason); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return expectOneRow(res, "video", id)
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError(entity+".update", "%s %s not found", entity, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
