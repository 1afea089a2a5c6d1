// infrastructure/postgres_transcription_repository.go
package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vitovidale/clip-processor-service/domain"
)

type PostgresTranscriptionRepository struct {
	DB *sql.DB
}

func NewPostgresTranscriptionRepository(db *sql.DB) *PostgresTranscriptionRepository {
	return &PostgresTranscriptionRepository{DB: db}
}

// Save inserts the transcription, replacing any earlier one for the video.
func (r *PostgresTranscriptionRepository) Save(ctx context.Context, t *domain.Transcription) error {
	if err := t.Validate(); err != nil {
		return err
	}
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	query := `INSERT INTO transcriptions (id, video_id, full_text, segments, language_code, duration_seconds, remote_file_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (video_id) DO UPDATE SET id = EXCLUDED.id, full_text = EXCLUDED.full_text, segments = EXCLUDED.segments,
			language_code = EXCLUDED.language_code, duration_seconds = EXCLUDED.duration_seconds,
			remote_file_id = EXCLUDED.remote_file_id, created_at = EXCLUDED.created_at,
			refinement_outcome = NULL, refinement_note = NULL`
	_, err = r.DB.ExecContext(ctx, query, t.ID, t.VideoID, t.FullText, segments, t.LanguageCode,
		t.DurationSeconds, nullString(t.RemoteFileID), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transcription: %w", err)
	}
	return nil
}

func (r *PostgresTranscriptionRepository) FindByVideoID(ctx context.Context, videoID string) (*domain.Transcription, error) {
	var t domain.Transcription
	var segments []byte
	var remote, outcome, note sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, video_id, full_text, segments, language_code, duration_seconds, remote_file_id,
			refinement_outcome, refinement_note, created_at
		FROM transcriptions WHERE video_id = $1`, videoID,
	).Scan(&t.ID, &t.VideoID, &t.FullText, &segments, &t.LanguageCode, &t.DurationSeconds, &remote,
		&outcome, &note, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transcription: %w", err)
	}
	if err := json.Unmarshal(segments, &t.Segments); err != nil {
		return nil, domain.NewIntegrityError("transcription.decode", "segments of %s: %v", t.ID, err)
	}
	t.RemoteFileID = stringPtr(remote)
	t.RefinementOutcome = stringPtr(outcome)
	t.RefinementNote = stringPtr(note)
	return &t, nil
}

func (r *PostgresTranscriptionRepository) SetRemoteFileID(ctx context.Context, transcriptionID, remoteFileID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE transcriptions SET remote_file_id = $1 WHERE id = $2`, remoteFileID, transcriptionID)
	if err != nil {
		return fmt.Errorf("failed to record transcript file: %w", err)
	}
	return expectOneRow(res, "transcription", transcriptionID)
}

func (r *PostgresTranscriptionRepository) SetRefinementOutcome(ctx context.Context, transcriptionID, outcome, note string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE transcriptions SET refinement_outcome = $1, refinement_note = NULLIF($2, '') WHERE id = $3`,
		outcome, note, transcriptionID)
	if err != nil {
		return fmt.Errorf("failed to record refinement outcome: %w", err)
	}
	return expectOneRow(res, "transcription", transcriptionID)
}

func (r *PostgresTranscriptionRepository) SaveRefined(ctx context.Context, rt *domain.RefinedTranscription) error {
	segments, err := json.Marshal(rt.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	query := `INSERT INTO refined_transcriptions (id, transcription_id, video_id, full_text, segments, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id) DO UPDATE SET id = EXCLUDED.id, transcription_id = EXCLUDED.transcription_id,
			full_text = EXCLUDED.full_text, segments = EXCLUDED.segments, model = EXCLUDED.model, created_at = EXCLUDED.created_at`
	_, err = r.DB.ExecContext(ctx, query, rt.ID, rt.TranscriptionID, rt.VideoID, rt.FullText, segments, rt.Model, rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save refined transcription: %w", err)
	}
	return nil
}

func (r *PostgresTranscriptionRepository) FindRefinedByVideoID(ctx context.Context, videoID string) (*domain.RefinedTranscription, error) {
	var rt domain.RefinedTranscription
	var segments []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, transcription_id, video_id, full_text, segments, model, created_at
		FROM refined_transcriptions WHERE video_id = $1`, videoID,
	).Scan(&rt.ID, &rt.TranscriptionID, &rt.VideoID, &rt.FullText, &segments, &rt.Model, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query refined transcription: %w", err)
	}
	if err := json.Unmarshal(segments, &rt.Segments); err != nil {
		return nil, domain.NewIntegrityError("transcription.decode", "refined segments of %s: %v", rt.ID, err)
	}
	return &rt, nil
}
