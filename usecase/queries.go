// usecase/queries.go
package usecase

import (
	"context"
	"fmt"

	"github.com/vitovidale/clip-processor-service/domain"
)

const DefaultListLimit = 50

type VideoQueries struct {
	VideoRepo         domain.VideoRepository
	TranscriptionRepo domain.TranscriptionRepository
	ClipRepo          domain.ClipRepository
	JobRepo           domain.JobRepository
}

type TranscriptionView struct {
	Transcription *domain.Transcription        `json:"transcription"`
	Refined       *domain.RefinedTranscription `json:"refined,omitempty"`
}

func (q *VideoQueries) GetVideo(ctx context.Context, id string) (*domain.Video, error) {
	video, err := q.VideoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", id, err)
	}
	if video == nil {
		return nil, domain.NewNotFoundError("video.find", "video %s not found", id)
	}
	return video, nil
}

func (q *VideoQueries) ListVideos(ctx context.Context, limit int) ([]domain.Video, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultListLimit
	}
	return q.VideoRepo.List(ctx, limit)
}

func (q *VideoQueries) GetTranscription(ctx context.Context, videoID string) (*TranscriptionView, error) {
	if _, err := q.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	t, err := q.TranscriptionRepo.FindByVideoID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load transcription: %w", err)
	}
	if t == nil {
		return nil, domain.NewNotFoundError("transcription.find", "video %s has no transcription", videoID)
	}
	refined, err := q.TranscriptionRepo.FindRefinedByVideoID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load refined transcription: %w", err)
	}
	return &TranscriptionView{Transcription: t, Refined: refined}, nil
}

func (q *VideoQueries) ListClips(ctx context.Context, videoID string) ([]domain.Clip, error) {
	if _, err := q.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	return q.ClipRepo.ListByVideoID(ctx, videoID)
}

func (q *VideoQueries) ListJobs(ctx context.Context, videoID string) ([]domain.ProcessingJob, error) {
	if _, err := q.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	return q.JobRepo.ListByVideoID(ctx, videoID)
}

func (q *VideoQueries) GetJob(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	job, err := q.JobRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if job == nil {
		return nil, domain.NewNotFoundError("job.find", "job %s not found", id)
	}
	return job, nil
}
