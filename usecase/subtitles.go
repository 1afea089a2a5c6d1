// usecase/subtitles.go
package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// SubtitleUseCase manages the draft/confirm lifecycle of clip subtitles.
type SubtitleUseCase struct {
	ClipRepo          domain.ClipRepository
	TranscriptionRepo domain.TranscriptionRepository
	Logger            logrus.FieldLogger
	MaxChars          int
}

func newDraftSubtitle(clip *domain.Clip, segments []domain.TranscriptionSegment, maxChars int) *domain.ClipSubtitle {
	if maxChars <= 0 {
		maxChars = domain.DefaultSubtitleMaxChars
	}
	segs := domain.BuildSubtitleSegments(segments, clip.StartSeconds, clip.EndSeconds, maxChars)
	return domain.NewClipSubtitle(clip.ID, maxChars, segs)
}

func (uc *SubtitleUseCase) completedClip(ctx context.Context, clipID string) (*domain.Clip, error) {
	clip, err := uc.ClipRepo.FindByID(ctx, clipID)
	if err != nil {
		return nil, fmt.Errorf("load clip %s: %w", clipID, err)
	}
	if clip == nil {
		return nil, domain.NewNotFoundError("clip.find", "clip %s not found", clipID)
	}
	if clip.Status != domain.ClipStatusCompleted {
		return nil, domain.NewConflictError("subtitle.generate", "clip %s is %s", clip.ID, clip.Status)
	}
	return clip, nil
}

// Generate builds a draft from the preferred transcript. An existing draft is
// regenerated; a confirmed subtitle is left alone.
func (uc *SubtitleUseCase) Generate(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	clip, err := uc.completedClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	existing, err := uc.ClipRepo.FindSubtitle(ctx, clip.ID)
	if err != nil {
		return nil, fmt.Errorf("load subtitle: %w", err)
	}
	if existing != nil && existing.Status == domain.SubtitleStatusConfirmed {
		return nil, domain.NewConflictError("subtitle.generate", "subtitles for clip %s are already confirmed", clip.ID)
	}

	raw, err := uc.TranscriptionRepo.FindByVideoID(ctx, clip.VideoID)
	if err != nil {
		return nil, fmt.Errorf("load transcription: %w", err)
	}
	if raw == nil {
		return nil, domain.NewNotFoundError("transcription.find", "video %s has no transcription", clip.VideoID)
	}
	refined, err := uc.TranscriptionRepo.FindRefinedByVideoID(ctx, clip.VideoID)
	if err != nil {
		return nil, fmt.Errorf("load refined transcription: %w", err)
	}
	source := domain.PreferredTranscript(raw, refined)

	sub := newDraftSubtitle(clip, source.Segments, uc.MaxChars)
	if existing != nil {
		existing.MaxChars = sub.MaxChars
		existing.Segments = sub.Segments
		existing.UpdatedAt = sub.UpdatedAt
		sub = existing
	}
	if err := uc.ClipRepo.SaveSubtitle(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subtitle: %w", err)
	}
	uc.Logger.WithFields(logrus.Fields{"clip_id": clip.ID, "segments": len(sub.Segments), "refined": source.Refined}).Info("subtitle draft generated")
	return sub, nil
}

func (uc *SubtitleUseCase) Get(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	sub, err := uc.ClipRepo.FindSubtitle(ctx, clipID)
	if err != nil {
		return nil, fmt.Errorf("load subtitle: %w", err)
	}
	if sub == nil {
		return nil, domain.NewNotFoundError("subtitle.find", "clip %s has no subtitles", clipID)
	}
	return sub, nil
}

// Update replaces the segments of a draft.
func (uc *SubtitleUseCase) Update(ctx context.Context, clipID string, segments []domain.SubtitleSegment) (*domain.ClipSubtitle, error) {
	clip, err := uc.completedClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	sub, err := uc.Get(ctx, clip.ID)
	if err != nil {
		return nil, err
	}
	for i := range segments {
		segments[i].Index = i + 1
	}
	if err := sub.ReplaceSegments(segments, clip.DurationSeconds); err != nil {
		return nil, err
	}
	if err := uc.ClipRepo.SaveSubtitle(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subtitle: %w", err)
	}
	return sub, nil
}

func (uc *SubtitleUseCase) Confirm(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	sub, err := uc.Get(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if err := sub.Confirm(); err != nil {
		return nil, err
	}
	if err := uc.ClipRepo.SaveSubtitle(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subtitle: %w", err)
	}
	uc.Logger.WithField("clip_id", clipID).Info("subtitles confirmed")
	return sub, nil
}

func (uc *SubtitleUseCase) SRT(ctx context.Context, clipID string) (string, error) {
	sub, err := uc.Get(ctx, clipID)
	if err != nil {
		return "", err
	}
	return sub.RenderSRT(), nil
}
