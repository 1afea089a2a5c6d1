// usecase/reset_video.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

type ResetStep string

const (
	ResetCache      ResetStep = "cache"
	ResetAudio      ResetStep = "audio"
	ResetTranscribe ResetStep = "transcribe"
	ResetRefine     ResetStep = "refine"
	ResetClips      ResetStep = "clips"
	ResetAll        ResetStep = "all"
)

func ParseResetStep(s string) (ResetStep, error) {
	switch step := ResetStep(s); step {
	case ResetCache, ResetAudio, ResetTranscribe, ResetRefine, ResetClips, ResetAll:
		return step, nil
	}
	return "", domain.NewValidationError("reset.step", "unknown reset step %q (want cache, audio, transcribe, refine, clips or all)", s)
}

// ResetVideoUseCase rewinds a video so the pipeline redoes work from a step
// onward. The metadata change is applied in one transaction; physical objects
// are removed afterwards on a best-effort basis.
type ResetVideoUseCase struct {
	VideoRepo         domain.VideoRepository
	TranscriptionRepo domain.TranscriptionRepository
	Locker            domain.VideoLocker
	Store             domain.ObjectStore
	Logger            logrus.FieldLogger
}

func planFor(videoID string, step ResetStep) domain.ResetPlan {
	plan := domain.ResetPlan{
		VideoID:              videoID,
		Status:               domain.VideoStatusPending,
		ClearTranscription:   true,
		ClearRefined:         true,
		ClearClips:           true,
		FailActiveJobsReason: fmt.Sprintf("video reset (%s)", step),
	}
	switch step {
	case ResetAll:
		plan.ClearCache = true
		plan.ClearAudio = true
		plan.DeleteJobs = true
	case ResetCache:
		plan.ClearCache = true
		plan.ClearAudio = true
	case ResetAudio:
		plan.ClearAudio = true
	case ResetTranscribe:
	case ResetRefine:
		plan.ClearTranscription = false
	case ResetClips:
		plan.Status = domain.VideoStatusTranscribed
		plan.ClearTranscription = false
		plan.ClearRefined = false
		plan.KeepCompletedClips = true
	}
	return plan
}

func (uc *ResetVideoUseCase) Execute(ctx context.Context, videoID string, step ResetStep) (*domain.Video, error) {
	if _, err := ParseResetStep(string(step)); err != nil {
		return nil, err
	}
	ctx, release, err := uc.Locker.TryLock(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			return nil, domain.NewConflictError("reset", "video %s is being processed", videoID)
		}
		return nil, domain.NewTransientError("reset.lock", err)
	}
	defer release()

	video, err := uc.VideoRepo.FindByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if video == nil {
		return nil, domain.NewNotFoundError("video.find", "video %s not found", videoID)
	}

	plan := planFor(video.ID, step)
	if step == ResetClips {
		t, err := uc.TranscriptionRepo.FindByVideoID(ctx, video.ID)
		if err != nil {
			return nil, fmt.Errorf("load transcription: %w", err)
		}
		if t == nil {
			return nil, domain.NewConflictError("reset", "video %s has no transcription; reset step transcribe instead", video.ID)
		}
	}

	// validate the rewind on a copy so a refused reset changes nothing
	trial := *video
	if err := trial.Rewind(plan.Status); err != nil {
		return nil, err
	}

	cacheURI, audioURI := video.CacheURI, video.AudioURI
	if err := uc.VideoRepo.ApplyReset(ctx, plan); err != nil {
		return nil, fmt.Errorf("apply reset: %w", err)
	}

	log := uc.Logger.WithFields(logrus.Fields{"video_id": video.ID, "step": step})
	if step == ResetCache && cacheURI != nil {
		uc.deleteObject(ctx, *cacheURI, log)
	}
	if (step == ResetCache || step == ResetAudio) && audioURI != nil {
		uc.deleteObject(ctx, *audioURI, log)
	}

	fresh, err := uc.VideoRepo.FindByID(ctx, video.ID)
	if err != nil {
		return nil, fmt.Errorf("reload video %s: %w", video.ID, err)
	}
	if fresh == nil || fresh.Status != plan.Status {
		return nil, domain.NewIntegrityError("reset", "reset of video %s not observed after write", video.ID)
	}
	log.WithField("status", fresh.Status).Info("video reset")
	return fresh, nil
}

func (uc *ResetVideoUseCase) deleteObject(ctx context.Context, uri string, log logrus.FieldLogger) {
	if err := uc.Store.Delete(ctx, uri); err != nil {
		log.WithError(err).WithField("uri", uri).Warn("cannot delete stored object")
	}
}
