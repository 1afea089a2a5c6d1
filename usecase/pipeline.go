// usecase/pipeline.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// Pipeline drives a video through cache -> audio -> transcribe -> save ->
// upload -> refine and then through clip extraction for each pending job.
// Every step checks its persisted postcondition first, so re-running after a
// failure or a reset resumes where durable state ends.
type Pipeline struct {
	VideoRepo         domain.VideoRepository
	TranscriptionRepo domain.TranscriptionRepository
	ClipRepo          domain.ClipRepository
	JobRepo           domain.JobRepository
	Locker            domain.VideoLocker
	Cache             *CacheManager
	Store             domain.ObjectStore
	Transcoder        domain.Transcoder
	Speech            domain.SpeechService
	Analysis          domain.AnalysisService
	Refiner           domain.TranscriptRefiner
	FileHost          domain.FileHost
	Metrics           domain.PipelineMetrics
	Logger            logrus.FieldLogger

	RefineTimeout    time.Duration
	ClipConcurrency  int
	SubtitleMaxChars int
	ClipFolderID     string
	WorkDir          string
}

// RunPipeline is idempotent and resumable. A second call for a video whose
// lease is held returns a ConflictError without side effects.
func (p *Pipeline) RunPipeline(ctx context.Context, videoID string) (*domain.Video, error) {
	ctx, release, err := p.Locker.TryLock(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			return nil, domain.NewConflictError("pipeline.run", "a pipeline step for video %s is already in flight", videoID)
		}
		return nil, domain.NewTransientError("pipeline.lock", err)
	}
	defer release()

	video, err := p.loadVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	log := p.Logger.WithField("video_id", video.ID)

	switch video.Status {
	case domain.VideoStatusFailed:
		return video, domain.NewConflictError("pipeline.run", "video %s failed (%s); reset before retrying", video.ID, video.ErrorString())
	case domain.VideoStatusExtracting:
		return video, domain.NewConflictError("pipeline.run", "video %s was interrupted while extracting; reset step clips before retrying", video.ID)
	case domain.VideoStatusPending, domain.VideoStatusTranscribing:
		if err := p.runTranscription(ctx, video); err != nil {
			return p.reloadOr(ctx, video), err
		}
	}

	for {
		job, err := p.JobRepo.NextPending(ctx, video.ID)
		if err != nil {
			return video, fmt.Errorf("find pending job: %w", err)
		}
		if job == nil {
			break
		}
		if err := p.runExtraction(ctx, video, job); err != nil {
			return p.reloadOr(ctx, video), err
		}
		if video.Status == domain.VideoStatusFailed {
			break
		}
	}

	log.WithField("status", video.Status).Info("pipeline run finished")
	return p.reloadOr(ctx, video), nil
}

func (p *Pipeline) loadVideo(ctx context.Context, id string) (*domain.Video, error) {
	video, err := p.VideoRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", id, err)
	}
	if video == nil {
		return nil, domain.NewNotFoundError("video.find", "video %s not found", id)
	}
	return video, nil
}

func (p *Pipeline) reloadOr(ctx context.Context, video *domain.Video) *domain.Video {
	fresh, err := p.VideoRepo.FindByID(ctx, video.ID)
	if err != nil || fresh == nil {
		return video
	}
	return fresh
}

// persist writes the video state and reads it back; the next step only runs
// once the write is observed.
func (p *Pipeline) persist(ctx context.Context, video *domain.Video) error {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, domain.ErrLeaseLost) {
			return domain.NewConflictError("video.persist", "lease on video %s lost", video.ID)
		}
		return cause
	}
	if err := video.Validate(); err != nil {
		return err
	}
	if err := p.VideoRepo.UpdateState(ctx, video); err != nil {
		return fmt.Errorf("update video %s: %w", video.ID, err)
	}
	stored, err := p.VideoRepo.FindByID(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("reload video %s: %w", video.ID, err)
	}
	if stored == nil || stored.Status != video.Status || stored.PhaseString() != video.PhaseString() {
		return domain.NewIntegrityError("video.persist", "state of video %s not observed after write", video.ID)
	}
	*video = *stored
	return nil
}

// fail records an irrecoverable step error on the video while keeping every
// artifact that is already durable.
func (p *Pipeline) fail(ctx context.Context, video *domain.Video, step string, cause error) error {
	err := cause
	if domain.KindOf(cause) == "" {
		err = domain.NewTransientError(step, cause)
	}
	if domain.IsKind(err, domain.KindConflict) {
		return err
	}

	log := p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "step": step})
	if errors.Is(context.Cause(ctx), domain.ErrLeaseLost) {
		// another worker may own the video now; leave its state alone
		log.WithError(cause).Error("pipeline step aborted, lease lost")
		return domain.NewConflictError(step, "lease on video %s lost during %s", video.ID, step)
	}
	if markErr := video.MarkFailed(fmt.Sprintf("%s: %v", step, cause)); markErr != nil {
		log.WithError(markErr).Error("cannot mark video failed")
		return err
	}
	if uerr := p.VideoRepo.UpdateState(context.WithoutCancel(ctx), video); uerr != nil {
		log.WithError(uerr).Error("cannot persist failed state")
	}
	log.WithError(cause).Error("pipeline step failed")
	return err
}

func (p *Pipeline) observe(step string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.metrics().ObserveStep(step, outcome, time.Since(started))
}

func (p *Pipeline) metrics() domain.PipelineMetrics {
	if p.Metrics == nil {
		return domain.NopMetrics{}
	}
	return p.Metrics
}

// RecoverInterrupted fails videos and jobs left mid-step by a crashed worker.
// Videos whose lease is still held elsewhere are skipped.
func (p *Pipeline) RecoverInterrupted(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := p.VideoRepo.ListStale(ctx,
		[]domain.VideoStatus{domain.VideoStatusTranscribing, domain.VideoStatusExtracting},
		time.Now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale videos: %w", err)
	}

	recovered := 0
	for i := range stale {
		v := &stale[i]
		_, release, err := p.Locker.TryLock(ctx, v.ID)
		if err != nil {
			continue
		}
		if err := v.MarkFailed("interrupted by restart"); err == nil {
			if err := p.VideoRepo.UpdateState(ctx, v); err != nil {
				p.Logger.WithError(err).WithField("video_id", v.ID).Error("cannot mark interrupted video")
			} else {
				recovered++
			}
		}
		if _, err := p.JobRepo.FailActive(ctx, v.ID, "interrupted by restart"); err != nil {
			p.Logger.WithError(err).WithField("video_id", v.ID).Warn("cannot fail interrupted jobs")
		}
		release()
	}
	if recovered > 0 {
		p.Logger.WithField("count", recovered).Warn("marked interrupted videos as failed")
	}
	return recovered, nil
}
