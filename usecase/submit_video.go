// usecase/submit_video.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

type SubmitVideoInput struct {
	SourceRef    string
	Title        string
	Description  string
	Instructions string
	Ranges       []domain.TimeRange
	// WithSubtitles only applies when Instructions or Ranges queue a job.
	WithSubtitles bool
	// StartPipeline publishes a pipeline run right after registration.
	StartPipeline bool
}

type SubmitVideoOutput struct {
	Message string
	Video   *domain.Video
	Job     *domain.ProcessingJob
	Queued  bool
}

type SubmitVideoUseCase struct {
	VideoRepo domain.VideoRepository
	JobRepo   domain.JobRepository
	FileHost  domain.FileHost
	Queue     domain.PipelineQueue
	Logger    logrus.FieldLogger
}

// Execute registers a source video. Input is validated before the file host
// is contacted; a source that is already registered is a conflict.
func (uc *SubmitVideoUseCase) Execute(ctx context.Context, input SubmitVideoInput) (*SubmitVideoOutput, error) {
	ref := strings.TrimSpace(input.SourceRef)
	if ref == "" {
		return nil, domain.NewValidationError("video.submit", "source reference is required")
	}
	fileID, err := uc.FileHost.ParseSourceRef(ref)
	if err != nil {
		return nil, domain.NewValidationError("video.submit", "unsupported source reference %q: %v", ref, err)
	}
	jobInput := ExtractClipsInput{VideoID: "pending", Instructions: input.Instructions, Ranges: input.Ranges, WithSubtitles: input.WithSubtitles}
	wantsJob := strings.TrimSpace(input.Instructions) != "" || len(input.Ranges) > 0
	if wantsJob {
		if err := jobInput.validate(); err != nil {
			return nil, err
		}
	}

	existing, err := uc.VideoRepo.FindBySourceFileID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("check existing video: %w", err)
	}
	if existing != nil {
		return nil, domain.NewConflictError("video.submit", "source %s is already registered as video %s", fileID, existing.ID)
	}

	meta, err := uc.FileHost.GetMetadata(ctx, fileID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, err
		}
		return nil, domain.NewTransientError("video.metadata", err)
	}

	video := domain.NewVideo(fileID, ref)
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = meta.Name
	}
	if title != "" {
		video.Title = &title
	}
	if d := strings.TrimSpace(input.Description); d != "" {
		video.Description = &d
	}
	if meta.Size > 0 {
		size := meta.Size
		video.SizeBytes = &size
	}
	if err := uc.VideoRepo.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to record video: %w", err)
	}

	out := &SubmitVideoOutput{Message: "Video registered", Video: video}
	log := uc.Logger.WithFields(logrus.Fields{"video_id": video.ID, "source_file_id": fileID})

	if wantsJob {
		job := domain.NewProcessingJob(video.ID, strings.TrimSpace(input.Instructions), input.Ranges, input.WithSubtitles)
		if err := uc.JobRepo.Create(ctx, job); err != nil {
			// Unregister the video so the same source can be submitted again.
			if delErr := uc.VideoRepo.Delete(ctx, video.ID); delErr != nil {
				log.WithError(delErr).Error("failed to remove video after job creation failed")
			}
			return nil, fmt.Errorf("failed to record extraction job: %w", err)
		}
		out.Job = job
	}

	if input.StartPipeline && uc.Queue != nil {
		msg := domain.PipelineMessage{VideoID: video.ID, RequestID: uuid.NewString(), RequestedAt: time.Now().UTC()}
		if err := uc.Queue.PublishPipelineRun(ctx, msg); err != nil {
			log.WithError(err).Warn("video registered but pipeline run not queued")
		} else {
			out.Queued = true
			out.Message = "Video registered and queued for processing"
		}
	}

	log.Info(out.Message)
	return out, nil
}

// TriggerPipelineUseCase queues a pipeline run for an existing video.
type TriggerPipelineUseCase struct {
	VideoRepo domain.VideoRepository
	Queue     domain.PipelineQueue
	Logger    logrus.FieldLogger
}

func (uc *TriggerPipelineUseCase) Execute(ctx context.Context, videoID string) (*domain.PipelineMessage, error) {
	video, err := uc.VideoRepo.FindByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if video == nil {
		return nil, domain.NewNotFoundError("video.find", "video %s not found", videoID)
	}
	if video.Status == domain.VideoStatusFailed {
		return nil, domain.NewConflictError("pipeline.trigger", "video %s failed (%s); reset before retrying", video.ID, video.ErrorString())
	}
	msg := domain.PipelineMessage{VideoID: video.ID, RequestID: uuid.NewString(), RequestedAt: time.Now().UTC()}
	if err := uc.Queue.PublishPipelineRun(ctx, msg); err != nil {
		return nil, domain.NewTransientError("pipeline.publish", err)
	}
	uc.Logger.WithFields(logrus.Fields{"video_id": video.ID, "request_id": msg.RequestID}).Info("pipeline run queued")
	return &msg, nil
}
