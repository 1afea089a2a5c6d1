// usecase/delete_video.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// DeleteVideoUseCase removes a video with everything it owns.
type DeleteVideoUseCase struct {
	VideoRepo domain.VideoRepository
	Locker    domain.VideoLocker
	Store     domain.ObjectStore
	Logger    logrus.FieldLogger
}

func (uc *DeleteVideoUseCase) Execute(ctx context.Context, videoID string) error {
	ctx, release, err := uc.Locker.TryLock(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			return domain.NewConflictError("video.delete", "video %s is being processed", videoID)
		}
		return domain.NewTransientError("video.lock", err)
	}
	defer release()

	video, err := uc.VideoRepo.FindByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	if video == nil {
		return domain.NewNotFoundError("video.find", "video %s not found", videoID)
	}
	if err := uc.VideoRepo.Delete(ctx, video.ID); err != nil {
		return fmt.Errorf("delete video %s: %w", video.ID, err)
	}

	log := uc.Logger.WithField("video_id", video.ID)
	for _, uri := range []*string{video.CacheURI, video.AudioURI} {
		if uri == nil || *uri == "" {
			continue
		}
		if err := uc.Store.Delete(ctx, *uri); err != nil {
			log.WithError(err).WithField("uri", *uri).Warn("cannot delete stored object")
		}
	}
	log.Info("video deleted")
	return nil
}
