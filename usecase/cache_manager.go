// usecase/cache_manager.go
package usecase

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

type CacheResult struct {
	URI              string
	ExpiresAt        time.Time
	WasAlreadyCached bool
}

// CacheManager keeps at most one temporary copy of each source video in the
// object store. Callers must hold the video's lease.
type CacheManager struct {
	VideoRepo domain.VideoRepository
	FileHost  domain.FileHost
	Store     domain.ObjectStore
	Metrics   domain.PipelineMetrics
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// EnsureCached returns a valid cached copy of the video's source, streaming
// it from the file host when none exists. An object already stored under the
// video's key is adopted even when the video carries no cache metadata, so a
// reset never forces a transfer of a copy that has not expired. On any
// failure the video's stored cache metadata is left exactly as it was.
func (m *CacheManager) EnsureCached(ctx context.Context, video *domain.Video) (*CacheResult, error) {
	log := m.Logger.WithFields(logrus.Fields{"video_id": video.ID, "step": "cache"})

	if video.HasValidCache(m.now()) {
		exists, err := m.Store.Exists(ctx, *video.CacheURI)
		if err != nil {
			return nil, domain.NewTransientError("cache.exists", err)
		}
		if exists {
			m.metrics().CacheResult(true, 0)
			log.WithField("uri", *video.CacheURI).Debug("cached copy still valid")
			return &CacheResult{URI: *video.CacheURI, ExpiresAt: *video.CacheExpiresAt, WasAlreadyCached: true}, nil
		}
		log.WithField("uri", *video.CacheURI).Info("cached copy missing from object store")
	}

	found, err := m.Store.Stat(ctx, CacheObjectKey(video))
	if err != nil {
		return nil, domain.NewTransientError("cache.stat", err)
	}
	if found != nil && found.ExpiresAt.After(m.now()) {
		if err := m.record(ctx, video, *found); err != nil {
			return nil, err
		}
		m.metrics().CacheResult(true, 0)
		log.WithFields(logrus.Fields{
			"uri":        found.URI,
			"expires_at": found.ExpiresAt.Format(time.RFC3339),
		}).Info("adopted cached copy already in object store")
		return &CacheResult{URI: found.URI, ExpiresAt: found.ExpiresAt, WasAlreadyCached: true}, nil
	}

	src, err := m.FileHost.DownloadAsStream(ctx, video.SourceFileID)
	if err != nil {
		return nil, domain.NewTransientError("cache.download", err)
	}
	defer src.Close()

	counter := &countingReader{r: src}
	obj, err := m.Store.UploadFromStream(ctx, CacheObjectKey(video), counter)
	if err != nil {
		return nil, domain.NewTransientError("cache.upload", err)
	}
	if err := m.record(ctx, video, obj); err != nil {
		return nil, err
	}

	m.metrics().CacheResult(false, counter.n.Load())
	log.WithFields(logrus.Fields{
		"uri":        obj.URI,
		"expires_at": obj.ExpiresAt.Format(time.RFC3339),
		"bytes":      counter.n.Load(),
	}).Info("source video cached")

	return &CacheResult{URI: obj.URI, ExpiresAt: obj.ExpiresAt}, nil
}

// record persists obj as the video's cached copy and reads it back before
// updating the in-memory video.
func (m *CacheManager) record(ctx context.Context, video *domain.Video, obj domain.StoredObject) error {
	if err := m.VideoRepo.UpdateCache(ctx, video.ID, obj.URI, obj.ExpiresAt); err != nil {
		return fmt.Errorf("persist cache metadata: %w", err)
	}
	stored, err := m.VideoRepo.FindByID(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("reload video after caching: %w", err)
	}
	if stored == nil || stored.CacheURI == nil || *stored.CacheURI != obj.URI {
		return domain.NewIntegrityError("cache.persist", "cache uri for video %s not observed after write", video.ID)
	}
	uri, expires := obj.URI, obj.ExpiresAt
	video.CacheURI = &uri
	video.CacheExpiresAt = &expires
	return nil
}

func (m *CacheManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *CacheManager) metrics() domain.PipelineMetrics {
	if m.Metrics == nil {
		return domain.NopMetrics{}
	}
	return m.Metrics
}

// CacheObjectKey is stable per video so a repeated transfer overwrites the
// previous object rather than leaking a new one.
func CacheObjectKey(video *domain.Video) string {
	ext := ""
	if video.Title != nil {
		ext = strings.ToLower(path.Ext(*video.Title))
	}
	if ext == "" || len(ext) > 5 {
		ext = ".mp4"
	}
	return fmt.Sprintf("videos/%s/source%s", video.ID, ext)
}

func AudioObjectKey(videoID string) string {
	return fmt.Sprintf("videos/%s/audio.wav", videoID)
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
