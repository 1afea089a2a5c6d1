// infrastructure/gin_handlers.go
package infrastructure

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/usecase"
)

type VideoSubmitter interface {
	Execute(ctx context.Context, input usecase.SubmitVideoInput) (*usecase.SubmitVideoOutput, error)
}

type PipelineTrigger interface {
	Execute(ctx context.Context, videoID string) (*domain.PipelineMessage, error)
}

type PipelineService interface {
	RunPipeline(ctx context.Context, videoID string) (*domain.Video, error)
	QueueExtraction(ctx context.Context, in usecase.ExtractClipsInput) (*domain.ProcessingJob, error)
	ExtractClips(ctx context.Context, in usecase.ExtractClipsInput) (*usecase.ExtractClipsOutput, error)
}

type VideoResetter interface {
	Execute(ctx context.Context, videoID string, step usecase.ResetStep) (*domain.Video, error)
}

type VideoDeleter interface {
	Execute(ctx context.Context, videoID string) error
}

type VideoReader interface {
	GetVideo(ctx context.Context, id string) (*domain.Video, error)
	ListVideos(ctx context.Context, limit int) ([]domain.Video, error)
	GetTranscription(ctx context.Context, videoID string) (*usecase.TranscriptionView, error)
	ListClips(ctx context.Context, videoID string) ([]domain.Clip, error)
	ListJobs(ctx context.Context, videoID string) ([]domain.ProcessingJob, error)
	GetJob(ctx context.Context, id string) (*domain.ProcessingJob, error)
}

type SubtitleService interface {
	Generate(ctx context.Context, clipID string) (*domain.ClipSubtitle, error)
	Get(ctx context.Context, clipID string) (*domain.ClipSubtitle, error)
	Update(ctx context.Context, clipID string, segments []domain.SubtitleSegment) (*domain.ClipSubtitle, error)
	Confirm(ctx context.Context, clipID string) (*domain.ClipSubtitle, error)
	SRT(ctx context.Context, clipID string) (string, error)
}

type VideoHandlers struct {
	SubmitVideoUC VideoSubmitter
	TriggerUC     PipelineTrigger
	Pipeline      PipelineService
	ResetVideoUC  VideoResetter
	DeleteVideoUC VideoDeleter
	Queries       VideoReader
	Subtitles     SubtitleService
	Logger        logrus.FieldLogger
}

type submitVideoRequest struct {
	Source        string             `json:"source" binding:"required"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Instructions  string             `json:"instructions"`
	Ranges        []domain.TimeRange `json:"ranges"`
	WithSubtitles bool               `json:"with_subtitles"`
	StartPipeline bool               `json:"start_pipeline"`
}

type extractClipsRequest struct {
	Instructions  string             `json:"instructions"`
	Ranges        []domain.TimeRange `json:"ranges"`
	WithSubtitles bool               `json:"with_subtitles"`
	Sync          bool               `json:"sync"`
}

type resetRequest struct {
	Step string `json:"step" binding:"required"`
}

type updateSubtitlesRequest struct {
	Segments []domain.SubtitleSegment `json:"segments" binding:"required"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTransientExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *VideoHandlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if kind := domain.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if status >= http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("route", c.FullPath()).Error("request failed")
	}
	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error(), "kind": domain.KindValidation})
}

func (h *VideoHandlers) SubmitVideoHandler(c *gin.Context) {
	var req submitVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	out, err := h.SubmitVideoUC.Execute(c.Request.Context(), usecase.SubmitVideoInput{
		SourceRef:     req.Source,
		Title:         req.Title,
		Description:   req.Description,
		Instructions:  req.Instructions,
		Ranges:        req.Ranges,
		WithSubtitles: req.WithSubtitles,
		StartPipeline: req.StartPipeline,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": out.Message, "video": out.Video, "job": out.Job, "queued": out.Queued})
}

func (h *VideoHandlers) ListVideosHandler(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer", "kind": domain.KindValidation})
			return
		}
		limit = n
	}
	videos, err := h.Queries.ListVideos(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if videos == nil {
		videos = []domain.Video{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *VideoHandlers) GetVideoHandler(c *gin.Context) {
	video, err := h.Queries.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

func (h *VideoHandlers) DeleteVideoHandler(c *gin.Context) {
	if err := h.DeleteVideoUC.Execute(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunPipelineHandler queues a run, or with ?sync=true runs it inline and
// returns the resulting video.
func (h *VideoHandlers) RunPipelineHandler(c *gin.Context) {
	id := c.Param("id")
	if c.Query("sync") == "true" {
		video, err := h.Pipeline.RunPipeline(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, video)
		return
	}
	msg, err := h.TriggerUC.Execute(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "pipeline run queued", "video_id": msg.VideoID, "request_id": msg.RequestID})
}

func (h *VideoHandlers) ResetVideoHandler(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	step, err := usecase.ParseResetStep(req.Step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	video, err := h.ResetVideoUC.Execute(c.Request.Context(), c.Param("id"), step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

func (h *VideoHandlers) ExtractClipsHandler(c *gin.Context) {
	var req extractClipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	in := usecase.ExtractClipsInput{
		VideoID:       c.Param("id"),
		Instructions:  req.Instructions,
		Ranges:        req.Ranges,
		WithSubtitles: req.WithSubtitles,
	}
	ctx := c.Request.Context()
	if req.Sync || c.Query("sync") == "true" {
		out, err := h.Pipeline.ExtractClips(ctx, in)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"video": out.Video, "job": out.Job, "clips": out.Clips})
		return
	}

	job, err := h.Pipeline.QueueExtraction(ctx, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	queued := true
	if _, err := h.TriggerUC.Execute(ctx, in.VideoID); err != nil {
		h.Logger.WithError(err).WithField("video_id", in.VideoID).Warn("job stored but pipeline run could not be queued")
		queued = false
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "queued": queued})
}

func (h *VideoHandlers) ListClipsHandler(c *gin.Context) {
	clips, err := h.Queries.ListClips(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if clips == nil {
		clips = []domain.Clip{}
	}
	c.JSON(http.StatusOK, gin.H{"clips": clips})
}

func (h *VideoHandlers) ListJobsHandler(c *gin.Context) {
	jobs, err := h.Queries.ListJobs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ProcessingJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *VideoHandlers) GetJobHandler(c *gin.Context) {
	job, err := h.Queries.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *VideoHandlers) GetTranscriptionHandler(c *gin.Context) {
	view, err := h.Queries.GetTranscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *VideoHandlers) GenerateSubtitlesHandler(c *gin.Context) {
	sub, err := h.Subtitles.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *VideoHandlers) GetSubtitlesHandler(c *gin.Context) {
	sub, err := h.Subtitles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *VideoHandlers) UpdateSubtitlesHandler(c *gin.Context) {
	var req updateSubtitlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sub, err := h.Subtitles.Update(c.Request.Context(), c.Param("id"), req.Segments)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *VideoHandlers) ConfirmSubtitlesHandler(c *gin.Context) {
	sub, err := h.Subtitles.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *VideoHandlers) SubtitlesSRTHandler(c *gin.Context) {
	srt, err := h.Subtitles.SRT(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+c.Param("id")+`.srt"`)
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(srt))
}
