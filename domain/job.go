// domain/job.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusAnalyzing  JobStatus = "analyzing"
	JobStatusExtracting JobStatus = "extracting"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TimeRange is an explicit clip boundary supplied by the caller instead of
// AI analysis.
type TimeRange struct {
	Title        string  `json:"title,omitempty"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// ProcessingJob records one extraction request against a video.
type ProcessingJob struct {
	ID             string      `json:"id"`
	VideoID        string      `json:"video_id"`
	Instructions   string      `json:"instructions"`
	ExplicitRanges []TimeRange `json:"explicit_ranges,omitempty"`
	WithSubtitles  bool        `json:"with_subtitles"`
	Status         JobStatus   `json:"status"`
	AIResponse     *string     `json:"ai_response,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func NewProcessingJob(videoID, instructions string, ranges []TimeRange, withSubtitles bool) *ProcessingJob {
	now := time.Now().UTC()
	return &ProcessingJob{
		ID:             uuid.NewString(),
		VideoID:        videoID,
		Instructions:   instructions,
		ExplicitRanges: ranges,
		WithSubtitles:  withSubtitles,
		Status:         JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsActive reports whether the job is currently being worked on.
func (j *ProcessingJob) IsActive() bool {
	switch j.Status {
	case JobStatusAnalyzing, JobStatusExtracting, JobStatusUploading:
		return true
	default:
		return false
	}
}

func (j *ProcessingJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

func (j *ProcessingJob) SetStatus(status JobStatus) {
	now := time.Now().UTC()
	if j.StartedAt == nil && status != JobStatusPending {
		j.StartedAt = &now
	}
	j.Status = status
	if status == JobStatusCompleted || status == JobStatusFailed {
		j.CompletedAt = &now
	}
	j.UpdatedAt = now
}

func (j *ProcessingJob) Fail(message string) {
	j.ErrorMessage = &message
	j.SetStatus(JobStatusFailed)
}

func (j *ProcessingJob) AddWarning(w string) {
	j.Warnings = append(j.Warnings, w)
}
