// domain/clip.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ClipStatus string

const (
	ClipStatusPending    ClipStatus = "pending"
	ClipStatusProcessing ClipStatus = "processing"
	ClipStatusCompleted  ClipStatus = "completed"
	ClipStatusFailed     ClipStatus = "failed"
)

type Clip struct {
	ID              string     `json:"id"`
	VideoID         string     `json:"video_id"`
	JobID           *string    `json:"job_id,omitempty"`
	RemoteFileID    *string    `json:"remote_file_id,omitempty"`
	Title           *string    `json:"title,omitempty"`
	StartSeconds    float64    `json:"start_seconds"`
	EndSeconds      float64    `json:"end_seconds"`
	DurationSeconds float64    `json:"duration_seconds"`
	Transcript      *string    `json:"transcript,omitempty"`
	Status          ClipStatus `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewClip builds a pending clip from a validated candidate.
func NewClip(videoID, jobID string, c ClipCandidate) *Clip {
	now := time.Now().UTC()
	clip := &Clip{
		ID:              uuid.NewString(),
		VideoID:         videoID,
		StartSeconds:    c.StartSeconds,
		EndSeconds:      c.EndSeconds,
		DurationSeconds: c.EndSeconds - c.StartSeconds,
		Status:          ClipStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if jobID != "" {
		clip.JobID = &jobID
	}
	if c.Title != "" {
		title := c.Title
		clip.Title = &title
	}
	if c.Transcript != "" {
		transcript := c.Transcript
		clip.Transcript = &transcript
	}
	return clip
}

// Validate enforces 0 <= start < end <= duration (when the duration is known).
func (c *Clip) Validate(videoDuration *float64) error {
	if c.StartSeconds < 0 {
		return NewIntegrityError("clip.validate", "clip %s starts before zero (%.3f)", c.ID, c.StartSeconds)
	}
	if c.EndSeconds <= c.StartSeconds {
		return NewIntegrityError("clip.validate", "clip %s end %.3f is not after start %.3f", c.ID, c.EndSeconds, c.StartSeconds)
	}
	if videoDuration != nil && c.EndSeconds > *videoDuration {
		return NewIntegrityError("clip.validate", "clip %s ends at %.3f past video duration %.3f", c.ID, c.EndSeconds, *videoDuration)
	}
	if c.Status == ClipStatusFailed && (c.ErrorMessage == nil || *c.ErrorMessage == "") {
		return NewIntegrityError("clip.validate", "failed clip %s without error message", c.ID)
	}
	return nil
}

func (c *Clip) MarkProcessing() {
	c.Status = ClipStatusProcessing
	c.ErrorMessage = nil
	c.UpdatedAt = time.Now().UTC()
}

func (c *Clip) MarkCompleted(remoteFileID string) {
	c.Status = ClipStatusCompleted
	if remoteFileID != "" {
		c.RemoteFileID = &remoteFileID
	}
	c.ErrorMessage = nil
	c.UpdatedAt = time.Now().UTC()
}

func (c *Clip) MarkFailed(message string) {
	if message == "" {
		message = "unknown error"
	}
	c.Status = ClipStatusFailed
	c.ErrorMessage = &message
	c.UpdatedAt = time.Now().UTC()
}

func (c *Clip) IsTerminal() bool {
	return c.Status == ClipStatusCompleted || c.Status == ClipStatusFailed
}
