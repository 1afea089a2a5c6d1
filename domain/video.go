// domain/video.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoStatusPending      VideoStatus = "pending"
	VideoStatusTranscribing VideoStatus = "transcribing"
	VideoStatusTranscribed  VideoStatus = "transcribed"
	VideoStatusExtracting   VideoStatus = "extracting"
	VideoStatusCompleted    VideoStatus = "completed"
	VideoStatusFailed       VideoStatus = "failed"
)

// TranscriptionPhase is progress information only; it is meaningful while
// the video is transcribing and nil otherwise.
type TranscriptionPhase string

const (
	PhaseDownloading     TranscriptionPhase = "downloading"
	PhaseExtractingAudio TranscriptionPhase = "extracting_audio"
	PhaseTranscribing    TranscriptionPhase = "transcribing"
	PhaseSaving          TranscriptionPhase = "saving"
	PhaseUploading       TranscriptionPhase = "uploading"
	PhaseRefining        TranscriptionPhase = "refining"
)

var knownPhases = map[TranscriptionPhase]bool{
	PhaseDownloading:     true,
	PhaseExtractingAudio: true,
	PhaseTranscribing:    true,
	PhaseSaving:          true,
	PhaseUploading:       true,
	PhaseRefining:        true,
}

type Video struct {
	ID                 string              `json:"id"`
	SourceFileID       string              `json:"source_file_id"`
	SourceURL          string              `json:"source_url"`
	Title              *string             `json:"title,omitempty"`
	Description        *string             `json:"description,omitempty"`
	DurationSeconds    *float64            `json:"duration_seconds,omitempty"`
	SizeBytes          *int64              `json:"size_bytes,omitempty"`
	Status             VideoStatus         `json:"status"`
	TranscriptionPhase *TranscriptionPhase `json:"transcription_phase,omitempty"`
	CacheURI           *string             `json:"cache_uri,omitempty"`
	CacheExpiresAt     *time.Time          `json:"cache_expires_at,omitempty"`
	AudioURI           *string             `json:"audio_uri,omitempty"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewVideo creates a pending video for a resolved source file.
func NewVideo(sourceFileID, sourceURL string) *Video {
	now := time.Now().UTC()
	return &Video{
		ID:           uuid.NewString(),
		SourceFileID: sourceFileID,
		SourceURL:    sourceURL,
		Status:       VideoStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasValidCache reports whether the stored cache metadata is still inside its
// validity window. It does not check the object store.
func (v *Video) HasValidCache(now time.Time) bool {
	return v.CacheURI != nil && *v.CacheURI != "" &&
		v.CacheExpiresAt != nil && v.CacheExpiresAt.After(now)
}

func (v *Video) PhaseString() string {
	if v.TranscriptionPhase == nil {
		return ""
	}
	return string(*v.TranscriptionPhase)
}

func (v *Video) ErrorString() string {
	if v.ErrorMessage == nil {
		return ""
	}
	return *v.ErrorMessage
}

// Validate checks the entity invariants before a video reaches persistence.
func (v *Video) Validate() error {
	if !IsKnownVideoStatus(v.Status) {
		return NewIntegrityError("video.validate", "unknown status %q", v.Status)
	}
	if v.TranscriptionPhase != nil {
		if v.Status != VideoStatusTranscribing {
			return NewIntegrityError("video.validate", "phase %q set while status is %s", *v.TranscriptionPhase, v.Status)
		}
		if !knownPhases[*v.TranscriptionPhase] {
			return NewIntegrityError("video.validate", "unknown transcription phase %q", *v.TranscriptionPhase)
		}
	}
	if v.Status == VideoStatusFailed && (v.ErrorMessage == nil || *v.ErrorMessage == "") {
		return NewIntegrityError("video.validate", "failed video without error message")
	}
	if v.DurationSeconds != nil && *v.DurationSeconds < 0 {
		return NewIntegrityError("video.validate", "negative duration %.3f", *v.DurationSeconds)
	}
	return nil
}

func (v *Video) touch() {
	v.UpdatedAt = time.Now().UTC()
}
