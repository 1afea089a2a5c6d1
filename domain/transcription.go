// domain/transcription.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type TranscriptionSegment struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Confidence   float64 `json:"confidence"`
}

type Transcription struct {
	ID              string                 `json:"id"`
	VideoID         string                 `json:"video_id"`
	FullText        string                 `json:"full_text"`
	Segments        []TranscriptionSegment `json:"segments"`
	LanguageCode    string                 `json:"language_code"`
	DurationSeconds float64                `json:"duration_seconds"`
	RemoteFileID    *string                `json:"remote_file_id,omitempty"`

	// RefinementOutcome is the result of the last refinement attempt:
	// refined, skipped, timed_out or failed. RefinementNote explains a
	// non-refined outcome.
	RefinementOutcome *string   `json:"refinement_outcome,omitempty"`
	RefinementNote    *string   `json:"refinement_note,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// RefinedTranscription supersedes the raw transcript as extraction input.
type RefinedTranscription struct {
	ID              string                 `json:"id"`
	TranscriptionID string                 `json:"transcription_id"`
	VideoID         string                 `json:"video_id"`
	FullText        string                 `json:"full_text"`
	Segments        []TranscriptionSegment `json:"segments"`
	Model           string                 `json:"model"`
	CreatedAt       time.Time              `json:"created_at"`
}

func NewTranscription(videoID string, result SpeechResult) *Transcription {
	return &Transcription{
		ID:              uuid.NewString(),
		VideoID:         videoID,
		FullText:        result.FullText,
		Segments:        result.Segments,
		LanguageCode:    result.LanguageCode,
		DurationSeconds: result.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	}
}

func NewRefinedTranscription(t *Transcription, result RefinementResult) *RefinedTranscription {
	return &RefinedTranscription{
		ID:              uuid.NewString(),
		TranscriptionID: t.ID,
		VideoID:         t.VideoID,
		FullText:        result.FullText,
		Segments:        result.Segments,
		Model:           result.Model,
		CreatedAt:       time.Now().UTC(),
	}
}

func (t *Transcription) Validate() error {
	if t.VideoID == "" {
		return NewIntegrityError("transcription.validate", "missing video id")
	}
	for i, s := range t.Segments {
		if s.StartSeconds < 0 || s.EndSeconds < s.StartSeconds {
			return NewIntegrityError("transcription.validate", "segment %d has invalid range %.3f-%.3f", i, s.StartSeconds, s.EndSeconds)
		}
	}
	return nil
}

// TranscriptSource is whichever transcript feeds analysis and subtitles.
type TranscriptSource struct {
	Refined  bool
	FullText string
	Segments []TranscriptionSegment
}

// PreferredTranscript returns the refined transcript when present.
func PreferredTranscript(raw *Transcription, refined *RefinedTranscription) TranscriptSource {
	if refined != nil && len(refined.Segments) > 0 {
		return TranscriptSource{Refined: true, FullText: refined.FullText, Segments: refined.Segments}
	}
	if raw == nil {
		return TranscriptSource{}
	}
	return TranscriptSource{FullText: raw.FullText, Segments: raw.Segments}
}
