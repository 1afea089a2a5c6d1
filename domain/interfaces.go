// domain/interfaces.go
package domain

import (
	"context"
	"io"
	"time"
)

// ResetPlan describes one all-or-nothing rewind applied by VideoRepository.
type ResetPlan struct {
	VideoID              string
	Status               VideoStatus
	ClearCache           bool
	ClearAudio           bool
	ClearTranscription   bool
	ClearRefined         bool
	ClearClips           bool
	KeepCompletedClips   bool
	DeleteJobs           bool
	FailActiveJobsReason string
}

type VideoRepository interface {
	Create(ctx context.Context, video *Video) error
	FindByID(ctx context.Context, id string) (*Video, error)
	FindBySourceFileID(ctx context.Context, fileID string) (*Video, error)
	List(ctx context.Context, limit int) ([]Video, error)
	// UpdateState persists status, phase, error, duration and audio URI.
	UpdateState(ctx context.Context, video *Video) error
	// UpdateCache persists only the cache URI and expiry.
	UpdateCache(ctx context.Context, videoID, uri string, expiresAt time.Time) error
	ApplyReset(ctx context.Context, plan ResetPlan) error
	// Delete removes the video and, by cascade, everything it owns.
	Delete(ctx context.Context, id string) error
	ListStale(ctx context.Context, statuses []VideoStatus, updatedBefore time.Time) ([]Video, error)
}

type TranscriptionRepository interface {
	Save(ctx context.Context, t *Transcription) error
	FindByVideoID(ctx context.Context, videoID string) (*Transcription, error)
	SetRemoteFileID(ctx context.Context, transcriptionID, remoteFileID string) error
	// SetRefinementOutcome records how the last refinement attempt ended.
	SetRefinementOutcome(ctx context.Context, transcriptionID, outcome, note string) error
	SaveRefined(ctx context.Context, r *RefinedTranscription) error
	FindRefinedByVideoID(ctx context.Context, videoID string) (*RefinedTranscription, error)
}

type ClipRepository interface {
	CreateBatch(ctx context.Context, clips []*Clip) error
	FindByID(ctx context.Context, id string) (*Clip, error)
	ListByVideoID(ctx context.Context, videoID string) ([]Clip, error)
	ListByJobID(ctx context.Context, jobID string) ([]Clip, error)
	Update(ctx context.Context, clip *Clip) error
	SaveSubtitle(ctx context.Context, s *ClipSubtitle) error
	FindSubtitle(ctx context.Context, clipID string) (*ClipSubtitle, error)
}

type JobRepository interface {
	Create(ctx context.Context, job *ProcessingJob) error
	FindByID(ctx context.Context, id string) (*ProcessingJob, error)
	ListByVideoID(ctx context.Context, videoID string) ([]ProcessingJob, error)
	// NextPending returns the oldest pending job for the video, or nil.
	NextPending(ctx context.Context, videoID string) (*ProcessingJob, error)
	Update(ctx context.Context, job *ProcessingJob) error
	FailActive(ctx context.Context, videoID, reason string) (int, error)
}

// VideoLocker serializes pipeline work per video. TryLock returns
// ErrLeaseHeld when another holder owns the video. Work done under the lease
// uses the returned context, which is cancelled with cause ErrLeaseLost if
// the lease lapses before release.
type VideoLocker interface {
	TryLock(ctx context.Context, videoID string) (leaseCtx context.Context, release func(), err error)
}

type FileMetadata struct {
	ID       string
	Name     string
	Size     int64
	MimeType string
	ParentID string
}

// FileHost is the remote store the source video lives in and clips are
// published to.
type FileHost interface {
	ParseSourceRef(ref string) (fileID string, err error)
	GetMetadata(ctx context.Context, fileID string) (*FileMetadata, error)
	DownloadAsStream(ctx context.Context, fileID string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, name, mimeType, parentID string, r io.Reader) (fileID string, err error)
}

type StoredObject struct {
	URI       string
	ExpiresAt time.Time
}

// ObjectStore is the TTL-backed temporary store. ExpiresAt always reflects
// the store's own retention rule.
type ObjectStore interface {
	Exists(ctx context.Context, uri string) (bool, error)
	// Stat looks an object up by key. It returns nil, nil when the object
	// does not exist.
	Stat(ctx context.Context, key string) (*StoredObject, error)
	UploadFromStream(ctx context.Context, key string, r io.Reader) (StoredObject, error)
	DownloadAsStream(ctx context.Context, uri string) (io.ReadCloser, error)
	Delete(ctx context.Context, uri string) error
}

type AudioFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	Container     string
}

// SpeechAudioFormat is what the speech service expects: mono, 16 kHz, 16-bit.
var SpeechAudioFormat = AudioFormat{Channels: 1, SampleRate: 16000, BitsPerSample: 16, Container: "wav"}

func (f AudioFormat) MimeType() string {
	return "audio/" + f.Container
}

type Transcoder interface {
	ExtractAudio(ctx context.Context, video io.Reader, format AudioFormat) (io.ReadCloser, error)
	ExtractClip(ctx context.Context, videoPath string, startSeconds, endSeconds float64) (io.ReadCloser, error)
	GetDuration(ctx context.Context, videoPath string) (float64, error)
}

type SpeechResult struct {
	FullText        string
	Segments        []TranscriptionSegment
	LanguageCode    string
	DurationSeconds float64
}

type SpeechService interface {
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (*SpeechResult, error)
}

type AnalysisRequest struct {
	SourceRef    string
	Instructions string
	Transcript   TranscriptSource
	DurationSecs *float64
}

type AnalysisResult struct {
	Clips       []AIClip
	RawResponse string
}

type AnalysisService interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

type RefinementResult struct {
	FullText string
	Segments []TranscriptionSegment
	Model    string
}

type TranscriptRefiner interface {
	Refine(ctx context.Context, t *Transcription) (*RefinementResult, error)
}

type PipelineMessage struct {
	VideoID     string    `json:"video_id"`
	RequestID   string    `json:"request_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type PipelineQueue interface {
	PublishPipelineRun(ctx context.Context, msg PipelineMessage) error
}

// PipelineMetrics receives step-level observations. Implementations must be
// safe for concurrent use.
type PipelineMetrics interface {
	ObserveStep(step, outcome string, d time.Duration)
	CacheResult(hit bool, bytes int64)
	ClipOutcome(status ClipStatus)
	RefinementOutcome(outcome string)
}

type NopMetrics struct{}

func (NopMetrics) ObserveStep(string, string, time.Duration) {}
func (NopMetrics) CacheResult(bool, int64)                   {}
func (NopMetrics) ClipOutcome(ClipStatus)                    {}
func (NopMetrics) RefinementOutcome(string)                  {}
