// usecase/extract_clips.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

const DefaultClipConcurrency = 3

type ExtractClipsInput struct {
	VideoID       string
	Instructions  string
	Ranges        []domain.TimeRange
	WithSubtitles bool
}

type ExtractClipsOutput struct {
	Video *domain.Video
	Job   *domain.ProcessingJob
	Clips []domain.Clip
}

func (in ExtractClipsInput) validate() error {
	if strings.TrimSpace(in.VideoID) == "" {
		return domain.NewValidationError("clips.extract", "video id is required")
	}
	if strings.TrimSpace(in.Instructions) == "" && len(in.Ranges) == 0 {
		return domain.NewValidationError("clips.extract", "instructions or explicit time ranges are required")
	}
	for i, r := range in.Ranges {
		if r.StartSeconds < 0 {
			return domain.NewValidationError("clips.extract", "range %d starts before zero", i)
		}
		if r.EndSeconds <= r.StartSeconds {
			return domain.NewValidationError("clips.extract", "range %d end %.3f is not after start %.3f", i, r.EndSeconds, r.StartSeconds)
		}
	}
	return nil
}

// QueueExtraction records an extraction request as a pending job. The next
// RunPipeline for the video picks it up.
func (p *Pipeline) QueueExtraction(ctx context.Context, in ExtractClipsInput) (*domain.ProcessingJob, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ctx, release, err := p.Locker.TryLock(ctx, in.VideoID)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			return nil, domain.NewConflictError("clips.extract", "video %s is being processed", in.VideoID)
		}
		return nil, domain.NewTransientError("clips.lock", err)
	}
	defer release()

	video, err := p.loadVideo(ctx, in.VideoID)
	if err != nil {
		return nil, err
	}
	if video.Status == domain.VideoStatusFailed {
		return nil, domain.NewConflictError("clips.extract", "video %s failed (%s); reset before requesting clips", video.ID, video.ErrorString())
	}
	jobs, err := p.JobRepo.ListByVideoID(ctx, video.ID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if j.IsActive() || j.Status == domain.JobStatusPending {
			return nil, domain.NewConflictError("clips.extract", "video %s already has job %s in status %s", video.ID, j.ID, j.Status)
		}
	}

	job := domain.NewProcessingJob(video.ID, strings.TrimSpace(in.Instructions), in.Ranges, in.WithSubtitles)
	if err := p.JobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "job_id": job.ID}).Info("extraction job queued")
	return job, nil
}

// ExtractClips queues the request and runs the pipeline inline. The output
// carries the job and its clips even when the run fails.
func (p *Pipeline) ExtractClips(ctx context.Context, in ExtractClipsInput) (*ExtractClipsOutput, error) {
	job, err := p.QueueExtraction(ctx, in)
	if err != nil {
		return nil, err
	}
	video, runErr := p.RunPipeline(ctx, in.VideoID)

	out := &ExtractClipsOutput{Video: video, Job: job}
	if fresh, err := p.JobRepo.FindByID(ctx, job.ID); err == nil && fresh != nil {
		out.Job = fresh
	}
	if clips, err := p.ClipRepo.ListByJobID(ctx, job.ID); err == nil {
		out.Clips = clips
	}
	return out, runErr
}

// runExtraction executes one job against a transcribed or completed video.
// Individual clip failures never abort siblings; the job fails only when no
// clip succeeds.
func (p *Pipeline) runExtraction(ctx context.Context, video *domain.Video, job *domain.ProcessingJob) error {
	log := p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "job_id": job.ID})

	if err := video.TransitionTo(domain.VideoStatusExtracting); err != nil {
		return err
	}
	if err := p.persist(ctx, video); err != nil {
		return err
	}
	if err := p.setJobStatus(ctx, job, domain.JobStatusAnalyzing); err != nil {
		return p.failExtraction(ctx, video, job, "analyze", err)
	}

	source, err := p.transcriptSource(ctx, video)
	if err != nil {
		return p.failExtraction(ctx, video, job, "analyze", err)
	}
	candidates, err := p.proposeClips(ctx, video, job, source, log)
	if err != nil {
		return p.failExtraction(ctx, video, job, "analyze", err)
	}

	localPath, cleanup, err := p.spoolSource(ctx, video)
	if err != nil {
		return p.failExtraction(ctx, video, job, "spool", err)
	}
	defer cleanup()

	duration := p.resolveDuration(ctx, video, localPath, log)
	valid, rejected := domain.ValidateTimestamps(candidates, duration)
	for _, r := range rejected {
		msg := fmt.Sprintf("clip %q dropped: %s", r.Title, r.Reason)
		job.AddWarning(msg)
		log.WithField("title", r.Title).Warn(msg)
	}
	sorted := domain.SortByStartTime(valid)
	for _, o := range domain.FindOverlaps(sorted) {
		a, b := sorted[o.First], sorted[o.Second]
		msg := fmt.Sprintf("clips %q (%s-%s) and %q (%s-%s) overlap",
			a.Title, domain.FormatTimecode(a.StartSeconds), domain.FormatTimecode(a.EndSeconds),
			b.Title, domain.FormatTimecode(b.StartSeconds), domain.FormatTimecode(b.EndSeconds))
		job.AddWarning(msg)
		log.Warn(msg)
	}
	if len(sorted) == 0 {
		return p.failExtraction(ctx, video, job, "validate",
			domain.NewValidationError("clips.validate", "no valid clip boundaries among %d candidates", len(candidates)))
	}

	clips := make([]*domain.Clip, 0, len(sorted))
	for _, c := range sorted {
		clip := domain.NewClip(video.ID, job.ID, c)
		if err := clip.Validate(duration); err != nil {
			return p.failExtraction(ctx, video, job, "validate", err)
		}
		clips = append(clips, clip)
	}
	if err := p.ClipRepo.CreateBatch(ctx, clips); err != nil {
		return p.failExtraction(ctx, video, job, "persist_clips", err)
	}

	if err := p.setJobStatus(ctx, job, domain.JobStatusExtracting); err != nil {
		return p.failExtraction(ctx, video, job, "extract", err)
	}
	outputs := p.extractAll(ctx, localPath, clips)

	if err := p.setJobStatus(ctx, job, domain.JobStatusUploading); err != nil {
		closeAll(outputs)
		return p.failExtraction(ctx, video, job, "upload", err)
	}
	p.publishAll(ctx, video, clips, outputs)

	succeeded := 0
	for _, c := range clips {
		if c.Status == domain.ClipStatusCompleted {
			succeeded++
		}
	}
	if job.WithSubtitles && succeeded > 0 {
		p.subtitleAll(ctx, job, clips, source, log)
	}

	if succeeded == 0 {
		return p.failExtraction(ctx, video, job, "extract",
			fmt.Errorf("none of %d clips could be extracted", len(clips)))
	}

	job.SetStatus(domain.JobStatusCompleted)
	if err := p.JobRepo.Update(ctx, job); err != nil {
		log.WithError(err).Error("cannot persist completed job")
	}
	if err := video.TransitionTo(domain.VideoStatusCompleted); err != nil {
		return err
	}
	if err := p.persist(ctx, video); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"clips": len(clips), "succeeded": succeeded}).Info("extraction job completed")
	return nil
}

func (p *Pipeline) setJobStatus(ctx context.Context, job *domain.ProcessingJob, status domain.JobStatus) error {
	job.SetStatus(status)
	if err := p.JobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Pipeline) failExtraction(ctx context.Context, video *domain.Video, job *domain.ProcessingJob, step string, cause error) error {
	job.Fail(fmt.Sprintf("%s: %v", step, cause))
	if err := p.JobRepo.Update(context.WithoutCancel(ctx), job); err != nil {
		p.Logger.WithError(err).WithField("job_id", job.ID).Error("cannot persist failed job")
	}
	return p.fail(ctx, video, step, cause)
}

func (p *Pipeline) transcriptSource(ctx context.Context, video *domain.Video) (domain.TranscriptSource, error) {
	raw, err := p.TranscriptionRepo.FindByVideoID(ctx, video.ID)
	if err != nil {
		return domain.TranscriptSource{}, fmt.Errorf("load transcription: %w", err)
	}
	refined, err := p.TranscriptionRepo.FindRefinedByVideoID(ctx, video.ID)
	if err != nil {
		return domain.TranscriptSource{}, fmt.Errorf("load refined transcription: %w", err)
	}
	return domain.PreferredTranscript(raw, refined), nil
}

// proposeClips returns the job's explicit ranges, or asks the analysis
// service. Malformed AI timestamps are dropped and recorded as warnings.
func (p *Pipeline) proposeClips(ctx context.Context, video *domain.Video, job *domain.ProcessingJob, source domain.TranscriptSource, log logrus.FieldLogger) (candidates []domain.ClipCandidate, err error) {
	if len(job.ExplicitRanges) > 0 {
		return domain.CandidatesFromRanges(job.ExplicitRanges), nil
	}

	started := time.Now()
	defer func() { p.observe("analyze", started, err) }()

	sourceRef := video.SourceURL
	if sourceRef == "" {
		sourceRef = video.SourceFileID
	}
	res, err := p.Analysis.Analyze(ctx, domain.AnalysisRequest{
		SourceRef:    sourceRef,
		Instructions: job.Instructions,
		Transcript:   source,
		DurationSecs: video.DurationSeconds,
	})
	if err != nil {
		return nil, domain.NewTransientError("clips.analyze", err)
	}
	raw := res.RawResponse
	job.AIResponse = &raw

	candidates, rejected := domain.ExtractTimestamps(res.Clips)
	for _, r := range rejected {
		msg := fmt.Sprintf("ai clip %d %q dropped: %s", r.Index, r.Title, r.Reason)
		job.AddWarning(msg)
		log.Warn(msg)
	}
	log.WithFields(logrus.Fields{"proposed": len(res.Clips), "parsed": len(candidates)}).Info("analysis returned clips")
	return candidates, nil
}

// spoolSource copies the cached source to a local file the transcoder can
// seek in. The cache is re-established first if it has expired.
func (p *Pipeline) spoolSource(ctx context.Context, video *domain.Video) (string, func(), error) {
	cached, err := p.Cache.EnsureCached(ctx, video)
	if err != nil {
		return "", nil, err
	}
	src, err := p.Store.DownloadAsStream(ctx, cached.URI)
	if err != nil {
		return "", nil, domain.NewTransientError("spool.download", err)
	}
	defer src.Close()

	dir := p.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "source-*"+filepath.Ext(cached.URI))
	if err != nil {
		return "", nil, fmt.Errorf("create spool file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		cleanup()
		return "", nil, domain.NewTransientError("spool.copy", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close spool file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// resolveDuration prefers stored metadata and otherwise reads it from the file. An
// unknown duration disables duration filtering.
func (p *Pipeline) resolveDuration(ctx context.Context, video *domain.Video, localPath string, log logrus.FieldLogger) *float64 {
	if video.DurationSeconds != nil && *video.DurationSeconds > 0 {
		return video.DurationSeconds
	}
	d, err := p.Transcoder.GetDuration(ctx, localPath)
	if err != nil || d <= 0 {
		log.WithError(err).Warn("video duration unknown, skipping duration checks")
		return nil
	}
	video.DurationSeconds = &d
	if err := p.persist(ctx, video); err != nil {
		log.WithError(err).Warn("cannot persist measured duration")
	}
	return &d
}

type clipOutput struct {
	r   io.ReadCloser
	err error
}

// extractAll cuts every clip with at most ClipConcurrency transcoder
// processes. It waits for all clips regardless of individual failures.
func (p *Pipeline) extractAll(ctx context.Context, localPath string, clips []*domain.Clip) []clipOutput {
	outputs := make([]clipOutput, len(clips))
	p.fanOut(len(clips), func(i int) {
		clip := clips[i]
		log := p.Logger.WithFields(logrus.Fields{"video_id": clip.VideoID, "clip_id": clip.ID})
		clip.MarkProcessing()
		if err := p.ClipRepo.Update(ctx, clip); err != nil {
			log.WithError(err).Warn("cannot persist processing clip")
		}
		started := time.Now()
		r, err := p.Transcoder.ExtractClip(ctx, localPath, clip.StartSeconds, clip.EndSeconds)
		p.observe("extract_clip", started, err)
		if err != nil {
			outputs[i] = clipOutput{err: err}
			p.finishClip(ctx, clip, "", fmt.Errorf("extract: %w", err))
			return
		}
		outputs[i] = clipOutput{r: r}
	})
	return outputs
}

func (p *Pipeline) publishAll(ctx context.Context, video *domain.Video, clips []*domain.Clip, outputs []clipOutput) {
	p.fanOut(len(clips), func(i int) {
		out := outputs[i]
		if out.r == nil {
			return
		}
		defer out.r.Close()
		clip := clips[i]
		started := time.Now()
		fileID, err := p.FileHost.UploadFile(ctx, clipFileName(video, clip, i), "video/mp4", p.ClipFolderID, out.r)
		p.observe("upload_clip", started, err)
		if err != nil {
			p.finishClip(ctx, clip, "", fmt.Errorf("upload: %w", err))
			return
		}
		p.finishClip(ctx, clip, fileID, nil)
	})
}

func (p *Pipeline) finishClip(ctx context.Context, clip *domain.Clip, fileID string, cause error) {
	log := p.Logger.WithFields(logrus.Fields{"video_id": clip.VideoID, "clip_id": clip.ID})
	if cause != nil {
		clip.MarkFailed(cause.Error())
		log.WithError(cause).Warn("clip failed")
	} else {
		clip.MarkCompleted(fileID)
		log.WithField("remote_file_id", fileID).Info("clip published")
	}
	p.metrics().ClipOutcome(clip.Status)
	if err := p.ClipRepo.Update(context.WithoutCancel(ctx), clip); err != nil {
		log.WithError(err).Error("cannot persist clip outcome")
	}
}

func (p *Pipeline) subtitleAll(ctx context.Context, job *domain.ProcessingJob, clips []*domain.Clip, source domain.TranscriptSource, log logrus.FieldLogger) {
	for _, clip := range clips {
		if clip.Status != domain.ClipStatusCompleted {
			continue
		}
		sub := newDraftSubtitle(clip, source.Segments, p.SubtitleMaxChars)
		if err := p.ClipRepo.SaveSubtitle(ctx, sub); err != nil {
			msg := fmt.Sprintf("subtitles for clip %s not saved: %v", clip.ID, err)
			job.AddWarning(msg)
			log.Warn(msg)
		}
	}
}

// fanOut runs fn for 0..n-1 with bounded parallelism and joins on all of them.
func (p *Pipeline) fanOut(n int, fn func(i int)) {
	limit := p.ClipConcurrency
	if limit <= 0 {
		limit = DefaultClipConcurrency
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

func closeAll(outputs []clipOutput) {
	for _, o := range outputs {
		if o.r != nil {
			o.r.Close()
		}
	}
}

func clipFileName(video *domain.Video, clip *domain.Clip, i int) string {
	base := video.ID
	if video.Title != nil && *video.Title != "" {
		base = strings.TrimSuffix(*video.Title, filepath.Ext(*video.Title))
	}
	name := fmt.Sprintf("%s_clip%02d", base, i+1)
	if clip.Title != nil && *clip.Title != "" {
		name += "_" + sanitizeFileName(*clip.Title)
	}
	return name + ".mp4"
}

func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r == ' ':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len([]rune(out)) > 60 {
		out = string([]rune(out)[:60])
	}
	return out
}
