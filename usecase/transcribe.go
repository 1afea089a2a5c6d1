// usecase/transcribe.go
package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// runTranscription takes a pending or transcribing video to transcribed.
// Steps whose output is already durable are skipped.
func (p *Pipeline) runTranscription(ctx context.Context, video *domain.Video) error {
	t, err := p.TranscriptionRepo.FindByVideoID(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("load transcription: %w", err)
	}

	if t == nil {
		audioReady, err := p.audioStaged(ctx, video)
		if err != nil {
			return p.fail(ctx, video, "audio", err)
		}
		if !audioReady {
			if err := p.stepCache(ctx, video); err != nil {
				return err
			}
			if err := p.stepExtractAudio(ctx, video); err != nil {
				return err
			}
		} else if err := p.enterTranscribing(ctx, video); err != nil {
			return err
		}

		result, err := p.stepTranscribe(ctx, video)
		if err != nil {
			return err
		}
		if t, err = p.stepSave(ctx, video, result); err != nil {
			return err
		}
	} else if err := p.enterTranscribing(ctx, video); err != nil {
		return err
	}

	p.stepPublishTranscript(ctx, video, t)
	p.stepRefine(ctx, video, t)

	if err := video.TransitionTo(domain.VideoStatusTranscribed); err != nil {
		return err
	}
	if err := p.persist(ctx, video); err != nil {
		return err
	}
	p.Logger.WithField("video_id", video.ID).Info("video transcribed")
	return nil
}

func (p *Pipeline) enterTranscribing(ctx context.Context, video *domain.Video) error {
	if video.Status == domain.VideoStatusTranscribing {
		return nil
	}
	if err := video.TransitionTo(domain.VideoStatusTranscribing); err != nil {
		return err
	}
	return p.persist(ctx, video)
}

func (p *Pipeline) enterPhase(ctx context.Context, video *domain.Video, phase domain.TranscriptionPhase) error {
	if err := video.EnterPhase(phase); err != nil {
		return err
	}
	if err := p.persist(ctx, video); err != nil {
		return err
	}
	p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "phase": phase}).Info("transcription phase")
	return nil
}

// audioStaged reports whether extracted audio from an earlier run is still
// in the object store.
func (p *Pipeline) audioStaged(ctx context.Context, video *domain.Video) (bool, error) {
	if video.AudioURI == nil || *video.AudioURI == "" {
		return false, nil
	}
	ok, err := p.Store.Exists(ctx, *video.AudioURI)
	if err != nil {
		return false, domain.NewTransientError("audio.exists", err)
	}
	return ok, nil
}

// stepCache makes sure a copy of the source is in the object store. A pending
// video only becomes transcribing once the copy is available.
func (p *Pipeline) stepCache(ctx context.Context, video *domain.Video) (err error) {
	started := time.Now()
	defer func() { p.observe("cache", started, err) }()

	if video.Status == domain.VideoStatusTranscribing {
		if err := p.enterPhase(ctx, video, domain.PhaseDownloading); err != nil {
			return err
		}
	}
	if _, err := p.Cache.EnsureCached(ctx, video); err != nil {
		return p.fail(ctx, video, "cache", err)
	}
	return p.enterTranscribing(ctx, video)
}

func (p *Pipeline) stepExtractAudio(ctx context.Context, video *domain.Video) (err error) {
	started := time.Now()
	defer func() { p.observe("extract_audio", started, err) }()

	if err := p.enterPhase(ctx, video, domain.PhaseExtractingAudio); err != nil {
		return err
	}

	src, err := p.Store.DownloadAsStream(ctx, *video.CacheURI)
	if err != nil {
		return p.fail(ctx, video, "extract_audio", domain.NewTransientError("audio.download_source", err))
	}
	defer src.Close()

	audio, err := p.Transcoder.ExtractAudio(ctx, src, domain.SpeechAudioFormat)
	if err != nil {
		return p.fail(ctx, video, "extract_audio", domain.NewTransientError("audio.transcode", err))
	}
	obj, uploadErr := p.Store.UploadFromStream(ctx, AudioObjectKey(video.ID), audio)
	closeErr := audio.Close()
	if uploadErr != nil {
		return p.fail(ctx, video, "extract_audio", domain.NewTransientError("audio.upload", uploadErr))
	}
	if closeErr != nil {
		// the transcoder failed after the store accepted a truncated stream
		if derr := p.Store.Delete(context.WithoutCancel(ctx), obj.URI); derr != nil {
			p.Logger.WithError(derr).WithField("uri", obj.URI).Warn("cannot delete truncated audio")
		}
		return p.fail(ctx, video, "extract_audio", domain.NewTransientError("audio.transcode", closeErr))
	}

	uri := obj.URI
	video.AudioURI = &uri
	if err := p.persist(ctx, video); err != nil {
		return err
	}
	if video.AudioURI == nil || *video.AudioURI != uri {
		return domain.NewIntegrityError("audio.persist", "audio uri for video %s not observed after write", video.ID)
	}
	return nil
}

func (p *Pipeline) stepTranscribe(ctx context.Context, video *domain.Video) (result *domain.SpeechResult, err error) {
	started := time.Now()
	defer func() { p.observe("transcribe", started, err) }()

	if err := p.enterPhase(ctx, video, domain.PhaseTranscribing); err != nil {
		return nil, err
	}
	audio, err := p.Store.DownloadAsStream(ctx, *video.AudioURI)
	if err != nil {
		return nil, p.fail(ctx, video, "transcribe", domain.NewTransientError("transcribe.download_audio", err))
	}
	defer audio.Close()

	result, err = p.Speech.Transcribe(ctx, audio, domain.SpeechAudioFormat.MimeType())
	if err != nil {
		return nil, p.fail(ctx, video, "transcribe", domain.NewTransientError("transcribe.speech", err))
	}
	p.Logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"segments": len(result.Segments),
		"language": result.LanguageCode,
	}).Info("speech transcription received")
	return result, nil
}

// stepSave holds the saving phase only while the transcription is written
// and read back.
func (p *Pipeline) stepSave(ctx context.Context, video *domain.Video, result *domain.SpeechResult) (t *domain.Transcription, err error) {
	started := time.Now()
	defer func() { p.observe("save", started, err) }()

	if err := p.enterPhase(ctx, video, domain.PhaseSaving); err != nil {
		return nil, err
	}
	t = domain.NewTranscription(video.ID, *result)
	if err := t.Validate(); err != nil {
		return nil, p.fail(ctx, video, "save", err)
	}
	if err := p.TranscriptionRepo.Save(ctx, t); err != nil {
		return nil, p.fail(ctx, video, "save", err)
	}
	stored, err := p.TranscriptionRepo.FindByVideoID(ctx, video.ID)
	if err != nil {
		return nil, p.fail(ctx, video, "save", err)
	}
	if stored == nil || stored.ID != t.ID {
		return nil, p.fail(ctx, video, "save",
			domain.NewIntegrityError("transcription.persist", "transcription for video %s not observed after write", video.ID))
	}

	if video.DurationSeconds == nil && t.DurationSeconds > 0 {
		d := t.DurationSeconds
		video.DurationSeconds = &d
		if err := p.persist(ctx, video); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// stepPublishTranscript uploads the transcript text next to the source file.
// Failures are logged only.
func (p *Pipeline) stepPublishTranscript(ctx context.Context, video *domain.Video, t *domain.Transcription) {
	if t.RemoteFileID != nil || p.FileHost == nil {
		return
	}
	log := p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "step": "upload_transcript"})
	if err := p.enterPhase(ctx, video, domain.PhaseUploading); err != nil {
		log.WithError(err).Warn("cannot enter uploading phase")
		return
	}

	started := time.Now()
	var err error
	defer func() { p.observe("upload_transcript", started, err) }()

	meta, err := p.FileHost.GetMetadata(ctx, video.SourceFileID)
	if err != nil {
		log.WithError(err).Warn("transcript not published: source metadata unavailable")
		return
	}
	fileID, err := p.FileHost.UploadFile(ctx, transcriptFileName(meta.Name), "text/plain", meta.ParentID, strings.NewReader(t.FullText))
	if err != nil {
		log.WithError(err).Warn("transcript not published")
		return
	}
	if err = p.TranscriptionRepo.SetRemoteFileID(ctx, t.ID, fileID); err != nil {
		log.WithError(err).Warn("cannot record published transcript")
		return
	}
	t.RemoteFileID = &fileID
	log.WithField("remote_file_id", fileID).Info("transcript published")
}

// stepRefine runs the bounded refinement. Every outcome lets the pipeline
// continue; only a successful one stores a RefinedTranscription.
func (p *Pipeline) stepRefine(ctx context.Context, video *domain.Video, t *domain.Transcription) {
	log := p.Logger.WithFields(logrus.Fields{"video_id": video.ID, "step": "refine"})
	if p.Refiner == nil {
		p.metrics().RefinementOutcome(string(RefinementSkipped))
		p.recordRefinement(ctx, t, RefinementSkipped, "refiner not configured")
		return
	}
	existing, err := p.TranscriptionRepo.FindRefinedByVideoID(ctx, video.ID)
	if err != nil {
		log.WithError(err).Warn("cannot check for refined transcript")
	}
	if existing != nil {
		return
	}
	if err := p.enterPhase(ctx, video, domain.PhaseRefining); err != nil {
		log.WithError(err).Warn("cannot enter refining phase")
		return
	}

	attempt := p.refineWithin(ctx, t)
	p.metrics().RefinementOutcome(string(attempt.Outcome))
	if attempt.Outcome != RefinementRefined {
		log.WithError(attempt.Err).WithField("outcome", attempt.Outcome).Warn("refinement skipped, using raw transcript")
		note := ""
		if attempt.Err != nil {
			note = attempt.Err.Error()
		}
		p.recordRefinement(ctx, t, attempt.Outcome, note)
		return
	}
	refined := domain.NewRefinedTranscription(t, *attempt.Result)
	if err := p.TranscriptionRepo.SaveRefined(ctx, refined); err != nil {
		log.WithError(err).Warn("cannot save refined transcript, using raw transcript")
		p.recordRefinement(ctx, t, RefinementFailed, "save refined: "+err.Error())
		return
	}
	p.recordRefinement(ctx, t, RefinementRefined, "")
	log.WithField("model", refined.Model).Info("transcript refined")
}

// recordRefinement keeps the outcome of the last refinement attempt on the
// transcription so it survives the log.
func (p *Pipeline) recordRefinement(ctx context.Context, t *domain.Transcription, outcome RefinementOutcome, note string) {
	if err := p.TranscriptionRepo.SetRefinementOutcome(context.WithoutCancel(ctx), t.ID, string(outcome), note); err != nil {
		p.Logger.WithError(err).WithField("transcription_id", t.ID).Warn("cannot record refinement outcome")
		return
	}
	o := string(outcome)
	t.RefinementOutcome = &o
	t.RefinementNote = nil
	if note != "" {
		t.RefinementNote = &note
	}
}

func transcriptFileName(sourceName string) string {
	base := strings.TrimSuffix(sourceName, path.Ext(sourceName))
	if base == "" {
		base = "video"
	}
	return base + ".transcript.txt"
}
