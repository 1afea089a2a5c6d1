package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/logging"
)

// memDB backs the in-memory repositories so ApplyReset and Delete can touch
// every table at once, like the Postgres transaction does.
type memDB struct {
	mu             sync.Mutex
	videos         map[string]domain.Video
	transcriptions map[string]domain.Transcription
	refined        map[string]domain.RefinedTranscription
	clips          map[string]domain.Clip
	subtitles      map[string]domain.ClipSubtitle
	jobs           map[string]domain.ProcessingJob
}

func newMemDB() *memDB {
	return &memDB{
		videos:         map[string]domain.Video{},
		transcriptions: map[string]domain.Transcription{},
		refined:        map[string]domain.RefinedTranscription{},
		clips:          map[string]domain.Clip{},
		subtitles:      map[string]domain.ClipSubtitle{},
		jobs:           map[string]domain.ProcessingJob{},
	}
}

type memSnapshot struct {
	videos         map[string]domain.Video
	transcriptions map[string]domain.Transcription
	refined        map[string]domain.RefinedTranscription
	clips          map[string]domain.Clip
	subtitles      map[string]domain.ClipSubtitle
	jobs           map[string]domain.ProcessingJob
}

// snapshot and restore must be called with mu held.
func (db *memDB) snapshot() memSnapshot {
	return memSnapshot{
		videos:         maps.Clone(db.videos),
		transcriptions: maps.Clone(db.transcriptions),
		refined:        maps.Clone(db.refined),
		clips:          maps.Clone(db.clips),
		subtitles:      maps.Clone(db.subtitles),
		jobs:           maps.Clone(db.jobs),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.videos = s.videos
	db.transcriptions = s.transcriptions
	db.refined = s.refined
	db.clips = s.clips
	db.subtitles = s.subtitles
	db.jobs = s.jobs
}

type memVideos struct {
	db             *memDB
	updateCacheErr error
	// resetFailAt names the ApplyReset stage that fails: video, refined,
	// transcription, clips or jobs.
	resetFailAt string
}

func (r *memVideos) Create(_ context.Context, v *domain.Video) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.videos[v.ID] = *v
	return nil
}

func (r *memVideos) FindByID(_ context.Context, id string) (*domain.Video, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	v, ok := r.db.videos[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *memVideos) FindBySourceFileID(_ context.Context, fileID string) (*domain.Video, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, v := range r.db.videos {
		if v.SourceFileID == fileID {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *memVideos) List(_ context.Context, limit int) ([]domain.Video, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Video
	for _, v := range r.db.videos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memVideos) UpdateState(_ context.Context, v *domain.Video) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.videos[v.ID]
	if !ok {
		return fmt.Errorf("video %s not found", v.ID)
	}
	stored.Status = v.Status
	stored.TranscriptionPhase = v.TranscriptionPhase
	stored.ErrorMessage = v.ErrorMessage
	stored.DurationSeconds = v.DurationSeconds
	stored.AudioURI = v.AudioURI
	stored.UpdatedAt = v.UpdatedAt
	r.db.videos[v.ID] = stored
	return nil
}

func (r *memVideos) UpdateCache(_ context.Context, id, uri string, expiresAt time.Time) error {
	if r.updateCacheErr != nil {
		return r.updateCacheErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := r.db.videos[id]
	stored.CacheURI = &uri
	stored.CacheExpiresAt = &expiresAt
	r.db.videos[id] = stored
	return nil
}

// ApplyReset mirrors the Postgres transaction: every stage runs against the
// live maps and a failing stage restores the snapshot taken up front.
func (r *memVideos) ApplyReset(_ context.Context, plan domain.ResetPlan) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	v, ok := r.db.videos[plan.VideoID]
	if !ok {
		return fmt.Errorf("video %s not found", plan.VideoID)
	}
	snap := r.db.snapshot()
	fail := func(stage string) bool {
		if r.resetFailAt != stage {
			return false
		}
		r.db.restore(snap)
		return true
	}

	v.Status = plan.Status
	v.TranscriptionPhase = nil
	v.ErrorMessage = nil
	if plan.ClearCache {
		v.CacheURI, v.CacheExpiresAt = nil, nil
	}
	if plan.ClearAudio {
		v.AudioURI = nil
	}
	r.db.videos[v.ID] = v
	if fail("video") {
		return fmt.Errorf("reset video: connection lost")
	}
	if plan.ClearRefined {
		delete(r.db.refined, v.ID)
		if t, ok := r.db.transcriptions[v.ID]; ok {
			t.RefinementOutcome, t.RefinementNote = nil, nil
			r.db.transcriptions[v.ID] = t
		}
	}
	if fail("refined") {
		return fmt.Errorf("delete refined transcription: connection lost")
	}
	if plan.ClearTranscription {
		delete(r.db.transcriptions, v.ID)
	}
	if fail("transcription") {
		return fmt.Errorf("delete transcription: connection lost")
	}
	if plan.ClearClips {
		for id, c := range r.db.clips {
			if c.VideoID != v.ID || (plan.KeepCompletedClips && c.Status == domain.ClipStatusCompleted) {
				continue
			}
			delete(r.db.clips, id)
			delete(r.db.subtitles, id)
		}
	}
	if fail("clips") {
		return fmt.Errorf("delete clips: connection lost")
	}
	for id, j := range r.db.jobs {
		if j.VideoID != v.ID {
			continue
		}
		if plan.DeleteJobs {
			delete(r.db.jobs, id)
			continue
		}
		if j.IsActive() && plan.FailActiveJobsReason != "" {
			j.Fail(plan.FailActiveJobsReason)
			r.db.jobs[id] = j
		}
	}
	if fail("jobs") {
		return fmt.Errorf("delete jobs: connection lost")
	}
	return nil
}

func (r *memVideos) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.videos, id)
	delete(r.db.transcriptions, id)
	delete(r.db.refined, id)
	for cid, c := range r.db.clips {
		if c.VideoID == id {
			delete(r.db.clips, cid)
			delete(r.db.subtitles, cid)
		}
	}
	for jid, j := range r.db.jobs {
		if j.VideoID == id {
			delete(r.db.jobs, jid)
		}
	}
	return nil
}

func (r *memVideos) ListStale(_ context.Context, statuses []domain.VideoStatus, before time.Time) ([]domain.Video, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Video
	for _, v := range r.db.videos {
		for _, s := range statuses {
			if v.Status == s && v.UpdatedAt.Before(before) {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

type memTranscriptions struct{ db *memDB }

func (r *memTranscriptions) Save(_ context.Context, t *domain.Transcription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.transcriptions[t.VideoID] = *t
	return nil
}

func (r *memTranscriptions) FindByVideoID(_ context.Context, videoID string) (*domain.Transcription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.transcriptions[videoID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTranscriptions) SetRemoteFileID(_ context.Context, id, remote string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, t := range r.db.transcriptions {
		if t.ID == id {
			t.RemoteFileID = &remote
			r.db.transcriptions[k] = t
			return nil
		}
	}
	return fmt.Errorf("transcription %s not found", id)
}

func (r *memTranscriptions) SetRefinementOutcome(_ context.Context, id, outcome, note string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, t := range r.db.transcriptions {
		if t.ID == id {
			t.RefinementOutcome = &outcome
			t.RefinementNote = nil
			if note != "" {
				t.RefinementNote = &note
			}
			r.db.transcriptions[k] = t
			return nil
		}
	}
	return fmt.Errorf("transcription %s not found", id)
}

func (r *memTranscriptions) SaveRefined(_ context.Context, rt *domain.RefinedTranscription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.refined[rt.VideoID] = *rt
	return nil
}

func (r *memTranscriptions) FindRefinedByVideoID(_ context.Context, videoID string) (*domain.RefinedTranscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rt, ok := r.db.refined[videoID]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

type memClips struct{ db *memDB }

func (r *memClips) CreateBatch(_ context.Context, clips []*domain.Clip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range clips {
		r.db.clips[c.ID] = *c
	}
	return nil
}

func (r *memClips) FindByID(_ context.Context, id string) (*domain.Clip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clips[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memClips) list(match func(domain.Clip) bool) []domain.Clip {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Clip
	for _, c := range r.db.clips {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartSeconds < out[j].StartSeconds })
	return out
}

func (r *memClips) ListByVideoID(_ context.Context, videoID string) ([]domain.Clip, error) {
	return r.list(func(c domain.Clip) bool { return c.VideoID == videoID }), nil
}

func (r *memClips) ListByJobID(_ context.Context, jobID string) ([]domain.Clip, error) {
	return r.list(func(c domain.Clip) bool { return c.JobID != nil && *c.JobID == jobID }), nil
}

func (r *memClips) Update(_ context.Context, c *domain.Clip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.clips[c.ID] = *c
	return nil
}

func (r *memClips) SaveSubtitle(_ context.Context, s *domain.ClipSubtitle) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.subtitles[s.ClipID] = *s
	return nil
}

func (r *memClips) FindSubtitle(_ context.Context, clipID string) (*domain.ClipSubtitle, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subtitles[clipID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type memJobs struct {
	db        *memDB
	createErr error
}

func (r *memJobs) Create(_ context.Context, j *domain.ProcessingJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.jobs[j.ID] = *j
	return nil
}

func (r *memJobs) FindByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	j, ok := r.db.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (r *memJobs) ListByVideoID(_ context.Context, videoID string) ([]domain.ProcessingJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.ProcessingJob
	for _, j := range r.db.jobs {
		if j.VideoID == videoID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (r *memJobs) NextPending(ctx context.Context, videoID string) (*domain.ProcessingJob, error) {
	jobs, _ := r.ListByVideoID(ctx, videoID)
	for _, j := range jobs {
		if j.Status == domain.JobStatusPending {
			return &j, nil
		}
	}
	return nil, nil
}

func (r *memJobs) Update(_ context.Context, j *domain.ProcessingJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.jobs[j.ID] = *j
	return nil
}

func (r *memJobs) FailActive(_ context.Context, videoID, reason string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for id, j := range r.db.jobs {
		if j.VideoID == videoID && j.IsActive() {
			j.Fail(reason)
			r.db.jobs[id] = j
			n++
		}
	}
	return n, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]context.CancelCauseFunc
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]context.CancelCauseFunc{}} }

func (l *memLocker) TryLock(ctx context.Context, id string) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return ctx, nil, domain.ErrLeaseHeld
	}
	leaseCtx, cancel := context.WithCancelCause(ctx)
	l.held[id] = cancel
	return leaseCtx, func() {
		l.mu.Lock()
		delete(l.held, id)
		l.mu.Unlock()
		cancel(nil)
	}, nil
}

// lose cancels the lease on id the way a failed renewal does.
func (l *memLocker) lose(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.held[id]; ok {
		cancel(domain.ErrLeaseLost)
	}
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	expires   map[string]time.Time
	uploads   atomic.Int32
	deletes   atomic.Int32
	uploadErr error
	ttl       time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, expires: map[string]time.Time{}, ttl: 24 * time.Hour}
}

func (s *fakeStore) Exists(_ context.Context, uri string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[uri]
	return ok, nil
}

func (s *fakeStore) UploadFromStream(_ context.Context, key string, r io.Reader) (domain.StoredObject, error) {
	s.uploads.Add(1)
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.StoredObject{}, err
	}
	if s.uploadErr != nil {
		return domain.StoredObject{}, s.uploadErr
	}
	uri := "mem://cache/" + key
	expires := time.Now().Add(s.ttl).UTC()
	s.mu.Lock()
	s.objects[uri] = data
	s.expires[uri] = expires
	s.mu.Unlock()
	return domain.StoredObject{URI: uri, ExpiresAt: expires}, nil
}

func (s *fakeStore) Stat(_ context.Context, key string) (*domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri := "mem://cache/" + key
	if _, ok := s.objects[uri]; !ok {
		return nil, nil
	}
	return &domain.StoredObject{URI: uri, ExpiresAt: s.expires[uri]}, nil
}

func (s *fakeStore) DownloadAsStream(_ context.Context, uri string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[uri]
	if !ok {
		return nil, fmt.Errorf("object %s not found", uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, uri string) error {
	s.deletes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, uri)
	delete(s.expires, uri)
	return nil
}

// failingReader yields some bytes and then an error, like a dropped transfer.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset by peer")
}

type fakeFileHost struct {
	mu           sync.Mutex
	files        map[string][]byte
	downloads    atomic.Int32
	uploaded     map[string][]byte
	failDownload bool
	failUpload   func(name string) bool
	nextID       int
}

func newFakeFileHost() *fakeFileHost {
	return &fakeFileHost{
		files:    map[string][]byte{"src-1": []byte("source video bytes")},
		uploaded: map[string][]byte{},
	}
}

func (h *fakeFileHost) ParseSourceRef(ref string) (string, error) {
	if strings.HasPrefix(ref, "https://drive.example.com/file/d/") {
		return strings.TrimPrefix(ref, "https://drive.example.com/file/d/"), nil
	}
	if strings.ContainsAny(ref, "/:") {
		return "", errors.New("unrecognized url")
	}
	return ref, nil
}

func (h *fakeFileHost) GetMetadata(_ context.Context, id string) (*domain.FileMetadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	return &domain.FileMetadata{ID: id, Name: "talk.mp4", Size: int64(len(data)), MimeType: "video/mp4", ParentID: "folder-1"}, nil
}

func (h *fakeFileHost) DownloadAsStream(_ context.Context, id string) (io.ReadCloser, error) {
	h.downloads.Add(1)
	if h.failDownload {
		return io.NopCloser(&failingReader{}), nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (h *fakeFileHost) UploadFile(_ context.Context, name, _, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if h.failUpload != nil && h.failUpload(name) {
		return "", fmt.Errorf("upload of %s rejected", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := fmt.Sprintf("remote-%d", h.nextID)
	h.uploaded[name] = data
	return id, nil
}

type fakeTranscoder struct {
	audioCalls atomic.Int32
	clipCalls  atomic.Int32
	duration   float64
	failClipAt map[float64]bool
	// entered/release let a test hold ExtractAudio open.
	entered chan struct{}
	release chan struct{}
}

func (t *fakeTranscoder) ExtractAudio(_ context.Context, video io.Reader, format domain.AudioFormat) (io.ReadCloser, error) {
	t.audioCalls.Add(1)
	if t.entered != nil {
		t.entered <- struct{}{}
		<-t.release
	}
	if _, err := io.Copy(io.Discard, video); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(fmt.Sprintf("RIFF %dHz", format.SampleRate))), nil
}

func (t *fakeTranscoder) ExtractClip(_ context.Context, _ string, start, end float64) (io.ReadCloser, error) {
	t.clipCalls.Add(1)
	if t.failClipAt[start] {
		return nil, fmt.Errorf("ffmpeg exited with status 1 at %.1f", start)
	}
	return io.NopCloser(strings.NewReader(fmt.Sprintf("clip %.1f-%.1f", start, end))), nil
}

func (t *fakeTranscoder) GetDuration(context.Context, string) (float64, error) {
	if t.duration == 0 {
		return 0, errors.New("no duration")
	}
	return t.duration, nil
}

type fakeSpeech struct {
	calls atomic.Int32
	err   error
}

func (s *fakeSpeech) Transcribe(_ context.Context, audio io.Reader, mimeType string) (*domain.SpeechResult, error) {
	s.calls.Add(1)
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SpeechResult{
		FullText:     "hello world this is a talk about go",
		LanguageCode: "en",
		Segments: []domain.TranscriptionSegment{
			{Text: "hello world", StartSeconds: 0, EndSeconds: 5, Confidence: 0.9},
			{Text: "this is a talk about go", StartSeconds: 5, EndSeconds: 30, Confidence: 0.8},
		},
		DurationSeconds: 120,
	}, nil
}

type fakeAnalysis struct {
	clips []domain.AIClip
	err   error
	calls atomic.Int32
}

func (a *fakeAnalysis) Analyze(_ context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return &domain.AnalysisResult{Clips: a.clips, RawResponse: `{"clips":[]}`}, nil
}

type fakeRefiner struct {
	block bool
	err   error
}

func (r *fakeRefiner) Refine(ctx context.Context, t *domain.Transcription) (*domain.RefinementResult, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RefinementResult{FullText: strings.ToUpper(t.FullText), Segments: t.Segments, Model: "test-model"}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []domain.PipelineMessage
	err  error
}

func (q *fakeQueue) PublishPipelineRun(_ context.Context, msg domain.PipelineMessage) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

type harness struct {
	db         *memDB
	videos     *memVideos
	trans      *memTranscriptions
	clips      *memClips
	jobs       *memJobs
	locker     *memLocker
	store      *fakeStore
	host       *fakeFileHost
	transcoder *fakeTranscoder
	speech     *fakeSpeech
	analysis   *fakeAnalysis
	pipeline   *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemDB()
	h := &harness{
		db:         db,
		videos:     &memVideos{db: db},
		trans:      &memTranscriptions{db: db},
		clips:      &memClips{db: db},
		jobs:       &memJobs{db: db},
		locker:     newMemLocker(),
		store:      newFakeStore(),
		host:       newFakeFileHost(),
		transcoder: &fakeTranscoder{duration: 120},
		speech:     &fakeSpeech{},
		analysis:   &fakeAnalysis{},
	}
	logger := logging.Discard()
	h.pipeline = &Pipeline{
		VideoRepo:         h.videos,
		TranscriptionRepo: h.trans,
		ClipRepo:          h.clips,
		JobRepo:           h.jobs,
		Locker:            h.locker,
		Cache: &CacheManager{
			VideoRepo: h.videos,
			FileHost:  h.host,
			Store:     h.store,
			Logger:    logger,
		},
		Store:            h.store,
		Transcoder:       h.transcoder,
		Speech:           h.speech,
		Analysis:         h.analysis,
		FileHost:         h.host,
		Logger:           logger,
		RefineTimeout:    time.Second,
		ClipConcurrency:  2,
		SubtitleMaxChars: 16,
		ClipFolderID:     "clips-folder",
		WorkDir:          t.TempDir(),
	}
	return h
}

func (h *harness) addVideo(t *testing.T) *domain.Video {
	t.Helper()
	v := domain.NewVideo("src-1", "https://drive.example.com/file/d/src-1")
	title := "talk.mp4"
	v.Title = &title
	if err := h.videos.Create(context.Background(), v); err != nil {
		t.Fatalf("create video: %v", err)
	}
	return v
}

func (h *harness) video(t *testing.T, id string) *domain.Video {
	t.Helper()
	v, err := h.videos.FindByID(context.Background(), id)
	if err != nil || v == nil {
		t.Fatalf("FindByID(%s) = %v, %v", id, v, err)
	}
	return v
}

func (h *harness) resetter() *ResetVideoUseCase {
	return &ResetVideoUseCase{
		VideoRepo:         h.videos,
		TranscriptionRepo: h.trans,
		Locker:            h.locker,
		Store:             h.store,
		Logger:            logging.Discard(),
	}
}
