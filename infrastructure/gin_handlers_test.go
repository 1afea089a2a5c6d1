package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/logging"
	"github.com/vitovidale/clip-processor-service/usecase"
)

var testSecret = []byte("test-secret")

type stubSubmitter struct {
	got usecase.SubmitVideoInput
	err error
}

func (s *stubSubmitter) Execute(ctx context.Context, in usecase.SubmitVideoInput) (*usecase.SubmitVideoOutput, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.SubmitVideoOutput{Message: "registered", Video: &domain.Video{ID: "v1", Status: domain.VideoStatusPending}}, nil
}

type stubTrigger struct {
	calls int
	err   error
}

func (s *stubTrigger) Execute(ctx context.Context, videoID string) (*domain.PipelineMessage, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.PipelineMessage{VideoID: videoID, RequestID: "req-1", RequestedAt: time.Now()}, nil
}

type stubPipeline struct {
	runErr   error
	queueErr error
	queued   []usecase.ExtractClipsInput
}

func (s *stubPipeline) RunPipeline(ctx context.Context, videoID string) (*domain.Video, error) {
	if s.runErr != nil {
		return nil, s.runErr
	}
	return &domain.Video{ID: videoID, Status: domain.VideoStatusTranscribed}, nil
}

func (s *stubPipeline) QueueExtraction(ctx context.Context, in usecase.ExtractClipsInput) (*domain.ProcessingJob, error) {
	if s.queueErr != nil {
		return nil, s.queueErr
	}
	s.queued = append(s.queued, in)
	return domain.NewProcessingJob(in.VideoID, in.Instructions, in.Ranges, in.WithSubtitles), nil
}

func (s *stubPipeline) ExtractClips(ctx context.Context, in usecase.ExtractClipsInput) (*usecase.ExtractClipsOutput, error) {
	job := domain.NewProcessingJob(in.VideoID, in.Instructions, in.Ranges, in.WithSubtitles)
	return &usecase.ExtractClipsOutput{Video: &domain.Video{ID: in.VideoID, Status: domain.VideoStatusCompleted}, Job: job}, nil
}

type stubResetter struct{ step usecase.ResetStep }

func (s *stubResetter) Execute(ctx context.Context, videoID string, step usecase.ResetStep) (*domain.Video, error) {
	s.step = step
	return &domain.Video{ID: videoID, Status: domain.VideoStatusPending}, nil
}

type stubDeleter struct{ err error }

func (s *stubDeleter) Execute(ctx context.Context, videoID string) error { return s.err }

type stubReader struct{}

func (stubReader) GetVideo(ctx context.Context, id string) (*domain.Video, error) {
	if id != "v1" {
		return nil, domain.NewNotFoundError("video.find", "video %s not found", id)
	}
	return &domain.Video{ID: id, Status: domain.VideoStatusPending}, nil
}

func (stubReader) ListVideos(ctx context.Context, limit int) ([]domain.Video, error) { return nil, nil }

func (stubReader) GetTranscription(ctx context.Context, videoID string) (*usecase.TranscriptionView, error) {
	return nil, domain.NewNotFoundError("transcription.find", "no transcription")
}

func (stubReader) ListClips(ctx context.Context, videoID string) ([]domain.Clip, error) {
	return nil, nil
}

func (stubReader) ListJobs(ctx context.Context, videoID string) ([]domain.ProcessingJob, error) {
	return nil, nil
}

func (stubReader) GetJob(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	return nil, domain.NewNotFoundError("job.find", "job %s not found", id)
}

type stubSubtitles struct{ updateErr error }

func (stubSubtitles) Generate(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	return domain.NewClipSubtitle(clipID, 16, nil), nil
}

func (stubSubtitles) Get(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	return domain.NewClipSubtitle(clipID, 16, nil), nil
}

func (s stubSubtitles) Update(ctx context.Context, clipID string, segments []domain.SubtitleSegment) (*domain.ClipSubtitle, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return domain.NewClipSubtitle(clipID, 16, segments), nil
}

func (stubSubtitles) Confirm(ctx context.Context, clipID string) (*domain.ClipSubtitle, error) {
	return nil, domain.NewConflictError("subtitle.confirm", "already confirmed")
}

func (stubSubtitles) SRT(ctx context.Context, clipID string) (string, error) {
	return "1\n00:00:00,000 --> 00:00:01,000\nhi\n\n", nil
}

type routerFixture struct {
	router   *gin.Engine
	submit   *stubSubmitter
	trigger  *stubTrigger
	pipeline *stubPipeline
	resetter *stubResetter
}

func newRouterFixture(t *testing.T, checks map[string]HealthCheck) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &routerFixture{
		submit:   &stubSubmitter{},
		trigger:  &stubTrigger{},
		pipeline: &stubPipeline{},
		resetter: &stubResetter{},
	}
	handlers := &VideoHandlers{
		SubmitVideoUC: f.submit,
		TriggerUC:     f.trigger,
		Pipeline:      f.pipeline,
		ResetVideoUC:  f.resetter,
		DeleteVideoUC: &stubDeleter{},
		Queries:       stubReader{},
		Subtitles:     stubSubtitles{},
		Logger:        logging.Discard(),
	}
	f.router = NewRouter(RouterConfig{
		Handlers:  handlers,
		JWTSecret: testSecret,
		Metrics:   NewPrometheusMetrics(),
		Checks:    checks,
		Logger:    logging.Discard(),
	})
	return f
}

func signToken(t *testing.T, secret []byte, expires time.Time) string {
	t.Helper()
	claims := &Claims{
		Username: "editor",
		UserID:   7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	f := newRouterFixture(t, nil)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, []byte("other"), time.Now().Add(time.Hour)), want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, testSecret, time.Now().Add(-time.Minute)), want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + signToken(t, testSecret, time.Now().Add(time.Hour)), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/videos/v1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSubmitVideoHandler(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/videos", map[string]any{
		"source":         "https://drive.google.com/file/d/abcdefghijk/view",
		"instructions":   "highlights",
		"with_subtitles": true,
		"start_pipeline": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.submit.got.Instructions != "highlights" || !f.submit.got.WithSubtitles || !f.submit.got.StartPipeline {
		t.Errorf("input = %+v", f.submit.got)
	}

	rec = f.do(t, http.MethodPost, "/videos", map[string]any{"title": "no source"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing source status = %d, want 400", rec.Code)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.NewValidationError("op", "bad"), want: http.StatusBadRequest},
		{err: domain.NewNotFoundError("op", "gone"), want: http.StatusNotFound},
		{err: domain.NewConflictError("op", "busy"), want: http.StatusConflict},
		{err: domain.NewTransientError("op", errors.New("timeout")), want: http.StatusBadGateway},
		{err: domain.NewIntegrityError("op", "corrupt"), want: http.StatusInternalServerError},
		{err: errors.New("plain"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f := newRouterFixture(t, nil)
		f.submit.err = tt.err
		rec := f.do(t, http.MethodPost, "/videos", map[string]any{"source": "abcdefghijk"})
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestRunPipelineHandler(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/videos/v1/pipeline", nil)
	if rec.Code != http.StatusAccepted || f.trigger.calls != 1 {
		t.Errorf("async status = %d, trigger calls = %d", rec.Code, f.trigger.calls)
	}

	rec = f.do(t, http.MethodPost, "/videos/v1/pipeline?sync=true", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("sync status = %d, want 200", rec.Code)
	}
	var video domain.Video
	json.Unmarshal(rec.Body.Bytes(), &video)
	if video.Status != domain.VideoStatusTranscribed {
		t.Errorf("video status = %s", video.Status)
	}

	f.pipeline.runErr = domain.NewConflictError("pipeline.lock", "video v1 is being processed")
	rec = f.do(t, http.MethodPost, "/videos/v1/pipeline?sync=true", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("held lease status = %d, want 409", rec.Code)
	}
}

func TestResetVideoHandler(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/videos/v1/reset", map[string]string{"step": "transcribe"})
	if rec.Code != http.StatusOK || f.resetter.step != usecase.ResetTranscribe {
		t.Errorf("status = %d, step = %q", rec.Code, f.resetter.step)
	}
	rec = f.do(t, http.MethodPost, "/videos/v1/reset", map[string]string{"step": "everything"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown step status = %d, want 400", rec.Code)
	}
}

func TestExtractClipsHandler(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.trigger.err = domain.NewTransientError("pipeline.publish", errors.New("broker down"))

	rec := f.do(t, http.MethodPost, "/videos/v1/clips", map[string]any{
		"ranges": []map[string]any{{"start_seconds": 1, "end_seconds": 5}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Queued bool                  `json:"queued"`
		Job    *domain.ProcessingJob `json:"job"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Queued || body.Job == nil {
		t.Errorf("body = %+v, want stored job not queued", body)
	}
	if len(f.pipeline.queued) != 1 || f.pipeline.queued[0].VideoID != "v1" || len(f.pipeline.queued[0].Ranges) != 1 {
		t.Errorf("queued = %+v", f.pipeline.queued)
	}

	rec = f.do(t, http.MethodPost, "/videos/v1/clips?sync=true", map[string]any{"instructions": "x"})
	if rec.Code != http.StatusOK {
		t.Errorf("sync status = %d", rec.Code)
	}
}

func TestQueryHandlers(t *testing.T) {
	f := newRouterFixture(t, nil)
	tests := []struct {
		method string
		path   string
		want   int
		substr string
	}{
		{method: http.MethodGet, path: "/videos/v1", want: http.StatusOK, substr: `"id":"v1"`},
		{method: http.MethodGet, path: "/videos/nope", want: http.StatusNotFound, substr: `"kind":"not_found"`},
		{method: http.MethodGet, path: "/videos", want: http.StatusOK, substr: `"videos":[]`},
		{method: http.MethodGet, path: "/videos?limit=abc", want: http.StatusBadRequest},
		{method: http.MethodGet, path: "/videos/v1/clips", want: http.StatusOK, substr: `"clips":[]`},
		{method: http.MethodGet, path: "/videos/v1/jobs", want: http.StatusOK, substr: `"jobs":[]`},
		{method: http.MethodGet, path: "/videos/v1/transcription", want: http.StatusNotFound},
		{method: http.MethodGet, path: "/jobs/j1", want: http.StatusNotFound},
		{method: http.MethodDelete, path: "/videos/v1", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		rec := f.do(t, tt.method, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if tt.substr != "" && !strings.Contains(rec.Body.String(), tt.substr) {
			t.Errorf("%s %s body = %s, want %s", tt.method, tt.path, rec.Body, tt.substr)
		}
	}
}

func TestSubtitleHandlers(t *testing.T) {
	f := newRouterFixture(t, nil)

	if rec := f.do(t, http.MethodPost, "/clips/c1/subtitles", nil); rec.Code != http.StatusCreated {
		t.Errorf("generate status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPut, "/clips/c1/subtitles", map[string]any{
		"segments": []map[string]any{{"index": 1, "lines": []string{"hi"}, "start_seconds": 0, "end_seconds": 1}},
	})
	if rec.Code != http.StatusOK {
		t.Errorf("update status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/clips/c1/subtitles/confirm", nil); rec.Code != http.StatusConflict {
		t.Errorf("confirm status = %d, want 409", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/clips/c1/subtitles/srt", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/x-subrip") {
		t.Errorf("srt status = %d, content type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "00:00:00,000 --> 00:00:01,000") {
		t.Errorf("srt body = %q", rec.Body)
	}
}

func TestHealthHandler(t *testing.T) {
	up := newRouterFixture(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	up.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"UP"`) {
		t.Errorf("healthy: status = %d body = %s", rec.Code, rec.Body)
	}

	down := newRouterFixture(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
		"rabbitmq": func(ctx context.Context) error { return errors.New("disconnected") },
	})
	rec = httptest.NewRecorder()
	down.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"rabbitmq":"error: disconnected"`) {
		t.Errorf("unhealthy: status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
