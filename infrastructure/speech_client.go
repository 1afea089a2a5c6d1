// infrastructure/speech_client.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/vitovidale/clip-processor-service/domain"
)

// WhisperSpeechClient calls a Whisper-compatible /audio/transcriptions
// endpoint. Audio is streamed into the multipart body and never buffered.
type WhisperSpeechClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewWhisperSpeechClient(baseURL, apiKey, model string) *WhisperSpeechClient {
	return &WhisperSpeechClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{},
	}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (c *WhisperSpeechClient) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (*domain.SpeechResult, error) {
	boundary := multipart.NewWriter(io.Discard).Boundary()
	body, _ := pipeBody(func(w io.Writer) error {
		mw := multipart.NewWriter(w)
		if err := mw.SetBoundary(boundary); err != nil {
			return err
		}
		return c.writeForm(mw, audio, mimeType)
	})
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, "transcription"); err != nil {
		return nil, err
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	return toSpeechResult(out), nil
}

// pipeBody runs write in its own goroutine, feeding the returned reader.
// Closing the reader releases a writer still blocked on it; wait returns the
// writer's result once it has finished.
func pipeBody(write func(io.Writer) error) (body io.ReadCloser, wait func() error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := write(pw)
		pw.CloseWithError(err)
		done <- err
	}()
	return pr, func() error { return <-done }
}

func (c *WhisperSpeechClient) writeForm(mw *multipart.Writer, audio io.Reader, mimeType string) error {
	fields := [][2]string{
		{"model", c.Model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	ext := "wav"
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		ext = sub
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="audio.%s"`, ext))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return err
	}
	return mw.Close()
}

func toSpeechResult(out whisperResponse) *domain.SpeechResult {
	res := &domain.SpeechResult{
		FullText:        strings.TrimSpace(out.Text),
		LanguageCode:    out.Language,
		DurationSeconds: out.Duration,
		Segments:        make([]domain.TranscriptionSegment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		res.Segments = append(res.Segments, domain.TranscriptionSegment{
			Text:         strings.TrimSpace(s.Text),
			StartSeconds: s.Start,
			EndSeconds:   end,
			Confidence:   math.Min(1, math.Exp(s.AvgLogprob)),
		})
	}
	if res.DurationSeconds == 0 && len(res.Segments) > 0 {
		res.DurationSeconds = res.Segments[len(res.Segments)-1].EndSeconds
	}
	return res
}

// checkResponse turns a non-2xx response into an error carrying a bounded
// slice of the body.
func checkResponse(resp *http.Response, what string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &httpStatusError{What: what, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

type httpStatusError struct {
	What       string
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.What, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.What, e.StatusCode, e.Body)
}
