// infrastructure/gemini_client.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/vitovidale/clip-processor-service/domain"
	"google.golang.org/genai"
)

// GeminiClient serves clip analysis and transcript refinement through the
// Gemini API in JSON response mode. The SDK client is built on first use so
// a missing key only fails the calls that need it.
type GeminiClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGeminiClient(baseURL, apiKey, model string) *GeminiClient {
	return &GeminiClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	}
}

var errEmptyGeneration = errors.New("model returned no content")

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:     c.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.HTTPClient,
		}
		if c.BaseURL != "" {
			cc.HTTPOptions.BaseURL = c.BaseURL
		}
		c.client, c.initErr = genai.NewClient(ctx, cc)
		if c.initErr != nil {
			c.initErr = fmt.Errorf("create gemini client: %w", c.initErr)
		}
	})
	return c.client, c.initErr
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, c.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("generateContent: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errEmptyGeneration
	}
	return text, nil
}

// Analyze asks the model for clip proposals. Items are returned as given;
// timestamp validation happens downstream.
func (c *GeminiClient) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	raw, err := c.generate(ctx, analysisPrompt(req))
	if err != nil {
		return nil, err
	}
	clips, err := decodeAIClips(raw)
	if err != nil {
		return nil, err
	}
	return &domain.AnalysisResult{Clips: clips, RawResponse: raw}, nil
}

// decodeAIClips accepts {"clips": [...]} or a bare array.
func decodeAIClips(raw string) ([]domain.AIClip, error) {
	text := strings.TrimSpace(stripCodeFence(raw))
	if strings.HasPrefix(text, "[") {
		var clips []domain.AIClip
		if err := json.Unmarshal([]byte(text), &clips); err != nil {
			return nil, fmt.Errorf("decode clip list: %w", err)
		}
		return clips, nil
	}
	var wrapped struct {
		Clips []domain.AIClip `json:"clips"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, fmt.Errorf("decode clip list: %w", err)
	}
	return wrapped.Clips, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func analysisPrompt(req domain.AnalysisRequest) string {
	var sb strings.Builder
	sb.WriteString("You select short, self-contained clips from a long video using its transcript.\n")
	sb.WriteString("Respond with JSON: {\"clips\": [{\"title\": string, \"startTime\": \"HH:MM:SS\", \"endTime\": \"HH:MM:SS\", \"transcript\": string, \"reason\": string}]}.\n")
	if req.DurationSecs != nil {
		fmt.Fprintf(&sb, "The video lasts %s. Never exceed it.\n", domain.FormatTimecode(*req.DurationSecs))
	}
	if req.Instructions != "" {
		fmt.Fprintf(&sb, "Editor instructions: %s\n", req.Instructions)
	}
	sb.WriteString("\nTranscript:\n")
	writeTimedTranscript(&sb, req.Transcript)
	return sb.String()
}

func writeTimedTranscript(sb *strings.Builder, t domain.TranscriptSource) {
	if len(t.Segments) == 0 {
		sb.WriteString(t.FullText)
		sb.WriteByte('\n')
		return
	}
	for _, s := range t.Segments {
		fmt.Fprintf(sb, "[%s - %s] %s\n", domain.FormatTimecode(s.StartSeconds), domain.FormatTimecode(s.EndSeconds), s.Text)
	}
}

type refinedSegment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Refine corrects the wording of each segment. Timings always come from the
// raw transcript; the model only rewrites text.
func (c *GeminiClient) Refine(ctx context.Context, t *domain.Transcription) (*domain.RefinementResult, error) {
	if len(t.Segments) == 0 {
		return nil, fmt.Errorf("transcription %s has no segments to refine", t.ID)
	}
	raw, err := c.generate(ctx, refinePrompt(t))
	if err != nil {
		return nil, err
	}
	var out struct {
		Segments []refinedSegment `json:"segments"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return nil, fmt.Errorf("decode refinement: %w", err)
	}
	return mergeRefinement(t, out.Segments, c.Model)
}

func mergeRefinement(t *domain.Transcription, refined []refinedSegment, model string) (*domain.RefinementResult, error) {
	segments := make([]domain.TranscriptionSegment, len(t.Segments))
	copy(segments, t.Segments)
	applied := 0
	for _, r := range refined {
		text := strings.TrimSpace(r.Text)
		if r.Index < 0 || r.Index >= len(segments) || text == "" {
			continue
		}
		segments[r.Index].Text = text
		applied++
	}
	if applied == 0 {
		return nil, fmt.Errorf("refinement matched no segments")
	}
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return &domain.RefinementResult{FullText: strings.Join(texts, " "), Segments: segments, Model: model}, nil
}

func refinePrompt(t *domain.Transcription) string {
	var sb strings.Builder
	sb.WriteString("Fix speech-recognition errors, punctuation and casing in each numbered segment. Keep the language")
	if t.LanguageCode != "" {
		fmt.Fprintf(&sb, " (%s)", t.LanguageCode)
	}
	sb.WriteString(" and do not merge or split segments.\n")
	sb.WriteString("Respond with JSON: {\"segments\": [{\"index\": number, \"text\": string}]}.\n\n")
	for i, s := range t.Segments {
		fmt.Fprintf(&sb, "%d: %s\n", i, s.Text)
	}
	return sb.String()
}
