// domain/subtitle.go
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type SubtitleStatus string

const (
	SubtitleStatusDraft     SubtitleStatus = "draft"
	SubtitleStatusConfirmed SubtitleStatus = "confirmed"
)

const (
	DefaultSubtitleMaxChars = 16
	MaxSubtitleLines        = 2
)

type SubtitleSegment struct {
	Index        int      `json:"index"`
	Lines        []string `json:"lines"`
	StartSeconds float64  `json:"start_seconds"`
	EndSeconds   float64  `json:"end_seconds"`
}

// ClipSubtitle is editable while draft and frozen once confirmed.
type ClipSubtitle struct {
	ID          string            `json:"id"`
	ClipID      string            `json:"clip_id"`
	Segments    []SubtitleSegment `json:"segments"`
	Status      SubtitleStatus    `json:"status"`
	MaxChars    int               `json:"max_chars"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
}

func NewClipSubtitle(clipID string, maxChars int, segments []SubtitleSegment) *ClipSubtitle {
	now := time.Now().UTC()
	return &ClipSubtitle{
		ID:        uuid.NewString(),
		ClipID:    clipID,
		Segments:  segments,
		Status:    SubtitleStatusDraft,
		MaxChars:  maxChars,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ReplaceSegments swaps the draft content after validating it.
func (s *ClipSubtitle) ReplaceSegments(segments []SubtitleSegment, clipDuration float64) error {
	if s.Status != SubtitleStatusDraft {
		return NewConflictError("subtitle.update", "subtitle %s is %s", s.ID, s.Status)
	}
	if err := ValidateSubtitleSegments(segments, s.MaxChars, clipDuration); err != nil {
		return err
	}
	s.Segments = segments
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *ClipSubtitle) Confirm() error {
	if s.Status != SubtitleStatusDraft {
		return NewConflictError("subtitle.confirm", "subtitle %s is already %s", s.ID, s.Status)
	}
	now := time.Now().UTC()
	s.Status = SubtitleStatusConfirmed
	s.ConfirmedAt = &now
	s.UpdatedAt = now
	return nil
}

// ValidateSubtitleSegments checks ordering, line bounds and timing.
func ValidateSubtitleSegments(segments []SubtitleSegment, maxChars int, clipDuration float64) error {
	prevEnd := 0.0
	for i, seg := range segments {
		if len(seg.Lines) == 0 || len(seg.Lines) > MaxSubtitleLines {
			return NewValidationError("subtitle.validate", "segment %d has %d lines, want 1-%d", i, len(seg.Lines), MaxSubtitleLines)
		}
		for _, line := range seg.Lines {
			if n := utf8.RuneCountInString(line); n > maxChars {
				return NewValidationError("subtitle.validate", "segment %d line has %d characters, max %d", i, n, maxChars)
			}
		}
		if seg.StartSeconds < 0 || seg.EndSeconds <= seg.StartSeconds {
			return NewValidationError("subtitle.validate", "segment %d has invalid range %.3f-%.3f", i, seg.StartSeconds, seg.EndSeconds)
		}
		if clipDuration > 0 && seg.EndSeconds > clipDuration+0.001 {
			return NewValidationError("subtitle.validate", "segment %d ends after clip end", i)
		}
		if seg.StartSeconds < prevEnd-0.001 {
			return NewValidationError("subtitle.validate", "segment %d overlaps the previous segment", i)
		}
		prevEnd = seg.EndSeconds
	}
	return nil
}

// BuildSubtitleSegments re-times transcript segments overlapping
// [clipStart, clipEnd) relative to the clip start and wraps their text into
// segments of at most two lines of maxChars runes.
func BuildSubtitleSegments(transcript []TranscriptionSegment, clipStart, clipEnd float64, maxChars int) []SubtitleSegment {
	if maxChars <= 0 {
		maxChars = DefaultSubtitleMaxChars
	}
	var out []SubtitleSegment
	for _, ts := range transcript {
		if ts.EndSeconds <= clipStart || ts.StartSeconds >= clipEnd {
			continue
		}
		start := math.Max(ts.StartSeconds, clipStart) - clipStart
		end := math.Min(ts.EndSeconds, clipEnd) - clipStart
		if end <= start {
			continue
		}
		lines := WrapSubtitleText(ts.Text, maxChars)
		if len(lines) == 0 {
			continue
		}

		groups := groupLines(lines, MaxSubtitleLines)
		total := 0
		for _, g := range groups {
			total += runeCount(g)
		}
		cursor := start
		for gi, g := range groups {
			segEnd := end
			if gi < len(groups)-1 && total > 0 {
				segEnd = cursor + (end-start)*float64(runeCount(g))/float64(total)
			}
			out = append(out, SubtitleSegment{
				Index:        len(out) + 1,
				Lines:        g,
				StartSeconds: roundMillis(cursor),
				EndSeconds:   roundMillis(segEnd),
			})
			cursor = segEnd
		}
	}
	return out
}

// WrapSubtitleText breaks text on spaces when it has them, and by rune count
// otherwise (CJK text).
func WrapSubtitleText(text string, maxChars int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	var lines []string
	if strings.Contains(text, " ") {
		current := ""
		for _, word := range strings.Fields(text) {
			for utf8.RuneCountInString(word) > maxChars {
				if current != "" {
					lines = append(lines, current)
					current = ""
				}
				r := []rune(word)
				lines = append(lines, string(r[:maxChars]))
				word = string(r[maxChars:])
			}
			switch {
			case current == "":
				current = word
			case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= maxChars:
				current += " " + word
			default:
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		}
		return lines
	}
	r := []rune(text)
	for len(r) > maxChars {
		lines = append(lines, string(r[:maxChars]))
		r = r[maxChars:]
	}
	if len(r) > 0 {
		lines = append(lines, string(r))
	}
	return lines
}

// RenderSRT renders the segments as SubRip text.
func (s *ClipSubtitle) RenderSRT() string {
	var b strings.Builder
	for i, seg := range s.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(seg.StartSeconds), srtTimestamp(seg.EndSeconds), strings.Join(seg.Lines, "\n"))
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms%3600000)/60000, (ms%60000)/1000, ms%1000)
}

func groupLines(lines []string, size int) [][]string {
	var groups [][]string
	for i := 0; i < len(lines); i += size {
		end := i + size
		if end > len(lines) {
			end = len(lines)
		}
		groups = append(groups, lines[i:end])
	}
	return groups
}

func runeCount(lines []string) int {
	n := 0
	for _, l := range lines {
		n += utf8.RuneCountInString(l)
	}
	return n
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
