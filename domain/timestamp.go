// domain/timestamp.go
package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// AIClip is one clip proposed by the analysis service, times as "HH:MM:SS".
type AIClip struct {
	Title      string `json:"title"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Transcript string `json:"transcript"`
	Reason     string `json:"reason"`
}

// ClipCandidate is a clip boundary in seconds, not yet validated against the
// video duration.
type ClipCandidate struct {
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Transcript   string  `json:"transcript,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// RejectedClip is an item dropped during extraction or validation. Index is
// the position in the input of the call that rejected it.
type RejectedClip struct {
	Index  int
	Title  string
	Reason string
}

// OverlapPair holds indexes into the start-sorted sequence.
type OverlapPair struct {
	First  int
	Second int
}

// ParseTimecode parses "HH:MM:SS" with an optional fractional part
// ("01:02:03.5"). Minutes and seconds must be below 60.
func ParseTimecode(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timecode %q: want HH:MM:SS", s)
	}
	hours, err := parseTimecodeInt(parts[0], -1)
	if err != nil {
		return 0, fmt.Errorf("timecode %q: hours: %w", s, err)
	}
	minutes, err := parseTimecodeInt(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("timecode %q: minutes: %w", s, err)
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
	seconds, err := parseTimecodeInt(secPart, 59)
	if err != nil {
		return 0, fmt.Errorf("timecode %q: seconds: %w", s, err)
	}
	total := float64(hours*3600 + minutes*60 + seconds)
	if hasFrac {
		if fracPart == "" || strings.IndexFunc(fracPart, notDigit) >= 0 {
			return 0, fmt.Errorf("timecode %q: invalid fraction", s)
		}
		frac, _ := strconv.ParseFloat("0."+fracPart, 64)
		total += frac
	}
	return total, nil
}

func parseTimecodeInt(s string, max int) (int, error) {
	if s == "" || strings.IndexFunc(s, notDigit) >= 0 {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if max >= 0 && len(s) != 2 {
		return 0, fmt.Errorf("%q must have two digits", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if max >= 0 && n > max {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// FormatTimecode renders seconds as "HH:MM:SS", truncating fractions.
func FormatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// ExtractTimestamps converts AI clips to candidates. Items whose start or end
// does not parse are dropped and reported; the rest of the batch survives.
func ExtractTimestamps(clips []AIClip) ([]ClipCandidate, []RejectedClip) {
	out := make([]ClipCandidate, 0, len(clips))
	var rejected []RejectedClip
	for i, c := range clips {
		start, err := ParseTimecode(c.StartTime)
		if err != nil {
			rejected = append(rejected, RejectedClip{Index: i, Title: c.Title, Reason: "start: " + err.Error()})
			continue
		}
		end, err := ParseTimecode(c.EndTime)
		if err != nil {
			rejected = append(rejected, RejectedClip{Index: i, Title: c.Title, Reason: "end: " + err.Error()})
			continue
		}
		out = append(out, ClipCandidate{
			Title:        c.Title,
			StartSeconds: start,
			EndSeconds:   end,
			Transcript:   c.Transcript,
			Reason:       c.Reason,
		})
	}
	return out, rejected
}

// ValidateTimestamps drops candidates with start >= end and, when the video
// duration is known, those with start >= duration or end > duration.
func ValidateTimestamps(candidates []ClipCandidate, videoDuration *float64) ([]ClipCandidate, []RejectedClip) {
	out := make([]ClipCandidate, 0, len(candidates))
	var rejected []RejectedClip
	for i, c := range candidates {
		reason := ""
		switch {
		case c.StartSeconds < 0:
			reason = fmt.Sprintf("start %.3f is negative", c.StartSeconds)
		case c.StartSeconds >= c.EndSeconds:
			reason = fmt.Sprintf("start %.3f is not before end %.3f", c.StartSeconds, c.EndSeconds)
		case videoDuration != nil && c.StartSeconds >= *videoDuration:
			reason = fmt.Sprintf("start %.3f is past duration %.3f", c.StartSeconds, *videoDuration)
		case videoDuration != nil && c.EndSeconds > *videoDuration:
			reason = fmt.Sprintf("end %.3f is past duration %.3f", c.EndSeconds, *videoDuration)
		}
		if reason != "" {
			rejected = append(rejected, RejectedClip{Index: i, Title: c.Title, Reason: reason})
			continue
		}
		out = append(out, c)
	}
	return out, rejected
}

// SortByStartTime returns a stably sorted copy; the input is not modified.
func SortByStartTime(candidates []ClipCandidate) []ClipCandidate {
	sorted := make([]ClipCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSeconds < sorted[j].StartSeconds
	})
	return sorted
}

// FindOverlaps reports every adjacent pair of the start-sorted sequence where
// the first clip ends after the second starts. Nothing is filtered.
func FindOverlaps(candidates []ClipCandidate) []OverlapPair {
	sorted := SortByStartTime(candidates)
	var pairs []OverlapPair
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i].EndSeconds > sorted[i+1].StartSeconds {
			pairs = append(pairs, OverlapPair{First: i, Second: i + 1})
		}
	}
	return pairs
}

// CandidatesFromRanges adapts caller-supplied ranges to candidates so they go
// through the same validation as AI output.
func CandidatesFromRanges(ranges []TimeRange) []ClipCandidate {
	out := make([]ClipCandidate, len(ranges))
	for i, r := range ranges {
		out[i] = ClipCandidate{Title: r.Title, StartSeconds: r.StartSeconds, EndSeconds: r.EndSeconds}
	}
	return out
}
