package domain

import (
	"reflect"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestParseTimecode(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "00:00:00", want: 0},
		{in: "00:01:30", want: 90},
		{in: "01:02:03", want: 3723},
		{in: " 00:00:10 ", want: 10},
		{in: "00:00:10.5", want: 10.5},
		{in: "100:00:00", want: 360000},
		{in: "00:60:00", wantErr: true},
		{in: "00:00:60", wantErr: true},
		{in: "1:30", wantErr: true},
		{in: "00:1:30", wantErr: true},
		{in: "aa:bb:cc", wantErr: true},
		{in: "00:00:10.", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1:00:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimecode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimecode(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimecode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimecode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimecode(t *testing.T) {
	if got := FormatTimecode(3723.9); got != "01:02:03" {
		t.Errorf("FormatTimecode() = %s, want 01:02:03", got)
	}
	if got := FormatTimecode(-5); got != "00:00:00" {
		t.Errorf("FormatTimecode(-5) = %s, want 00:00:00", got)
	}
}

func TestExtractThenValidate_PreservesValidItems(t *testing.T) {
	duration := floatPtr(600)
	pairs := [][2]string{
		{"00:00:00", "00:00:01"},
		{"00:01:00", "00:02:30"},
		{"00:09:59", "00:10:00"},
		{"00:05:00", "00:05:00.5"},
	}
	for _, p := range pairs {
		in := []AIClip{{Title: "t", StartTime: p[0], EndTime: p[1], Transcript: "x", Reason: "r"}}
		extracted, rejected := ExtractTimestamps(in)
		if len(rejected) != 0 {
			t.Fatalf("ExtractTimestamps(%v) rejected = %v", p, rejected)
		}
		validated, rejected := ValidateTimestamps(extracted, duration)
		if len(rejected) != 0 {
			t.Fatalf("ValidateTimestamps(%v) rejected = %v", p, rejected)
		}
		if !reflect.DeepEqual(validated, extracted) {
			t.Errorf("validated = %+v, want %+v", validated, extracted)
		}
	}
}

func TestExtractTimestamps_DropsMalformedItemsOnly(t *testing.T) {
	in := []AIClip{
		{Title: "good", StartTime: "00:00:10", EndTime: "00:00:20"},
		{Title: "bad start", StartTime: "ten", EndTime: "00:00:20"},
		{Title: "bad end", StartTime: "00:00:10", EndTime: "00:00:99"},
		{Title: "also good", StartTime: "00:01:00", EndTime: "00:01:30"},
	}
	out, rejected := ExtractTimestamps(in)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Title != "good" || out[1].Title != "also good" {
		t.Errorf("kept titles = %q, %q", out[0].Title, out[1].Title)
	}
	if len(rejected) != 2 || rejected[0].Index != 1 || rejected[1].Index != 2 {
		t.Errorf("rejected = %+v, want indexes 1 and 2", rejected)
	}
}

func TestValidateTimestamps_RemovesExactlyClipsPastDuration(t *testing.T) {
	in := []ClipCandidate{
		{Title: "a", StartSeconds: 0, EndSeconds: 10},
		{Title: "b", StartSeconds: 50, EndSeconds: 61},
		{Title: "c", StartSeconds: 20, EndSeconds: 60},
		{Title: "d", StartSeconds: 59, EndSeconds: 120},
	}
	out, rejected := ValidateTimestamps(in, floatPtr(60))
	if len(out) != 2 || out[0].Title != "a" || out[1].Title != "c" {
		t.Fatalf("out = %+v, want a and c", out)
	}
	if len(rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2", rejected)
	}
}

func TestValidateTimestamps_Rules(t *testing.T) {
	tests := []struct {
		name     string
		clip     ClipCandidate
		duration *float64
		keep     bool
	}{
		{"start equals end", ClipCandidate{StartSeconds: 5, EndSeconds: 5}, nil, false},
		{"start after end", ClipCandidate{StartSeconds: 6, EndSeconds: 5}, nil, false},
		{"start at duration", ClipCandidate{StartSeconds: 60, EndSeconds: 70}, floatPtr(60), false},
		{"end at duration", ClipCandidate{StartSeconds: 50, EndSeconds: 60}, floatPtr(60), true},
		{"unknown duration keeps long clip", ClipCandidate{StartSeconds: 5000, EndSeconds: 6000}, nil, true},
		{"negative start", ClipCandidate{StartSeconds: -1, EndSeconds: 5}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := ValidateTimestamps([]ClipCandidate{tt.clip}, tt.duration)
			if got := len(out) == 1; got != tt.keep {
				t.Errorf("kept = %v, want %v", got, tt.keep)
			}
		})
	}
}

func TestSortByStartTime_StableAndNonMutating(t *testing.T) {
	in := []ClipCandidate{
		{Title: "late", StartSeconds: 30, EndSeconds: 40},
		{Title: "first-a", StartSeconds: 10, EndSeconds: 20},
		{Title: "first-b", StartSeconds: 10, EndSeconds: 15},
	}
	out := SortByStartTime(in)
	if in[0].Title != "late" {
		t.Error("SortByStartTime mutated its input")
	}
	want := []string{"first-a", "first-b", "late"}
	for i, w := range want {
		if out[i].Title != w {
			t.Errorf("out[%d] = %s, want %s", i, out[i].Title, w)
		}
	}
}

func TestFindOverlaps(t *testing.T) {
	in := []ClipCandidate{
		{StartSeconds: 0, EndSeconds: 10},
		{StartSeconds: 5, EndSeconds: 15},
		{StartSeconds: 20, EndSeconds: 30},
	}
	got := FindOverlaps(in)
	want := []OverlapPair{{First: 0, Second: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindOverlaps() = %v, want %v", got, want)
	}
}

func TestFindOverlaps_IndexesIntoSortedSequence(t *testing.T) {
	in := []ClipCandidate{
		{StartSeconds: 20, EndSeconds: 30},
		{StartSeconds: 25, EndSeconds: 35},
		{StartSeconds: 0, EndSeconds: 10},
	}
	got := FindOverlaps(in)
	want := []OverlapPair{{First: 1, Second: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindOverlaps() = %v, want %v", got, want)
	}
}

func TestFindOverlaps_TouchingIsNotOverlap(t *testing.T) {
	in := []ClipCandidate{
		{StartSeconds: 0, EndSeconds: 10},
		{StartSeconds: 10, EndSeconds: 20},
	}
	if got := FindOverlaps(in); len(got) != 0 {
		t.Errorf("FindOverlaps() = %v, want none", got)
	}
}
