package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/vitovidale/clip-processor-service/domain"
	"github.com/vitovidale/clip-processor-service/logging"
)

func TestSubtitleUseCase_Lifecycle(t *testing.T) {
	h := newHarness(t)
	v := completedVideo(t, h)
	ctx := context.Background()
	uc := &SubtitleUseCase{ClipRepo: h.clips, TranscriptionRepo: h.trans, Logger: logging.Discard(), MaxChars: 16}

	clips, _ := h.clips.ListByVideoID(ctx, v.ID)
	var done, failed domain.Clip
	for _, c := range clips {
		if c.Status == domain.ClipStatusCompleted {
			done = c
		} else {
			failed = c
		}
	}

	if _, err := uc.Generate(ctx, failed.ID); !domain.IsKind(err, domain.KindConflict) {
		t.Errorf("Generate() on failed clip error = %v, want conflict", err)
	}
	if _, err := uc.Get(ctx, done.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("Get() before generate error = %v, want not found", err)
	}

	sub, err := uc.Generate(ctx, done.ID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sub.Status != domain.SubtitleStatusDraft || len(sub.Segments) == 0 {
		t.Fatalf("subtitle = %+v", sub)
	}

	edited := []domain.SubtitleSegment{{Lines: []string{"hello there"}, StartSeconds: 0, EndSeconds: 4}}
	updated, err := uc.Update(ctx, done.ID, edited)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Segments) != 1 || updated.Segments[0].Index != 1 {
		t.Errorf("segments = %+v", updated.Segments)
	}

	tooLong := []domain.SubtitleSegment{{Lines: []string{"this line is far too long"}, StartSeconds: 0, EndSeconds: 4}}
	if _, err := uc.Update(ctx, done.ID, tooLong); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Update() with long line error = %v, want validation", err)
	}

	if _, err := uc.Confirm(ctx, done.ID); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if _, err := uc.Update(ctx, done.ID, edited); !domain.IsKind(err, domain.KindConflict) {
		t.Errorf("Update() after confirm error = %v, want conflict", err)
	}
	if _, err := uc.Generate(ctx, done.ID); !domain.IsKind(err, domain.KindConflict) {
		t.Errorf("Generate() after confirm error = %v, want conflict", err)
	}

	srt, err := uc.SRT(ctx, done.ID)
	if err != nil {
		t.Fatalf("SRT() error = %v", err)
	}
	if !strings.HasPrefix(srt, "1\n00:00:00,000 --> 00:00:04,000\nhello there") {
		t.Errorf("SRT() = %q", srt)
	}
}
