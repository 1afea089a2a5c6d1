package domain

import "testing"

func TestVideo_ForwardLifecycle(t *testing.T) {
	v := NewVideo("file-1", "https://drive.google.com/file/d/file-1/view")
	if v.Status != VideoStatusPending {
		t.Fatalf("new video status = %s, want pending", v.Status)
	}

	steps := []VideoStatus{VideoStatusTranscribing, VideoStatusTranscribed, VideoStatusExtracting, VideoStatusCompleted}
	for _, s := range steps {
		if err := v.TransitionTo(s); err != nil {
			t.Fatalf("TransitionTo(%s) error = %v", s, err)
		}
		if err := v.Validate(); err != nil {
			t.Fatalf("Validate() after %s error = %v", s, err)
		}
	}
}

func TestVideo_InvalidTransitionsAreConflicts(t *testing.T) {
	tests := []struct {
		from, to VideoStatus
	}{
		{VideoStatusPending, VideoStatusTranscribed},
		{VideoStatusPending, VideoStatusCompleted},
		{VideoStatusTranscribing, VideoStatusExtracting},
		{VideoStatusTranscribed, VideoStatusPending},
		{VideoStatusFailed, VideoStatusTranscribing},
		{VideoStatusCompleted, VideoStatusFailed},
	}
	for _, tt := range tests {
		v := &Video{Status: tt.from}
		err := v.TransitionTo(tt.to)
		if !IsKind(err, KindConflict) {
			t.Errorf("%s -> %s: error = %v, want conflict", tt.from, tt.to, err)
		}
		if v.Status != tt.from {
			t.Errorf("%s -> %s: status changed to %s", tt.from, tt.to, v.Status)
		}
	}
}

func TestVideo_PhaseClearedOnStatusChange(t *testing.T) {
	v := &Video{Status: VideoStatusPending}
	if err := v.EnterPhase(PhaseDownloading); err == nil {
		t.Fatal("EnterPhase() on pending video should fail")
	}
	if err := v.TransitionTo(VideoStatusTranscribing); err != nil {
		t.Fatal(err)
	}
	if err := v.EnterPhase(PhaseRefining); err != nil {
		t.Fatalf("EnterPhase() error = %v", err)
	}
	if v.PhaseString() != "refining" {
		t.Errorf("phase = %q, want refining", v.PhaseString())
	}
	if err := v.TransitionTo(VideoStatusTranscribed); err != nil {
		t.Fatal(err)
	}
	if v.TranscriptionPhase != nil {
		t.Error("phase not cleared after leaving transcribing")
	}
}

func TestVideo_MarkFailedRecordsMessage(t *testing.T) {
	v := &Video{Status: VideoStatusTranscribing}
	_ = v.EnterPhase(PhaseTranscribing)
	if err := v.MarkFailed("speech service unavailable"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if v.Status != VideoStatusFailed || v.ErrorString() != "speech service unavailable" {
		t.Errorf("video = %s / %q", v.Status, v.ErrorString())
	}
	if v.TranscriptionPhase != nil {
		t.Error("phase should be cleared on failure")
	}
	if err := v.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestVideo_ValidateInvariants(t *testing.T) {
	phase := PhaseSaving
	v := &Video{Status: VideoStatusTranscribed, TranscriptionPhase: &phase}
	if !IsKind(v.Validate(), KindIntegrity) {
		t.Error("phase outside transcribing should be an integrity error")
	}
	v = &Video{Status: VideoStatusFailed}
	if !IsKind(v.Validate(), KindIntegrity) {
		t.Error("failed without message should be an integrity error")
	}
}

func TestVideo_Rewind(t *testing.T) {
	msg := "boom"
	v := &Video{Status: VideoStatusFailed, ErrorMessage: &msg}
	if err := v.Rewind(VideoStatusPending); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	if v.Status != VideoStatusPending || v.ErrorMessage != nil {
		t.Errorf("after rewind: %s / %v", v.Status, v.ErrorMessage)
	}

	v = &Video{Status: VideoStatusPending}
	if err := v.Rewind(VideoStatusTranscribed); err == nil {
		t.Error("rewinding pending to transcribed should fail")
	}
}
