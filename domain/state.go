// domain/state.go
package domain

// allowedTransitions is the forward lifecycle of a video. Backward moves go
// through Rewind and rewindTargets only.
var allowedTransitions = map[VideoStatus]map[VideoStatus]bool{
	VideoStatusPending: {
		VideoStatusTranscribing: true,
		VideoStatusFailed:       true,
	},
	VideoStatusTranscribing: {
		VideoStatusTranscribed: true,
		VideoStatusFailed:      true,
	},
	VideoStatusTranscribed: {
		VideoStatusExtracting: true,
		VideoStatusFailed:     true,
	},
	VideoStatusExtracting: {
		VideoStatusCompleted: true,
		VideoStatusFailed:    true,
	},
	VideoStatusCompleted: {
		VideoStatusExtracting: true, // new extraction request on a finished video
	},
	VideoStatusFailed: {},
}

var rewindTargets = map[VideoStatus]map[VideoStatus]bool{
	VideoStatusPending: {
		VideoStatusPending: true,
	},
	VideoStatusTranscribing: {
		VideoStatusPending: true,
	},
	VideoStatusTranscribed: {
		VideoStatusPending:     true,
		VideoStatusTranscribed: true,
	},
	VideoStatusExtracting: {
		VideoStatusPending:     true,
		VideoStatusTranscribed: true,
	},
	VideoStatusCompleted: {
		VideoStatusPending:     true,
		VideoStatusTranscribed: true,
	},
	VideoStatusFailed: {
		VideoStatusPending:     true,
		VideoStatusTranscribed: true,
	},
}

func IsKnownVideoStatus(status VideoStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to VideoStatus) bool {
	return allowedTransitions[from][to]
}

func IsTerminal(status VideoStatus) bool {
	return status == VideoStatusCompleted || status == VideoStatusFailed
}

// TransitionTo moves the video forward. Any status other than transcribing
// clears the phase; entering transcribing sets the given phase.
func (v *Video) TransitionTo(to VideoStatus) error {
	if !CanTransition(v.Status, to) {
		return NewConflictError("video.transition", "invalid transition: %s -> %s", v.Status, to)
	}
	v.Status = to
	v.TranscriptionPhase = nil
	if to != VideoStatusFailed {
		v.ErrorMessage = nil
	}
	v.touch()
	return nil
}

// EnterPhase records progress inside the transcribing status.
func (v *Video) EnterPhase(phase TranscriptionPhase) error {
	if v.Status != VideoStatusTranscribing {
		return NewConflictError("video.phase", "phase %s requires status transcribing, got %s", phase, v.Status)
	}
	if !knownPhases[phase] {
		return NewValidationError("video.phase", "unknown phase %q", phase)
	}
	p := phase
	v.TranscriptionPhase = &p
	v.touch()
	return nil
}

// MarkFailed moves any non-terminal video to failed and records the message.
func (v *Video) MarkFailed(message string) error {
	if message == "" {
		message = "unknown error"
	}
	if v.Status == VideoStatusFailed {
		v.ErrorMessage = &message
		v.touch()
		return nil
	}
	if err := v.TransitionTo(VideoStatusFailed); err != nil {
		return err
	}
	v.ErrorMessage = &message
	return nil
}

// Rewind is the reset transition: it moves the video backward to target and
// clears phase and error.
func (v *Video) Rewind(target VideoStatus) error {
	if !rewindTargets[v.Status][target] {
		return NewConflictError("video.rewind", "cannot rewind %s to %s", v.Status, target)
	}
	v.Status = target
	v.TranscriptionPhase = nil
	v.ErrorMessage = nil
	v.touch()
	return nil
}
