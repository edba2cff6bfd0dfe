package workflow

import (
	"fmt"

	apperrors "go-cleanup-agent/internal/errors"
)

// State is the single tagged workflow state. Keeping one value instead of
// independent boolean flags makes impossible combinations (verifying while
// the camera is active, submitting without a verdict) unrepresentable.
type State string

const (
	StateIdle             State = "idle"
	StateLocationPending  State = "location_pending"
	StateOutOfRange       State = "out_of_range"
	StateReady            State = "ready"
	StateCameraPending    State = "camera_pending"
	StateCameraActive     State = "camera_active"
	StateVerifying        State = "verifying"
	StateVerifiedPositive State = "verified_positive"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
)

// Event is a discrete workflow occurrence: an operator action or the
// resolution of an external call.
type Event string

const (
	EventLocationRequested Event = "location_requested"
	EventLocationFailed    Event = "location_failed"
	EventProximityPassed   Event = "proximity_passed"
	EventProximityFailed   Event = "proximity_failed"
	EventCameraRequested   Event = "camera_requested"
	EventCameraOpened      Event = "camera_opened"
	EventCameraFailed      Event = "camera_failed"
	EventFrameCaptured     Event = "frame_captured"
	EventVerdictPositive   Event = "verdict_positive"
	EventVerdictNegative   Event = "verdict_negative"
	EventSubmitRequested   Event = "submit_requested"
	EventSubmitSucceeded   Event = "submit_succeeded"
	EventSubmitFailed      Event = "submit_failed"
)

// Effect is a resource action the orchestrator must perform when a
// transition fires.
type Effect string

const (
	EffectCloseCamera    Effect = "close_camera"
	EffectDiscardCapture Effect = "discard_capture"
	EffectDiscardVerdict Effect = "discard_verdict"
)

type transition struct {
	next    State
	effects []Effect
}

// transitions is the complete legal transition table. A negative or failed
// verification lands back in ready (the capture is discarded and the camera
// must be reopened); a failed submission lands back in verified_positive
// (image and verdict stay valid, submission is retryable without
// re-verification).
var transitions = map[State]map[Event]transition{
	StateIdle: {
		EventLocationRequested: {next: StateLocationPending},
	},
	StateLocationPending: {
		EventLocationFailed:  {next: StateIdle},
		EventProximityPassed: {next: StateReady},
		EventProximityFailed: {next: StateOutOfRange},
	},
	StateOutOfRange: {
		EventLocationRequested: {next: StateLocationPending},
	},
	StateReady: {
		EventLocationRequested: {next: StateLocationPending},
		EventCameraRequested:   {next: StateCameraPending},
	},
	StateCameraPending: {
		EventCameraOpened: {next: StateCameraActive},
		EventCameraFailed: {next: StateReady},
	},
	StateCameraActive: {
		EventFrameCaptured: {next: StateVerifying, effects: []Effect{EffectCloseCamera}},
	},
	StateVerifying: {
		EventVerdictPositive: {next: StateVerifiedPositive},
		EventVerdictNegative: {next: StateReady, effects: []Effect{EffectDiscardCapture}},
	},
	StateVerifiedPositive: {
		EventSubmitRequested: {next: StateSubmitting},
		// Re-capture invalidates the held image and verdict
		EventCameraRequested: {next: StateCameraPending, effects: []Effect{EffectDiscardCapture, EffectDiscardVerdict}},
	},
	StateSubmitting: {
		EventSubmitSucceeded: {next: StateSubmitted},
		EventSubmitFailed:    {next: StateVerifiedPositive},
	},
}

// Transition is the pure transition function: given the current state and an
// event it returns the next state and the effects to perform, or an
// invalid-transition error. It has no side effects.
func Transition(state State, event Event) (State, []Effect, error) {
	if byEvent, ok := transitions[state]; ok {
		if t, ok := byEvent[event]; ok {
			return t.next, t.effects, nil
		}
	}
	return state, nil, apperrors.NewInvalidTransitionError(
		fmt.Sprintf("event %s is not allowed in state %s", event, state))
}
