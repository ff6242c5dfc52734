package session

import (
	"strings"

	"github.com/manash/imgedit/pkg/models"
)

// Token identifies one edit attempt. Tokens grow monotonically; zero means
// no attempt is in flight.
type Token uint64

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomePending
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

// Outcome is the current state of an edit attempt. Result is set only for
// OutcomeSuccess and Message only for OutcomeFailure.
type Outcome struct {
	Kind    OutcomeKind
	Result  models.ImageAsset
	Message string
}

func Pending() Outcome {
	return Outcome{Kind: OutcomePending}
}

func Success(result models.ImageAsset) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func Failure(message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: message}
}

func (o Outcome) IsNone() bool    { return o.Kind == OutcomeNone }
func (o Outcome) IsPending() bool { return o.Kind == OutcomePending }
func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }
func (o Outcome) IsFailure() bool { return o.Kind == OutcomeFailure }

// Equal compares kind, message and result payload.
func (o Outcome) Equal(other Outcome) bool {
	return o.Kind == other.Kind && o.Message == other.Message && o.Result.Equal(other.Result)
}

// Phase is the orchestration state: Idle, then Submitting, then Completed or
// Failed. Upload, clear and replay return it to Idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// EditRequest is the transient input of one orchestration attempt.
type EditRequest struct {
	Source models.ImageAsset
	Prompt string
}

func (r EditRequest) validate() error {
	switch {
	case r.Source.IsZero() && strings.TrimSpace(r.Prompt) == "":
		return invalidRequest("no image uploaded and prompt is empty")
	case r.Source.IsZero():
		return invalidRequest("no image uploaded")
	case strings.TrimSpace(r.Prompt) == "":
		return invalidRequest("prompt is empty")
	}
	return nil
}

// Snapshot is a read-only view of the session for rendering.
type Snapshot struct {
	Image         models.ImageAsset
	Prompt        string
	Outcome       Outcome
	Phase         Phase
	InFlight      Token
	ImagePreview  string
	ResultPreview string
}

func (s Snapshot) HasImage() bool {
	return !s.Image.IsZero()
}

// Error returns the failure message, if the current outcome is a failure.
func (s Snapshot) Error() string {
	if s.Outcome.IsFailure() {
		return s.Outcome.Message
	}
	return ""
}
