package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/internal/preview"
	"github.com/manash/imgedit/pkg/models"
)

var ErrInvalidRequest = errors.New("please upload an image and enter a prompt")

func invalidRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}

// State is the edit session aggregate: current image, prompt, outcome and
// the token of the attempt in flight. Every mutation, including late
// completions from editor goroutines, is serialized through mu.
type State struct {
	mu sync.Mutex

	image   models.ImageAsset
	prompt  string
	outcome Outcome
	phase   Phase

	lastToken   Token
	activeToken Token

	previews      *preview.Pool
	imagePreview  *preview.Handle
	resultPreview *preview.Handle

	logger *slog.Logger
}

// NewState returns an empty session. A nil pool serves in-memory data URL
// previews; a nil logger discards output.
func NewState(previews *preview.Pool, logger *slog.Logger) *State {
	if previews == nil {
		previews = preview.NewPool()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &State{previews: previews, logger: logger}
}

func (s *State) Upload(asset models.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidate("upload")
	s.releasePreviews()

	s.image = asset
	s.outcome = Outcome{}
	s.phase = PhaseIdle
	s.imagePreview = s.acquire(asset)
}

func (s *State) SetPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = text
}

// Clear resets image, prompt and outcome. It is safe mid-flight: the
// pending attempt becomes stale and its completion is dropped.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidate("clear")
	s.releasePreviews()

	s.image = models.ImageAsset{}
	s.prompt = ""
	s.outcome = Outcome{}
	s.phase = PhaseIdle
}

// BeginEdit marks a new attempt as pending and returns its token. Any
// earlier token becomes stale.
func (s *State) BeginEdit(req EditRequest) (Token, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeToken != 0 {
		s.logger.Debug("superseding in-flight edit", "token", s.activeToken)
	}

	s.lastToken++
	s.activeToken = s.lastToken

	s.release(&s.resultPreview)
	s.outcome = Pending()
	s.phase = PhaseSubmitting
	return s.activeToken, nil
}

// CompleteEdit applies the outcome if token is still the active attempt and
// reports whether it did.
func (s *State) CompleteEdit(token Token, outcome Outcome) bool {
	return s.complete(token, outcome, nil)
}

// complete runs onAccept under the state lock so that accepting a result and
// recording it happen as one step.
func (s *State) complete(token Token, outcome Outcome, onAccept func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == 0 || token != s.activeToken {
		s.logger.Debug("dropping stale completion", "token", token, "active", s.activeToken)
		return false
	}
	if outcome.IsPending() {
		return false
	}

	s.activeToken = 0
	s.outcome = outcome

	switch outcome.Kind {
	case OutcomeSuccess:
		s.phase = PhaseCompleted
		s.release(&s.resultPreview)
		s.resultPreview = s.acquire(outcome.Result)
	case OutcomeFailure:
		s.phase = PhaseFailed
	default:
		s.phase = PhaseIdle
	}

	if onAccept != nil {
		onAccept()
	}
	return true
}

// Replay restores a past edit without calling the editor.
func (s *State) Replay(r history.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidate("replay")
	s.releasePreviews()

	s.image = r.Source
	s.prompt = r.Prompt
	s.outcome = Success(r.Result)
	s.phase = PhaseIdle
	s.imagePreview = s.acquire(r.Source)
	s.resultPreview = s.acquire(r.Result)
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Image:         s.image,
		Prompt:        s.prompt,
		Outcome:       s.outcome,
		Phase:         s.phase,
		InFlight:      s.activeToken,
		ImagePreview:  s.imagePreview.URI(),
		ResultPreview: s.resultPreview.URI(),
	}
}

// ActiveToken returns the token of the attempt in flight, zero if none.
func (s *State) ActiveToken() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeToken
}

// Close releases the preview resources still held by the session.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasePreviews()
}

func (s *State) invalidate(reason string) {
	if s.activeToken == 0 {
		return
	}
	s.logger.Debug("invalidating in-flight edit", "token", s.activeToken, "reason", reason)
	s.activeToken = 0
}

func (s *State) acquire(asset models.ImageAsset) *preview.Handle {
	if asset.IsZero() {
		return nil
	}
	h, err := s.previews.Acquire(asset)
	if err != nil {
		s.logger.Warn("preview unavailable", "image", asset.Name(), "error", err)
		return nil
	}
	return h
}

func (s *State) release(slot **preview.Handle) {
	if err := (*slot).Release(); err != nil {
		s.logger.Warn("failed to release preview", "error", err)
	}
	*slot = nil
}

func (s *State) releasePreviews() {
	s.release(&s.imagePreview)
	s.release(&s.resultPreview)
}
