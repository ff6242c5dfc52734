package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manash/imgedit/internal/codec"
	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/pkg/models"
)

const (
	tracerName    = "github.com/manash/imgedit/internal/session"
	failurePrefix = "Failed to generate image."
)

var ErrEmptyResult = errors.New("editor returned no image data")

// Editor is the remote image-edit service.
type Editor interface {
	Edit(ctx context.Context, image []byte, mimeType, prompt string) ([]byte, string, error)
}

type EditorFunc func(ctx context.Context, image []byte, mimeType, prompt string) ([]byte, string, error)

func (f EditorFunc) Edit(ctx context.Context, image []byte, mimeType, prompt string) ([]byte, string, error) {
	return f(ctx, image, mimeType, prompt)
}

// Orchestrator drives one edit attempt at a time against the editor and
// reconciles the outcome into the session state.
type Orchestrator struct {
	state   *State
	editor  Editor
	history *history.Store
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	latest *Submission
	wg     sync.WaitGroup
}

func NewOrchestrator(state *State, editor Editor, hist *history.Store, logger *slog.Logger, tracer trace.Tracer) *Orchestrator {
	if hist == nil {
		hist = history.NewStore(history.DefaultLimit)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		state:   state,
		editor:  editor,
		history: hist,
		logger:  logger,
		tracer:  tracer,
	}
}

// Submit validates the request, marks the session pending and calls the
// editor in the background. A later Submit, Clear, Upload or Replay makes
// this attempt stale; its result is then discarded.
func (o *Orchestrator) Submit(ctx context.Context, req EditRequest) (*Submission, error) {
	token, err := o.state.BeginEdit(req)
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.Int64("edit.token", int64(token)),
		attribute.Int("edit.prompt_length", len(req.Prompt)),
		attribute.String("edit.mime_type", req.Source.MimeType()),
		attribute.Int("edit.image_bytes", req.Source.Size()),
	))

	sub := &Submission{
		Token:   token,
		Request: req,
		done:    make(chan struct{}),
	}

	o.track(sub)

	o.logger.Debug("edit submitted", "token", token, "image", req.Source.Name(), "prompt", req.Prompt)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer span.End()
		o.run(ctx, span, sub)
	}()

	return sub, nil
}

// track records sub as the latest submission unless a newer token got
// there first.
func (o *Orchestrator) track(sub *Submission) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latest == nil || sub.Token > o.latest.Token {
		o.latest = sub
	}
}

func (o *Orchestrator) run(ctx context.Context, span trace.Span, sub *Submission) {
	defer close(sub.done)

	req := sub.Request
	outcome, result, err := o.edit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Debug("edit failed", "token", sub.Token, "error", err)
	}

	var record history.Record
	applied := o.state.complete(sub.Token, outcome, func() {
		if outcome.IsSuccess() {
			record = history.NewRecord(req.Source, req.Prompt, result)
			if evicted := o.history.Append(record); len(evicted) > 0 {
				o.logger.Debug("history full, evicted oldest", "count", len(evicted))
			}
		}
	})

	sub.mu.Lock()
	sub.outcome = outcome
	sub.applied = applied
	if applied && outcome.IsSuccess() {
		sub.record = &record
	}
	sub.mu.Unlock()

	span.SetAttributes(attribute.Bool("edit.applied", applied))
	if !applied {
		o.logger.Debug("edit result discarded", "token", sub.Token)
		return
	}
	o.logger.Debug("edit completed", "token", sub.Token, "outcome", outcome.Kind.String())
}

func (o *Orchestrator) edit(ctx context.Context, req EditRequest) (Outcome, models.ImageAsset, error) {
	if o.editor == nil {
		err := errors.New("no editor configured")
		return Failure(failureMessage(err)), models.ImageAsset{}, err
	}

	// The editor gets its own copy so it cannot write through to the
	// session image or history.
	data, mimeType, err := o.editor.Edit(ctx, bytes.Clone(req.Source.Data()), req.Source.MimeType(), req.Prompt)
	if err == nil && len(data) == 0 {
		err = ErrEmptyResult
	}
	if err != nil {
		return Failure(failureMessage(err)), models.ImageAsset{}, err
	}

	if mimeType == "" {
		mimeType = codec.DetectMIME(data)
	}

	result := models.NewImageAsset(resultName(req.Source, mimeType), data, mimeType)
	return Success(result), result, nil
}

// Phase reports the orchestration phase of the session.
func (o *Orchestrator) Phase() Phase {
	return o.state.Snapshot().Phase
}

// Latest returns the most recent submission, nil before the first.
func (o *Orchestrator) Latest() *Submission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// Wait blocks until every editor call started by Submit has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func failureMessage(err error) string {
	return fmt.Sprintf("%s %v", failurePrefix, err)
}

func resultName(source models.ImageAsset, mimeType string) string {
	ext := "img"
	if format, ok := models.FormatFromMIME(mimeType); ok {
		ext = format.String()
	}
	if source.Name() == "" {
		return "edited." + ext
	}
	base := strings.TrimSuffix(source.Name(), filepath.Ext(source.Name()))
	return "edited-" + base + "." + ext
}

// Submission tracks one call to Submit.
type Submission struct {
	Token   Token
	Request EditRequest

	done chan struct{}

	mu      sync.Mutex
	outcome Outcome
	applied bool
	record  *history.Record
}

// Done is closed once the editor call has returned and its outcome has been
// offered to the session.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission finishes or ctx is done.
func (s *Submission) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		return s.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome is the editor's outcome for this attempt, whether or not the
// session accepted it.
func (s *Submission) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Applied reports whether the outcome reached the session. False for stale
// attempts.
func (s *Submission) Applied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Record returns the history entry created for a successful attempt.
func (s *Submission) Record() (history.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return history.Record{}, false
	}
	return *s.record, true
}
