package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/manash/imgedit/internal/codec"
	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/internal/preview"
	"github.com/manash/imgedit/pkg/models"
)

var ErrNothingPending = errors.New("no edit has been submitted")

type Config struct {
	Editor   Editor
	History  *history.Store
	Previews *preview.Pool
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Manager is the surface the rendering layer talks to. It wires the session
// state, the orchestrator and the history store together.
type Manager struct {
	id      string
	state   *State
	orch    *Orchestrator
	history *history.Store
	logger  *slog.Logger
}

func NewManager(cfg *Config) *Manager {
	hist := cfg.History
	if hist == nil {
		hist = history.NewStore(history.DefaultLimit)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.New().String()
	logger = logger.With("session", id[:8])

	state := NewState(cfg.Previews, logger)
	return &Manager{
		id:      id,
		state:   state,
		orch:    NewOrchestrator(state, cfg.Editor, hist, logger, cfg.Tracer),
		history: hist,
		logger:  logger,
	}
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) Upload(asset models.ImageAsset) {
	m.state.Upload(asset)
	m.logger.Debug("image uploaded", "name", asset.Name(), "mime", asset.MimeType(), "bytes", asset.Size())
}

// UploadFile loads an image from disk and makes it the current image. On
// error the session is left untouched.
func (m *Manager) UploadFile(path string) (models.ImageAsset, error) {
	asset, err := codec.LoadFile(path)
	if err != nil {
		return models.ImageAsset{}, err
	}
	m.Upload(asset)
	return asset, nil
}

func (m *Manager) SetPrompt(text string) {
	m.state.SetPrompt(text)
}

func (m *Manager) Clear() {
	m.state.Clear()
	m.logger.Debug("session cleared")
}

// Submit sends the current image and prompt to the editor.
func (m *Manager) Submit(ctx context.Context) (*Submission, error) {
	snap := m.state.Snapshot()
	return m.orch.Submit(ctx, EditRequest{Source: snap.Image, Prompt: snap.Prompt})
}

// Replay restores a history record addressed by its 1-based position in
// History() or by an id prefix.
func (m *Manager) Replay(ref string) (history.Record, error) {
	r, err := m.lookup(ref)
	if err != nil {
		return history.Record{}, err
	}
	m.state.Replay(r)
	m.logger.Debug("history replayed", "record", r.ID)
	return r, nil
}

func (m *Manager) lookup(ref string) (history.Record, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		r, err := m.history.At(n - 1)
		if err != nil {
			return history.Record{}, fmt.Errorf("%w: #%d", err, n)
		}
		return r, nil
	}
	r, err := m.history.Get(ref)
	if err != nil {
		return history.Record{}, fmt.Errorf("%w: %s", err, ref)
	}
	return r, nil
}

func (m *Manager) Snapshot() Snapshot {
	return m.state.Snapshot()
}

func (m *Manager) History() []history.Record {
	return m.history.List()
}

func (m *Manager) Phase() Phase {
	return m.orch.Phase()
}

// Wait blocks on the most recent submission. Use Submission.Applied to tell
// whether its outcome reached the session.
func (m *Manager) Wait(ctx context.Context) (*Submission, error) {
	sub := m.orch.Latest()
	if sub == nil {
		return nil, ErrNothingPending
	}
	if _, err := sub.Wait(ctx); err != nil {
		return sub, err
	}
	return sub, nil
}

// Close waits for outstanding editor calls and releases previews.
func (m *Manager) Close() {
	m.orch.Wait()
	m.state.Close()
}
