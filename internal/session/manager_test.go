package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manash/imgedit/internal/codec"
	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/internal/preview"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testManager(t *testing.T) (*Manager, *blockingEditor, *preview.Pool) {
	t.Helper()
	pool, err := preview.NewDirPool(t.TempDir())
	require.NoError(t, err)

	ed := newBlockingEditor()
	mgr := NewManager(&Config{
		Editor:   ed,
		History:  history.NewStore(history.DefaultLimit),
		Previews: pool,
	})
	t.Cleanup(func() {
		mgr.Close()
		_ = pool.Close()
	})
	return mgr, ed, pool
}

func TestNewManager(t *testing.T) {
	mgr := NewManager(&Config{})
	defer mgr.Close()

	assert.Len(t, mgr.ID(), 36)
	assert.NotEqual(t, NewManager(&Config{}).ID(), mgr.ID())
	assert.Empty(t, mgr.History())
	assert.Equal(t, PhaseIdle, mgr.Phase())
}

func TestManager_SubmitWithoutImage(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.SetPrompt("make sky red")

	before := mgr.Snapshot()
	_, err := mgr.Submit(context.Background())
	require.ErrorIs(t, err, ErrInvalidRequest)

	after := mgr.Snapshot()
	assert.True(t, after.Outcome.Equal(before.Outcome))
	assert.Equal(t, PhaseIdle, after.Phase)
	assert.Empty(t, ed.calls)
}

func TestManager_SubmitRecordsHistory(t *testing.T) {
	mgr, ed, _ := testManager(t)
	x := png("x.png", "X")

	mgr.Upload(x)
	mgr.SetPrompt("make sky red")
	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)

	ed.next(t).reply <- reply{data: []byte("Y"), mime: "image/png"}
	waitOutcome(t, sub)

	snap := mgr.Snapshot()
	require.True(t, snap.Outcome.IsSuccess())
	assert.Equal(t, []byte("Y"), snap.Outcome.Result.Data())
	assert.Equal(t, "image/png", snap.Outcome.Result.MimeType())
	assert.Equal(t, codec.ToDataURI([]byte("Y"), "image/png"), snap.Outcome.Result.PreviewURI())

	hist := mgr.History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Source.Equal(x))
	assert.Equal(t, "make sky red", hist[0].Prompt)
	assert.True(t, hist[0].Result.Equal(snap.Outcome.Result))
}

func TestManager_ClearDropsInFlightResult(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("p")

	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	c := ed.next(t)

	mgr.Clear()
	c.reply <- reply{data: []byte("Y"), mime: "image/png"}
	waitOutcome(t, sub)

	snap := mgr.Snapshot()
	assert.False(t, snap.HasImage())
	assert.Empty(t, snap.Prompt)
	assert.True(t, snap.Outcome.IsNone())
	assert.Empty(t, mgr.History())
	assert.False(t, sub.Applied())
}

func TestManager_ReplayThenClearKeepsHistory(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("p")
	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	ed.next(t).reply <- reply{data: []byte("Y"), mime: "image/png"}
	waitOutcome(t, sub)
	r := mgr.History()[0]

	_, err = mgr.Replay("1")
	require.NoError(t, err)
	mgr.Clear()

	assert.False(t, mgr.Snapshot().HasImage())
	hist := mgr.History()
	require.Len(t, hist, 1)
	assert.Equal(t, r.ID, hist[0].ID)
	assert.True(t, hist[0].Source.Equal(r.Source))
	assert.True(t, hist[0].Result.Equal(r.Result))
}

func TestManager_RapidResubmit(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("p")

	first, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	c1 := ed.next(t)
	second, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	c2 := ed.next(t)

	assert.True(t, mgr.Snapshot().Outcome.IsPending(), "one pending outcome for two attempts")

	c1.reply <- reply{data: []byte("R1"), mime: "image/png"}
	waitOutcome(t, first)
	assert.True(t, mgr.Snapshot().Outcome.IsPending(), "stale result ignored")
	assert.Empty(t, mgr.History())

	c2.reply <- reply{data: []byte("R2"), mime: "image/png"}
	waitOutcome(t, second)
	assert.Equal(t, []byte("R2"), mgr.Snapshot().Outcome.Result.Data())
	assert.Len(t, mgr.History(), 1)
}

func TestManager_UploadDuringFlight(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("p")

	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	c := ed.next(t)

	mgr.Upload(png("z.png", "Z"))
	c.reply <- reply{data: []byte("Y"), mime: "image/png"}
	waitOutcome(t, sub)

	snap := mgr.Snapshot()
	assert.True(t, snap.Image.Equal(png("z.png", "Z")))
	assert.True(t, snap.Outcome.IsNone())
	assert.Empty(t, mgr.History())
}

func TestManager_HistoryNewestFirst(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))

	var ids []string
	for _, prompt := range []string{"one", "two", "three"} {
		mgr.SetPrompt(prompt)
		sub, err := mgr.Submit(context.Background())
		require.NoError(t, err)
		ed.next(t).reply <- reply{data: []byte(prompt), mime: "image/png"}
		waitOutcome(t, sub)

		ids = append(ids, mgr.History()[0].ID)
	}

	hist := mgr.History()
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"three", "two", "one"}, []string{hist[0].Prompt, hist[1].Prompt, hist[2].Prompt})
	assert.Equal(t, ids[2], hist[0].ID)
	assert.Equal(t, ids[0], hist[2].ID)
}

func TestManager_ReplayByID(t *testing.T) {
	mgr, ed, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("first")
	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	ed.next(t).reply <- reply{data: []byte("R"), mime: "image/png"}
	waitOutcome(t, sub)

	r := mgr.History()[0]
	mgr.Upload(png("other.png", "O"))
	mgr.SetPrompt("something else")

	got, err := mgr.Replay(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	snap := mgr.Snapshot()
	assert.True(t, snap.Image.Equal(r.Source))
	assert.Equal(t, r.Prompt, snap.Prompt)
	assert.True(t, snap.Outcome.Equal(Success(r.Result)))
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Len(t, mgr.History(), 1, "replay does not append")
}

func TestManager_ReplayUnknown(t *testing.T) {
	mgr, _, _ := testManager(t)
	mgr.Upload(png("x.png", "X"))

	for _, ref := range []string{"1", "0", "-3", "01ZZZZ"} {
		_, err := mgr.Replay(ref)
		assert.ErrorIs(t, err, history.ErrNotFound, "Replay(%q)", ref)
	}
	assert.True(t, mgr.Snapshot().HasImage(), "failed replay leaves session untouched")
}

func TestManager_UploadFile(t *testing.T) {
	mgr, _, _ := testManager(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(good, pngHeader, 0o600))
	asset, err := mgr.UploadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", asset.Name())
	assert.Equal(t, "image/png", asset.MimeType())
	assert.True(t, mgr.Snapshot().Image.Equal(asset))

	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("plain text"), 0o600))
	_, err = mgr.UploadFile(bad)
	require.ErrorIs(t, err, codec.ErrNotImage)
	assert.True(t, mgr.Snapshot().Image.Equal(asset), "rejected file does not replace the image")

	_, err = mgr.UploadFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestManager_Wait(t *testing.T) {
	mgr, ed, _ := testManager(t)

	_, err := mgr.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)

	mgr.Upload(png("x.png", "X"))
	mgr.SetPrompt("p")
	_, err = mgr.Submit(context.Background())
	require.NoError(t, err)
	ed.next(t).reply <- reply{err: assert.AnError}

	sub, err := mgr.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, sub.Outcome().IsFailure())
	assert.Equal(t, PhaseFailed, mgr.Phase())
}

func TestManager_PreviewLifecycle(t *testing.T) {
	mgr, ed, pool := testManager(t)

	mgr.Upload(png("x.png", "X"))
	snap := mgr.Snapshot()
	require.NotEmpty(t, snap.ImagePreview)
	assert.Equal(t, 1, pool.Live())

	mgr.SetPrompt("p")
	sub, err := mgr.Submit(context.Background())
	require.NoError(t, err)
	ed.next(t).reply <- reply{data: []byte("Y"), mime: "image/png"}
	waitOutcome(t, sub)
	assert.NotEmpty(t, mgr.Snapshot().ResultPreview)
	assert.Equal(t, 2, pool.Live())

	mgr.Clear()
	assert.Equal(t, 0, pool.Live())
	assert.Empty(t, mgr.Snapshot().ImagePreview)

	mgr.Upload(png("x.png", "X"))
	mgr.Close()
	assert.Equal(t, 0, pool.Live())
}
