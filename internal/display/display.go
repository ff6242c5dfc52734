package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/manash/imgedit/pkg/models"
)

var (
	ErrNoImage           = errors.New("nothing to display")
	ErrUnsupportedFormat = errors.New("image format cannot be shown inline")
)

// Displayer renders images inline with the kitty graphics protocol.
type Displayer struct {
	out io.Writer
}

func New(out io.Writer) *Displayer {
	return &Displayer{out: out}
}

func (d *Displayer) Show(asset models.ImageAsset) error {
	if asset.IsZero() {
		return ErrNoImage
	}

	data, err := toPNG(asset)
	if err != nil {
		return err
	}

	enc := NewKittyEncoder(d.out)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	fmt.Fprintln(d.out)
	return nil
}

// toPNG converts the asset for transmission; kitty's f=100 accepts PNG only.
func toPNG(asset models.ImageAsset) ([]byte, error) {
	switch strings.ToLower(asset.MimeType()) {
	case "image/png":
		return asset.Data(), nil
	case "image/jpeg", "image/jpg", "image/gif":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, asset.MimeType())
	}

	img, _, err := image.Decode(bytes.NewReader(asset.Data()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", asset.MimeType(), err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to convert to png: %w", err)
	}
	return buf.Bytes(), nil
}

// CanShow reports whether out is an interactive terminal that understands
// the kitty graphics protocol.
func CanShow(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return IsTerminalSupported()
}

func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	switch termProgram {
	case "kitty", "ghostty", "wezterm":
		return true
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
