package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/manash/imgedit/pkg/models"
)

func encodedImage(t *testing.T, mimeType string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	var err error
	switch mimeType {
	case "image/png":
		err = png.Encode(&buf, img)
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestDisplayer_Show_PNG(t *testing.T) {
	data := encodedImage(t, "image/png")
	var buf bytes.Buffer

	if err := New(&buf).Show(models.NewImageAsset("a.png", data, "image/png")); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, base64.StdEncoding.EncodeToString(data)) {
		t.Error("PNG data should be sent unchanged")
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("output should end with a newline")
	}
}

func TestDisplayer_Show_ConvertsJPEG(t *testing.T) {
	data := encodedImage(t, "image/jpeg")
	var buf bytes.Buffer

	if err := New(&buf).Show(models.NewImageAsset("a.jpg", data, "image/jpeg")); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(buf.String(), "\x1b_Ga=T,f=100,q=2;"), "\x1b\\\n")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if !bytes.HasPrefix(decoded, []byte("\x89PNG")) {
		t.Error("JPEG should be re-encoded as PNG")
	}
}

func TestDisplayer_Show_Errors(t *testing.T) {
	tests := []struct {
		name    string
		asset   models.ImageAsset
		wantErr error
	}{
		{"empty", models.ImageAsset{}, ErrNoImage},
		{"webp", models.NewImageAsset("a.webp", []byte("RIFF"), "image/webp"), ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := New(&buf).Show(tt.asset); !errors.Is(err, tt.wantErr) {
				t.Errorf("Show() error = %v, want %v", err, tt.wantErr)
			}
			if buf.Len() != 0 {
				t.Errorf("Show() wrote %d bytes on error", buf.Len())
			}
		})
	}

	var buf bytes.Buffer
	if err := New(&buf).Show(models.NewImageAsset("bad.jpg", []byte("not a jpeg"), "image/jpeg")); err == nil {
		t.Error("Show() with corrupt JPEG error = nil")
	}
}

func TestCanShow_NonTerminal(t *testing.T) {
	t.Setenv("TERM_PROGRAM", "kitty")
	if CanShow(&bytes.Buffer{}) {
		t.Error("CanShow() = true for a buffer")
	}
}

func TestIsTerminalSupported(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected bool
	}{
		{"no env vars", map[string]string{}, false},
		{"kitty terminal program", map[string]string{"TERM_PROGRAM": "kitty"}, true},
		{"ghostty terminal program", map[string]string{"TERM_PROGRAM": "ghostty"}, true},
		{"wezterm terminal program", map[string]string{"TERM_PROGRAM": "WezTerm"}, true},
		{"kitty window id", map[string]string{"KITTY_WINDOW_ID": "123"}, true},
		{"term contains kitty", map[string]string{"TERM": "xterm-kitty"}, true},
		{"plain xterm", map[string]string{"TERM": "xterm-256color"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TERM_PROGRAM", "KITTY_WINDOW_ID", "TERM"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			if got := IsTerminalSupported(); got != tt.expected {
				t.Errorf("IsTerminalSupported() = %v, want %v", got, tt.expected)
			}
		})
	}
}
