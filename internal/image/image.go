package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/imgedit/internal/security"
	"github.com/manash/imgedit/pkg/models"
)

// maxDownload caps a single result download.
const maxDownload = 64 << 20

var ErrNoImageData = errors.New("no image data available")

type Saver struct {
	httpClient *http.Client
	policy     security.URLPolicy
}

func NewSaver() *Saver {
	return NewSaverWithPolicy(security.URLPolicy{Strict: true})
}

func NewSaverWithPolicy(policy security.URLPolicy) *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: policy,
	}
}

// Fetch downloads an edit result served by URL.
func (s *Saver) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := s.policy.Validate(url); err != nil {
		return nil, fmt.Errorf("refusing to download image: %w", err)
	}
	data, err := s.downloadFromURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}

// Save writes a provider response image, downloading it first if needed.
func (s *Saver) Save(ctx context.Context, img *models.GeneratedImage, path string) error {
	var data []byte
	var err error

	switch {
	case len(img.Data) > 0:
		data = img.Data
	case img.URL != "":
		data, err = s.Fetch(ctx, img.URL)
		if err != nil {
			return err
		}
	default:
		return ErrNoImageData
	}

	if err := writeFile(path, data); err != nil {
		return err
	}
	img.Filename = path
	return nil
}

// SaveAsset writes an image asset to a validated relative path.
func (s *Saver) SaveAsset(asset models.ImageAsset, path string) error {
	if asset.IsZero() {
		return ErrNoImageData
	}
	if err := security.ValidateSavePath(path); err != nil {
		return err
	}
	return writeFile(path, asset.Data())
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// GenerateFilename names a saved result when the user gives no path.
func GenerateFilename(format models.OutputFormat) string {
	return GenerateFilenameWithTime(format, time.Now())
}

func GenerateFilenameWithTime(format models.OutputFormat, t time.Time) string {
	if format == "" {
		format = models.FormatPNG
	}
	return fmt.Sprintf("edit-%s.%s", t.Format("20060102-150405"), format)
}
