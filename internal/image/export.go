package image

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/internal/security"
	"github.com/manash/imgedit/pkg/models"
)

const ManifestName = "history.yaml"

// Manifest describes an exported session. It is written for people and
// other tools; imgedit never reads it back.
type Manifest struct {
	Session    string          `yaml:"session"`
	ExportedAt time.Time       `yaml:"exported_at"`
	Records    []ManifestEntry `yaml:"records"`
}

type ManifestEntry struct {
	ID        string        `yaml:"id"`
	CreatedAt time.Time     `yaml:"created_at"`
	Prompt    string        `yaml:"prompt"`
	Source    ManifestImage `yaml:"source"`
	Result    ManifestImage `yaml:"result"`
}

type ManifestImage struct {
	File     string `yaml:"file"`
	MimeType string `yaml:"mime_type"`
	Bytes    int    `yaml:"bytes"`
}

// Export writes the source and result of every record into dir, plus a
// manifest. Records keep the order given, newest first for history.List.
func Export(dir, session string, records []history.Record) (*Manifest, error) {
	if err := security.ValidateSavePath(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	m := &Manifest{
		Session:    session,
		ExportedAt: time.Now().UTC(),
		Records:    make([]ManifestEntry, 0, len(records)),
	}

	for i, r := range records {
		prefix := fmt.Sprintf("%03d-%s", i+1, shortID(r.ID))
		src, err := exportAsset(dir, prefix+"-source", r.Source)
		if err != nil {
			return nil, err
		}
		res, err := exportAsset(dir, prefix+"-result", r.Result)
		if err != nil {
			return nil, err
		}
		m.Records = append(m.Records, ManifestEntry{
			ID:        r.ID,
			CreatedAt: r.CreatedAt.UTC(),
			Prompt:    r.Prompt,
			Source:    src,
			Result:    res,
		})
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

func exportAsset(dir, base string, asset models.ImageAsset) (ManifestImage, error) {
	name := base + "." + extFor(asset.MimeType())
	path, err := security.JoinSafe(dir, name)
	if err != nil {
		return ManifestImage{}, err
	}
	if err := writeFile(path, asset.Data()); err != nil {
		return ManifestImage{}, err
	}
	return ManifestImage{
		File:     filepath.Base(path),
		MimeType: asset.MimeType(),
		Bytes:    asset.Size(),
	}, nil
}

func extFor(mimeType string) string {
	if f, ok := models.FormatFromMIME(mimeType); ok {
		return f.String()
	}
	return "img"
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
