package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/manash/imgedit/pkg/models"
)

// Fetcher downloads results that a provider returns by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ModelEditor edits images with the currently selected model. It satisfies
// the session's Editor interface.
type ModelEditor struct {
	factory *Factory
	fetcher Fetcher

	mu     sync.RWMutex
	model  string
	format models.OutputFormat
}

func NewModelEditor(factory *Factory, fetcher Fetcher, model string) (*ModelEditor, error) {
	e := &ModelEditor{factory: factory, fetcher: fetcher, format: models.FormatPNG}
	if err := e.SetModel(model); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ModelEditor) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// SetModel switches to another edit-capable model. Edits already in flight
// keep the model they started with.
func (e *ModelEditor) SetModel(name string) error {
	cap, ok := e.factory.Registry().Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotSupported, name)
	}
	if !cap.SupportsEdit {
		return fmt.Errorf("%w: %s", ErrEditNotSupported, name)
	}
	if _, err := e.factory.GetForModel(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = name
	return nil
}

func (e *ModelEditor) Format() models.OutputFormat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.format
}

func (e *ModelEditor) SetFormat(format models.OutputFormat) error {
	if !format.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidFormat, format)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.format = format
	return nil
}

// Edit sends one edit request and returns the first image of the response.
// An empty media type tells the caller to sniff the bytes.
func (e *ModelEditor) Edit(ctx context.Context, image []byte, mimeType, prompt string) ([]byte, string, error) {
	e.mu.RLock()
	model, format := e.model, e.format
	e.mu.RUnlock()

	p, err := e.factory.GetForModel(model)
	if err != nil {
		return nil, "", err
	}
	cap, _ := e.factory.Registry().Get(model)

	req := models.NewEditRequest(image, mimeType, prompt)
	req.Model = model
	req.Format = format
	if !slices.Contains(cap.OutputFormats, format) {
		req.Format = models.FormatPNG
	}
	cap.ApplyDefaults(req)
	if err := cap.ValidateEdit(req); err != nil {
		return nil, "", err
	}

	resp, err := p.Edit(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Images) == 0 {
		return nil, "", ErrNoImages
	}

	img := resp.Images[0]
	data := img.Data
	if len(data) == 0 && img.URL != "" {
		if e.fetcher == nil {
			return nil, "", fmt.Errorf("%w: result is a URL and no downloader is configured", ErrEditFailed)
		}
		data, err = e.fetcher.Fetch(ctx, img.URL)
		if err != nil {
			return nil, "", err
		}
	}
	return data, img.MimeType, nil
}
