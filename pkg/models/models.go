package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrInvalidCount     = errors.New("count must be at least 1")
	ErrCountExceedsMax  = errors.New("count exceeds maximum for model")
	ErrInvalidSize      = errors.New("invalid size for model")
	ErrEditNotSupported = errors.New("image editing not supported by model")
	ErrNoImageData      = errors.New("image data is required for editing")
	ErrInvalidFormat    = errors.New("output format not supported by model")
)

type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

// MIMEType returns the media type produced for the format.
func (f OutputFormat) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// FormatFromMIME maps an image media type back to an output format.
func FormatFromMIME(mimeType string) (OutputFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return FormatPNG, true
	case "image/jpeg", "image/jpg":
		return FormatJPEG, true
	case "image/webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

type EditRequest struct {
	Image    []byte
	MimeType string
	Mask     []byte
	Prompt   string
	Model    string
	Size     string
	Count    int
	Format   OutputFormat
}

func NewEditRequest(image []byte, mimeType, prompt string) *EditRequest {
	return &EditRequest{
		Image:    image,
		MimeType: mimeType,
		Prompt:   prompt,
		Count:    1,
		Format:   FormatPNG,
	}
}

func (r *EditRequest) Validate() error {
	if len(r.Image) == 0 {
		return ErrNoImageData
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

type Response struct {
	Images        []GeneratedImage
	RevisedPrompt string
}

type GeneratedImage struct {
	Data     []byte
	URL      string
	Base64   string
	MimeType string
	Index    int
	Filename string
}

type ModelCapabilities struct {
	Name           string
	Provider       ProviderType
	SupportedSizes []string
	MaxImages      int
	DefaultSize    string
	SupportsEdit   bool
	// OutputFormats lists formats the model can return; empty means PNG only.
	OutputFormats []OutputFormat
	// ReturnsURL is set for models that answer edits with a download URL.
	ReturnsURL bool
}

func (c *ModelCapabilities) ValidateEdit(req *EditRequest) error {
	if !c.SupportsEdit {
		return fmt.Errorf("%w: %s", ErrEditNotSupported, c.Name)
	}

	if err := req.Validate(); err != nil {
		return err
	}

	if req.Count < 1 {
		return ErrInvalidCount
	}

	if req.Count > c.MaxImages {
		return fmt.Errorf("%w: max %d, got %d", ErrCountExceedsMax, c.MaxImages, req.Count)
	}

	if req.Size != "" && !slices.Contains(c.SupportedSizes, req.Size) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, req.Size, c.SupportedSizes)
	}

	if req.Format != "" && req.Format != FormatPNG && !slices.Contains(c.OutputFormats, req.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *EditRequest) {
	if req.Size == "" {
		req.Size = c.DefaultSize
	}
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Format == "" {
		req.Format = FormatPNG
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListEditable returns the models that accept image edits.
func (r *ModelRegistry) ListEditable() []string {
	var names []string
	for name, cap := range r.models {
		if cap.SupportsEdit {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           "gpt-image-1",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"1024x1024", "1536x1024", "1024x1536", "auto"},
		MaxImages:      10,
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
		OutputFormats:  []OutputFormat{FormatPNG, FormatJPEG, FormatWebP},
	})

	r.Register(&ModelCapabilities{
		Name:           "dall-e-2",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"256x256", "512x512", "1024x1024"},
		MaxImages:      10,
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
		ReturnsURL:     true,
	})

	r.Register(&ModelCapabilities{
		Name:           "dall-e-3",
		Provider:       ProviderOpenAI,
		SupportedSizes: []string{"1024x1024", "1024x1792", "1792x1024"},
		MaxImages:      1,
		DefaultSize:    "1024x1024",
		SupportsEdit:   false,
	})

	return r
}
