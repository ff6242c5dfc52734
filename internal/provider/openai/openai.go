package openai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/manash/imgedit/internal/provider"
	"github.com/manash/imgedit/pkg/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

type apiResponse struct {
	Created      int64       `json:"created"`
	Data         []imageData `json:"data"`
	OutputFormat string      `json:"output_format,omitempty"`
	Error        *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *models.ModelRegistry
	verbose    bool
	debug      io.Writer
}

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	debug := cfg.DebugOut
	if debug == nil {
		debug = os.Stderr
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		registry: registry,
		verbose:  cfg.Verbose,
		debug:    debug,
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderOpenAI
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderOpenAI
}

func (p *Provider) SupportsEdit(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.SupportsEdit && cap.Provider == models.ProviderOpenAI
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderOpenAI)
}

// buildResponse decodes inline images. URL results are left for the caller
// to download.
func (p *Provider) buildResponse(apiResp apiResponse, requested models.OutputFormat) (*models.Response, error) {
	response := &models.Response{
		Images: make([]models.GeneratedImage, 0, len(apiResp.Data)),
	}

	format := requested
	if f := models.OutputFormat(apiResp.OutputFormat); f.IsValid() {
		format = f
	}

	for i, data := range apiResp.Data {
		img := models.GeneratedImage{
			Index: i,
			URL:   data.URL,
		}

		if data.B64JSON != "" {
			img.Base64 = data.B64JSON
			decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
			}
			img.Data = decoded
			if format != "" {
				img.MimeType = format.MIMEType()
			}
		}

		if i == 0 && data.RevisedPrompt != "" {
			response.RevisedPrompt = data.RevisedPrompt
		}

		response.Images = append(response.Images, img)
	}

	return response, nil
}

func (p *Provider) logMultipartRequest(method, url string, headers http.Header, req *models.EditRequest) {
	if !p.verbose {
		return
	}

	w := p.debug
	fmt.Fprintln(w, "--- REQUEST ---")
	fmt.Fprintf(w, "%s %s\n", method, url)
	writeHeaders(w, headers)
	fmt.Fprintln(w, "Body (multipart form):")
	fmt.Fprintf(w, "  model: %s\n", req.Model)
	fmt.Fprintf(w, "  prompt: %s\n", req.Prompt)
	fmt.Fprintf(w, "  image: [%d bytes, %s]\n", len(req.Image), req.MimeType)
	if len(req.Mask) > 0 {
		fmt.Fprintf(w, "  mask: [%d bytes]\n", len(req.Mask))
	}
	if req.Size != "" {
		fmt.Fprintf(w, "  size: %s\n", req.Size)
	}
	if req.Count > 0 {
		fmt.Fprintf(w, "  n: %d\n", req.Count)
	}
	if req.Format != "" {
		fmt.Fprintf(w, "  output_format: %s\n", req.Format)
	}
	fmt.Fprintln(w, "---------------")
}

func (p *Provider) logResponse(statusCode int, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	w := p.debug
	fmt.Fprintln(w, "--- RESPONSE ---")
	fmt.Fprintf(w, "Status: %d\n", statusCode)
	writeHeaders(w, headers)
	if len(body) > 0 {
		fmt.Fprintln(w, "Body:")
		truncated := truncateBase64InJSON(body)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, truncated, "  ", "  "); err == nil {
			fmt.Fprintf(w, "  %s\n", pretty.String())
		} else {
			fmt.Fprintf(w, "  %s\n", string(truncated))
		}
	}
	fmt.Fprintln(w, "----------------")
}

func writeHeaders(w io.Writer, headers http.Header) {
	fmt.Fprintln(w, "Headers:")
	for key, values := range headers {
		for _, value := range values {
			if strings.EqualFold(key, "authorization") {
				value = "[REDACTED]"
			}
			fmt.Fprintf(w, "  %s: %s\n", key, value)
		}
	}
}

func truncateBase64InJSON(body []byte) []byte {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]any) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if key == "b64_json" && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]any:
			truncateBase64Fields(v)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
