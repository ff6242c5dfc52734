package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strconv"

	"github.com/manash/imgedit/internal/provider"
	"github.com/manash/imgedit/pkg/models"
)

func (p *Provider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !p.SupportsEdit(req.Model) {
		return nil, fmt.Errorf("%w: %s", provider.ErrEditNotSupported, req.Model)
	}
	cap, _ := p.registry.Get(req.Model)

	body, contentType, err := p.encodeEdit(req, cap)
	if err != nil {
		return nil, err
	}

	url := p.baseURL + "/images/edits"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logMultipartRequest(http.MethodPost, url, httpReq.Header, req)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	p.logResponse(resp.StatusCode, resp.Header, bodyBytes)

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrEditFailed, apiResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
	}

	requested := req.Format
	if cap.ReturnsURL {
		requested = ""
	}
	return p.buildResponse(apiResp, requested)
}

func (p *Provider) encodeEdit(req *models.EditRequest, cap *models.ModelCapabilities) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	if err := writeImagePart(writer, "image", mimeType, req.Image); err != nil {
		return nil, "", err
	}

	if len(req.Mask) > 0 {
		if err := writeImagePart(writer, "mask", "image/png", req.Mask); err != nil {
			return nil, "", err
		}
	}

	fields := [][2]string{
		{"prompt", req.Prompt},
		{"model", req.Model},
	}
	if req.Size != "" {
		fields = append(fields, [2]string{"size", req.Size})
	}
	if req.Count > 0 {
		fields = append(fields, [2]string{"n", strconv.Itoa(req.Count)})
	}
	switch {
	case cap.ReturnsURL:
		fields = append(fields, [2]string{"response_format", "url"})
	case req.Format != "" && slices.Contains(cap.OutputFormats, req.Format):
		fields = append(fields, [2]string{"output_format", req.Format.String()})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// writeImagePart declares the real media type; the edits endpoint rejects
// application/octet-stream uploads.
func writeImagePart(w *multipart.Writer, field, mimeType string, data []byte) error {
	ext := "png"
	if f, ok := models.FormatFromMIME(mimeType); ok {
		ext = f.String()
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field+"."+ext))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", field, err)
	}
	return nil
}
