// Package codec converts image payloads to and from base64 text and
// self-describing data URLs.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/manash/imgedit/pkg/models"
)

const (
	dataPrefix   = "data:"
	base64Marker = ";base64,"
)

var (
	ErrDecode   = errors.New("malformed image payload")
	ErrNotImage = errors.New("file is not an image")
)

// DecodeError describes a payload that could not be decoded.
type DecodeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecode, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func Decode(text, mimeType, name string) (models.ImageAsset, error) {
	data, err := decodeBase64(text)
	if err != nil {
		return models.ImageAsset{}, err
	}
	return models.NewImageAsset(name, data, mimeType), nil
}

func ToDataURI(data []byte, mimeType string) string {
	return models.DataURI(data, mimeType)
}

func FromDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, dataPrefix) {
		return nil, "", &DecodeError{Input: preview(uri), Reason: "missing data: scheme"}
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, dataPrefix), base64Marker)
	if !ok {
		return nil, "", &DecodeError{Input: preview(uri), Reason: "not a base64 data URI"}
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, "", err
	}
	return data, header, nil
}

// AssetFromDataURI rebuilds an asset from a data URL.
func AssetFromDataURI(uri, name string) (models.ImageAsset, error) {
	data, mimeType, err := FromDataURI(uri)
	if err != nil {
		return models.ImageAsset{}, err
	}
	return models.NewImageAsset(name, data, mimeType), nil
}

// DetectMIME sniffs the media type of the payload.
func DetectMIME(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(mimeType)
}

func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// LoadFile reads an image from disk. The media type is sniffed from the
// content, not taken from the extension.
func LoadFile(path string) (models.ImageAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := DetectMIME(data)
	if !IsImageMIME(mimeType) {
		return models.ImageAsset{}, fmt.Errorf("%w: %s (%s)", ErrNotImage, filepath.Base(path), mimeType)
	}

	return models.NewImageAsset(filepath.Base(path), data, mimeType), nil
}

func decodeBase64(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, &DecodeError{Input: preview(text), Reason: "invalid base64", Err: err}
	}
	return data, nil
}

func preview(s string) string {
	if len(s) <= 32 {
		return s
	}
	return s[:32] + "..."
}
