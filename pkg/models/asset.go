package models

import (
	"bytes"
	"encoding/base64"
)

// ImageAsset is one binary image together with its media type and the
// data URL derived from both. The payload is copied on construction and
// never mutated afterwards, so the preview URI cannot drift from the bytes.
type ImageAsset struct {
	name       string
	data       []byte
	mimeType   string
	previewURI string
}

func NewImageAsset(name string, data []byte, mimeType string) ImageAsset {
	owned := make([]byte, len(data))
	copy(owned, data)
	return ImageAsset{
		name:       name,
		data:       owned,
		mimeType:   mimeType,
		previewURI: DataURI(owned, mimeType),
	}
}

func (a ImageAsset) Name() string       { return a.name }
func (a ImageAsset) MimeType() string   { return a.mimeType }
func (a ImageAsset) PreviewURI() string { return a.previewURI }
func (a ImageAsset) Size() int          { return len(a.data) }

// Data returns the payload. Callers must treat the slice as read-only.
func (a ImageAsset) Data() []byte { return a.data }

// IsZero reports whether the asset holds no image.
func (a ImageAsset) IsZero() bool {
	return len(a.data) == 0 && a.mimeType == ""
}

// Equal compares payload and media type; the name is informational.
func (a ImageAsset) Equal(other ImageAsset) bool {
	return a.mimeType == other.mimeType && bytes.Equal(a.data, other.data)
}

// DataURI formats a self-describing data URL for the payload.
func DataURI(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
