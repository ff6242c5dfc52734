// Package preview hands out display resources for image assets and tracks
// them until they are released.
package preview

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/manash/imgedit/pkg/models"
)

var ErrEmptyAsset = errors.New("cannot preview an empty image")

// Pool issues preview handles. A pool without a directory serves the
// asset's data URL; a directory pool writes a file per handle and serves a
// file:// URI that external viewers can open.
type Pool struct {
	dir  string
	mu   sync.Mutex
	live map[*Handle]struct{}
}

func NewPool() *Pool {
	return &Pool{live: make(map[*Handle]struct{})}
}

func NewDirPool(dir string) (*Pool, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	return &Pool{dir: dir, live: make(map[*Handle]struct{})}, nil
}

func (p *Pool) Dir() string {
	return p.dir
}

func (p *Pool) Acquire(asset models.ImageAsset) (*Handle, error) {
	if asset.IsZero() {
		return nil, ErrEmptyAsset
	}

	h := &Handle{pool: p, uri: asset.PreviewURI()}

	if p.dir != "" {
		path := filepath.Join(p.dir, uuid.New().String()+extension(asset.MimeType()))
		if err := os.WriteFile(path, asset.Data(), 0600); err != nil {
			return nil, fmt.Errorf("failed to write preview: %w", err)
		}
		h.path = path
		h.uri = (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	}

	p.mu.Lock()
	p.live[h] = struct{}{}
	p.mu.Unlock()
	return h, nil
}

// Live reports how many handles have not been released.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Close releases every outstanding handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	handles := make([]*Handle, 0, len(p.live))
	for h := range p.live {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) forget(h *Handle) {
	p.mu.Lock()
	delete(p.live, h)
	p.mu.Unlock()
}

type Handle struct {
	pool *Pool
	uri  string
	path string
	once sync.Once
	err  error
}

func (h *Handle) URI() string {
	if h == nil {
		return ""
	}
	return h.uri
}

// Path is the backing file for directory pools, empty otherwise.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Release frees the backing resource. It is safe to call more than once
// and on a nil handle.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if h.path != "" {
			if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				h.err = fmt.Errorf("failed to remove preview: %w", err)
			}
		}
		h.pool.forget(h)
	})
	return h.err
}

func extension(mimeType string) string {
	if format, ok := models.FormatFromMIME(mimeType); ok {
		return "." + format.String()
	}
	return ".img"
}
