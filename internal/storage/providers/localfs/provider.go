// Package localfs implements storage.Provider on the local filesystem.
// Intended for development and functional tests; signed URLs degrade to
// plain base-URL links since the filesystem cannot enforce expiry.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider stores media assets under a root directory.
type Provider struct {
	root    string
	baseURL string
}

// New creates a filesystem-backed storage provider rooted at root.
// baseURL is prepended to keys when building access URLs.
func New(root, baseURL string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Provider{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to a file under the storage root.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader, _ string) error {
	dest, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open reads a file from the storage root.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a file from the storage root.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// SignedURL returns a base-URL link for the key. The local filesystem has
// no notion of expiry, so the TTL is ignored.
func (p *Provider) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if p.baseURL == "" {
		return "file://" + filepath.Join(p.root, filepath.FromSlash(key)), nil
	}
	return p.baseURL + "/" + key, nil
}

// path converts a storage key into an absolute file path, rejecting
// traversal outside the root.
func (p *Provider) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	return filepath.Join(p.root, clean), nil
}
