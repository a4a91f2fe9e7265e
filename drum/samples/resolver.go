package samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Opener opens the bytes behind a sample URI.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, uri string) (io.ReadCloser, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, uri string) (io.ReadCloser, error) { return f(ctx, uri) }

// Resolver opens file paths, file:// URIs and http(s):// URLs. Relative
// paths are resolved against BaseDir, relative URLs against BaseURL.
type Resolver struct {
	BaseDir string
	BaseURL *url.URL
	Client  *http.Client
}

const defaultFetchTimeout = 30 * time.Second

// NewResolver returns a resolver rooted at baseDir with a default HTTP
// client.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{
		BaseDir: baseDir,
		Client:  &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Open implements Opener.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if uri == "" {
		return nil, fmt.Errorf("samples: empty uri: %w", ErrNotFound)
	}

	u, err := url.Parse(uri)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return r.fetch(ctx, u)
		case "file":
			return r.openFile(u.Path)
		}
	}

	if r.BaseURL != nil && !filepath.IsAbs(uri) {
		ref, err := url.Parse(strings.TrimPrefix(uri, "/"))
		if err == nil {
			return r.fetch(ctx, r.BaseURL.ResolveReference(ref))
		}
	}
	return r.openFile(uri)
}

func (r *Resolver) openFile(path string) (io.ReadCloser, error) {
	if !filepath.IsAbs(path) && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("samples: %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("samples: open %s: %w", path, err)
	}
	return f, nil
}

func (r *Resolver) fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("samples: request %s: %w", u, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("samples: fetch %s: %w", u, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("samples: %s: %w", u, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("samples: fetch %s: status %s", u, resp.Status)
	}
	return resp.Body, nil
}
