package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cwbudde/drumengine/drum/sound"
)

const maxCatalogBytes = 8 << 20

// Source fetches the full list of sound definitions.
type Source interface {
	Fetch(ctx context.Context) ([]sound.Definition, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]sound.Definition, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) ([]sound.Definition, error) { return f(ctx) }

// FileSource reads a JSON array of definitions from a file.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the file.
func (s FileSource) Fetch(ctx context.Context) ([]sound.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}
	return sound.DecodeList(data)
}

// HTTPSource fetches a JSON array of definitions with one GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns a source for url with a 30 second timeout.
func NewHTTPSource(url string) HTTPSource {
	return HTTPSource{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch performs the request and decodes the body.
func (s HTTPSource) Fetch(ctx context.Context) ([]sound.Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: request %s: %w", s.URL, err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: fetch %s: %s", s.URL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.URL, err)
	}
	return sound.DecodeList(data)
}
