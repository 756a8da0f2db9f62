package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/interfaces"
	"github.com/giygas/agrisafe-api/logging"
)

const (
	downloadTimeout = 2 * time.Minute
	maxDatasetSize  = 32 << 20
)

var (
	_ interfaces.DatasetLoader = FileLoader{}
	_ interfaces.DatasetLoader = (*URLLoader)(nil)
)

// FileLoader loads the dataset CSV from disk.
type FileLoader struct {
	Path           string
	Concentrations dataset.ConcentrationSource
}

// LoadIndex implements interfaces.DatasetLoader
func (l FileLoader) LoadIndex() (*dataset.Index, error) {
	return dataset.Load(l.Path, l.Concentrations)
}

// URLLoader downloads the dataset CSV and keeps the last good copy at
// CachePath. When the download fails the cached copy is used instead.
type URLLoader struct {
	URL            string
	CachePath      string
	Concentrations dataset.ConcentrationSource
	client         *http.Client
}

// NewURLLoader creates a loader with a bounded download timeout
func NewURLLoader(url, cachePath string, concentrations dataset.ConcentrationSource) *URLLoader {
	return &URLLoader{
		URL:            url,
		CachePath:      cachePath,
		Concentrations: concentrations,
		client:         &http.Client{Timeout: downloadTimeout},
	}
}

// LoadIndex implements interfaces.DatasetLoader
func (l *URLLoader) LoadIndex() (*dataset.Index, error) {
	raw, err := l.download()
	if err != nil {
		if l.CachePath == "" {
			return nil, &dataset.DataLoadError{Source: l.URL, Reason: "download failed", Err: err}
		}
		logging.Warn("Dataset download failed, using cached copy", "url", l.URL, "cache", l.CachePath, "error", err)
		return dataset.Load(l.CachePath, l.Concentrations)
	}

	idx, err := dataset.ParseSource(l.URL, bytes.NewReader(raw), l.Concentrations)
	if err != nil {
		return nil, err
	}

	// Only content that parsed is cached
	if l.CachePath != "" {
		if err := writeFileAtomic(l.CachePath, raw); err != nil {
			logging.Warn("Failed to cache downloaded dataset", "path", l.CachePath, "error", err)
		}
	}
	return idx, nil
}

func (l *URLLoader) download() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := l.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", l.URL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", l.URL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(raw) > maxDatasetSize {
		return nil, fmt.Errorf("dataset at %s exceeds %d bytes", l.URL, maxDatasetSize)
	}

	logging.Debug("Dataset downloaded", "url", l.URL, "bytes", len(raw))
	return raw, nil
}

// writeFileAtomic replaces path so readers never see a partial file
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	return os.Rename(tmp.Name(), path)
}
