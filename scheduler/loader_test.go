package scheduler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/reference"
)

func newDatasetServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestURLLoaderCachesDownload(t *testing.T) {
	srv := newDatasetServer(t, http.StatusOK, schedulerCSV)
	cache := filepath.Join(t.TempDir(), "cache", "dataset.csv")

	loader := NewURLLoader(srv.URL, cache, reference.Default())
	idx, err := loader.LoadIndex()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Expected 2 records, got %d", idx.Len())
	}

	cached, err := os.ReadFile(cache)
	if err != nil {
		t.Fatalf("Expected cache file to be written: %v", err)
	}
	if string(cached) != schedulerCSV {
		t.Errorf("Expected cached content to match download")
	}
}

func TestURLLoaderFallsBackToCache(t *testing.T) {
	srv := newDatasetServer(t, http.StatusBadGateway, "upstream down")
	cache := filepath.Join(t.TempDir(), "dataset.csv")
	if err := os.WriteFile(cache, []byte(schedulerCSV), 0o600); err != nil {
		t.Fatalf("Failed to write cache: %v", err)
	}

	idx, err := NewURLLoader(srv.URL, cache, reference.Default()).LoadIndex()
	if err != nil {
		t.Fatalf("Expected cached dataset, got error: %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Expected 2 records, got %d", idx.Len())
	}
}

func TestURLLoaderErrors(t *testing.T) {
	t.Run("download failure without cache", func(t *testing.T) {
		srv := newDatasetServer(t, http.StatusNotFound, "")
		_, err := NewURLLoader(srv.URL, "", reference.Default()).LoadIndex()

		var loadErr *dataset.DataLoadError
		if !errors.As(err, &loadErr) {
			t.Fatalf("Expected DataLoadError, got %v", err)
		}
	})

	t.Run("invalid download keeps previous cache", func(t *testing.T) {
		srv := newDatasetServer(t, http.StatusOK, "not,a,dataset\n")
		cache := filepath.Join(t.TempDir(), "dataset.csv")
		if err := os.WriteFile(cache, []byte(schedulerCSV), 0o600); err != nil {
			t.Fatalf("Failed to write cache: %v", err)
		}

		if _, err := NewURLLoader(srv.URL, cache, reference.Default()).LoadIndex(); err == nil {
			t.Fatal("Expected parse error for invalid dataset")
		}

		cached, err := os.ReadFile(cache)
		if err != nil {
			t.Fatalf("Failed to read cache: %v", err)
		}
		if string(cached) != schedulerCSV {
			t.Error("Expected cache to keep the previous dataset")
		}
	})
}
