package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		expectedCost int64
	}{
		{"Metrics scrape", "/metrics", 0},
		{"Health endpoint", "/health", 5},
		{"Recommend", "/v1/medicine/recommend", 50},
		{"Predict", "/v1/medicine/predict", 20},
		{"Suggest", "/v1/medicine/suggest", 20},
		{"Disease listing", "/v1/medicine/diseases", 10},
		{"Antibiotic listing", "/v1/medicine/diseases/Coccidiosis/antibiotics", 10},
		{"Animal types", "/v1/medicine/animal-types", 10},
		{"Farmer history", "/v1/farmers/F-1/recommendations", 20},
		{"Unclaimed", "/v1/recommendations/unclaimed", 20},
		{"Claim", "/v1/recommendations/abc/claim", 20},
		{"Single record", "/v1/recommendations/abc", 20},
		{"Shop claims", "/v1/shops/Green%20Vet/recommendations", 20},
		{"Default endpoint", "/unknown", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if cost := getTokenCost(req); cost != tt.expectedCost {
				t.Errorf("Expected cost %d for path %s, got %d", tt.expectedCost, tt.path, cost)
			}
		})
	}
}

func TestRateLimiter_ExhaustsBucket(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()
	handler := rl.Middleware(okHandler())

	// 1000 tokens at 50 per recommend
	for i := range 20 {
		req := httptest.NewRequest("POST", "/v1/medicine/recommend", nil)
		req.RemoteAddr = "192.0.2.10:1111"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200 OK, got %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest("POST", "/v1/medicine/recommend", nil)
	req.RemoteAddr = "192.0.2.10:2222" // a new source port is the same client
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" || rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("Expected Retry-After and X-RateLimit-Remaining headers")
	}

	other := httptest.NewRequest("POST", "/v1/medicine/recommend", nil)
	other.RemoteAddr = "192.0.2.11:1111"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected other client to be unaffected, got %d", rr.Code)
	}
}

func TestRateLimiter_RejectionKeepsRemainingTokens(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()
	handler := rl.Middleware(okHandler())

	const clientIP = "192.0.2.30"
	bucket := rl.getBucket(clientIP)
	bucket.TakeAvailable(rateLimitCapacity - 30)

	do := func(path string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = clientIP + ":1111"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := do("/v1/medicine/recommend"); code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 for a 50 token request, got %d", code)
	}
	if available := bucket.Available(); available < 30 {
		t.Errorf("Expected at least 30 tokens left after the rejection, got %d", available)
	}
	if code := do("/v1/medicine/predict"); code != http.StatusOK {
		t.Errorf("Expected a 20 token request to pass with the remaining tokens, got %d", code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	rl.getBucket("192.0.2.20")
	used := rl.getBucket("192.0.2.21")
	used.TakeAvailable(500)

	rl.cleanup()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.clients["192.0.2.20"]; ok {
		t.Error("Expected full bucket to be removed")
	}
	if _, ok := rl.clients["192.0.2.21"]; !ok {
		t.Error("Expected partially used bucket to be kept")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter()
	rl.Stop()
	rl.Stop()
}

func TestRequestSizeMiddleware(t *testing.T) {
	handler := RequestSizeMiddleware(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("Small body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", strings.NewReader(`{"a":1}`)))
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 OK, got %d", rr.Code)
		}
	})

	t.Run("Declared too large", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32))))
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Maximum allowed size is 16 bytes") {
			t.Errorf("Unexpected body %s", rr.Body.String())
		}
	})

	t.Run("Undeclared too large", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32)))
		req.ContentLength = -1
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413 from the capped reader, got %d", rr.Code)
		}
	})
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"Forwarded chain", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "198.51.100.1"},
		{"Real IP header", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"No proxy headers", nil, "192.0.2.1:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.expected {
				t.Errorf("Expected RemoteAddr %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     string
		expected   int
	}{
		{"Localhost allowed", "127.0.0.1:5000", "", http.StatusOK},
		{"IPv6 localhost allowed", "[::1]:5000", "", http.StatusOK},
		{"Public direct blocked", "203.0.113.1:5000", "", http.StatusForbidden},
		{"Proxied allowed", "203.0.113.1:5000", "198.51.100.1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				req.Header.Set("X-Real-IP", tt.header)
			}
			rr := httptest.NewRecorder()
			BlockDirectAccessMiddleware(okHandler()).ServeHTTP(rr, req)
			if rr.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}
