package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giygas/agrisafe-api/data"
	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/reference"
	"github.com/go-chi/chi/v5"
)

const testDataset = `animal_type,disease,weight_min_kg,weight_max_kg,age_min_days,age_max_days,antibiotic,dosage_value,dosage_unit,treatment_days
Poultry,Chronic Respiratory Disease,0.5,2.0,15,42,Tylosin,25,per_kg,5
Poultry,Chronic Respiratory Disease,0.5,2.0,15,42,Doxycycline,20,per_kg,4
Poultry,Coryza & Mycoplasma: Mixed,0.5,2.0,15,42,Tylosin,25,per_kg,5
Poultry,Colibacillosis,0.04,0.5,0,14,Colistin,5,per_kg,5
Poultry,Colibacillosis,0.5,2.0,15,42,Enrofloxacin,10,per_kg,5
Poultry,Fowl Cholera,0.5,2.0,15,42,Oxytetracycline,40,per_kg,5
Duck,Fowl Cholera,1.0,3.5,21,365,Sulfadimidine,100,per_kg,4
Goat,Pneumonia,10,60,60,3650,Oxytetracycline,10,per_kg,5
`

// MockNotifier records every message it is asked to send
type MockNotifier struct {
	mu    sync.Mutex
	err   error
	sent  []string
	texts []string
}

func (m *MockNotifier) Send(_ context.Context, mobile, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mobile)
	m.texts = append(m.texts, body)
	return nil
}

// MockHealthChecker returns a canned report
type MockHealthChecker struct {
	status     string
	details    map[string]any
	httpStatus int
}

func (m *MockHealthChecker) HealthCheck(context.Context) (string, map[string]any, int) {
	return m.status, m.details, m.httpStatus
}

func (m *MockHealthChecker) CalculateNextUpdate() time.Time {
	return time.Time{}
}

// failingStore wraps a MemoryStore and fails writes
type failingStore struct {
	*history.MemoryStore
}

func (failingStore) Save(context.Context, *history.Record) error {
	return errors.New("connection refused")
}

// TestEnv bundles a handler with its collaborators
type TestEnv struct {
	Handler   *HTTPHandlerImpl
	Container *data.DataContainer
	Store     history.Store
	Notifier  *MockNotifier
	Router    chi.Router
}

func newTestIndex(t *testing.T) *dataset.Index {
	t.Helper()
	idx, err := dataset.Parse(strings.NewReader(testDataset), reference.Default())
	if err != nil {
		t.Fatalf("Failed to parse test dataset: %v", err)
	}
	return idx
}

// newTestEnv builds a handler over the test dataset. A nil store means a
// fresh MemoryStore.
func newTestEnv(t *testing.T, loaded bool, store history.Store) *TestEnv {
	t.Helper()

	container := data.NewDataContainer()
	if loaded {
		container.UpdateIndex(newTestIndex(t))
	}
	if store == nil {
		store = history.NewMemoryStore()
	}

	notifier := &MockNotifier{}
	health := &MockHealthChecker{status: "healthy", details: map[string]any{"records": 8}, httpStatus: http.StatusOK}
	handler := NewHTTPHandler(container, recommend.NewEngine(container, nil), store, notifier, health)
	handler.now = func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }

	return &TestEnv{
		Handler:   handler,
		Container: container,
		Store:     store,
		Notifier:  notifier,
		Router:    newTestRouter(handler),
	}
}

func newTestRouter(h *HTTPHandlerImpl) chi.Router {
	router := chi.NewRouter()
	router.Post("/v1/medicine/predict", h.Predict)
	router.Post("/v1/medicine/recommend", h.Recommend)
	router.Post("/v1/medicine/suggest", h.Suggest)
	router.Get("/v1/medicine/diseases", h.ListDiseases)
	router.Get("/v1/medicine/diseases/{disease}/antibiotics", h.ListAntibiotics)
	router.Get("/v1/medicine/animal-types", h.ListAnimalTypes)
	router.Get("/v1/farmers/{farmerID}/recommendations", h.FarmerRecommendations)
	router.Get("/v1/recommendations/unclaimed", h.UnclaimedRecommendations)
	router.Get("/v1/recommendations/{id}", h.GetRecommendation)
	router.Get("/v1/shops/{shopID}/recommendations", h.ShopRecommendations)
	router.Post("/v1/recommendations/{id}/claim", h.ClaimRecommendation)
	router.Post("/v1/recommendations/{id}/unclaim", h.UnclaimRecommendation)
	router.Get("/health", h.HealthCheck)
	return router
}

// Do executes a request against the test router
func (e *TestEnv) Do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.Router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if rr.Code != expectedStatus {
		t.Fatalf("Expected status %d, got %d (body: %s)", expectedStatus, rr.Code, rr.Body.String())
	}

	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error"] != http.StatusText(expectedStatus) {
		t.Errorf("Expected error %q, got %v", http.StatusText(expectedStatus), body["error"])
	}
	if code, ok := body["code"].(float64); !ok || int(code) != expectedStatus {
		t.Errorf("Expected code %d, got %v", expectedStatus, body["code"])
	}
	if msg, ok := body["message"].(string); !ok || msg == "" {
		t.Errorf("Expected a message, got %v", body["message"])
	}
}
