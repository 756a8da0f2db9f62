// Package interfaces defines the contracts shared between the data,
// scheduler, health, handlers and server packages so each can be tested with
// hand-written mocks.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/recommend"
)

// ReloadFailure describes the most recent failed dataset reload.
type ReloadFailure struct {
	Err error
	At  time.Time
}

// DataStore publishes the live dataset index.
// Implementations must be safe for concurrent use.
type DataStore interface {
	GetIndex() *dataset.Index
	IsReady() bool
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time
	LastReloadFailure() *ReloadFailure

	UpdateIndex(idx *dataset.Index)
	RecordReloadFailure(err error)
	BeginUpdate() bool
	EndUpdate()
}

// DatasetLoader builds a fresh index from the configured source.
type DatasetLoader interface {
	LoadIndex() (*dataset.Index, error)
}

// Scheduler manages the automated dataset reloads.
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker provides system health monitoring and reporting.
type HealthChecker interface {
	// HealthCheck returns the status, report details and HTTP code
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled dataset reload
	CalculateNextUpdate() time.Time
}

// Recommender turns a query into a dosage recommendation, or a ranked list
// of candidate records.
type Recommender interface {
	Recommend(q recommend.Query) (recommend.Result, error)
	Suggest(q recommend.Query, limit int) ([]recommend.Suggestion, error)
}

// HTTPHandler serves the API routes.
type HTTPHandler interface {
	Predict(w http.ResponseWriter, r *http.Request)
	Recommend(w http.ResponseWriter, r *http.Request)
	Suggest(w http.ResponseWriter, r *http.Request)
	ListDiseases(w http.ResponseWriter, r *http.Request)
	ListAntibiotics(w http.ResponseWriter, r *http.Request)
	ListAnimalTypes(w http.ResponseWriter, r *http.Request)
	FarmerRecommendations(w http.ResponseWriter, r *http.Request)
	UnclaimedRecommendations(w http.ResponseWriter, r *http.Request)
	GetRecommendation(w http.ResponseWriter, r *http.Request)
	ShopRecommendations(w http.ResponseWriter, r *http.Request)
	ClaimRecommendation(w http.ResponseWriter, r *http.Request)
	UnclaimRecommendation(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
