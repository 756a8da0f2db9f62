// Package health reports whether the service can answer recommendations.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/agrisafe-api/interfaces"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is implemented by collaborators with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	nextRun   func() time.Time
	history   Pinger
}

var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// NewHealthChecker creates a health checker. nextRun and history may be nil.
func NewHealthChecker(dataStore interfaces.DataStore, nextRun func() time.Time, history Pinger) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		dataStore: dataStore,
		nextRun:   nextRun,
		history:   history,
	}
}

// HealthCheck is unhealthy (503) without a dataset index and degraded (200)
// when the last reload failed or the history backend does not answer.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	idx := h.dataStore.GetIndex()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()
	failure := h.dataStore.LastReloadFailure()

	data = map[string]any{
		"records":     idx.Len(),
		"diseases":    len(idx.AllDiseases()),
		"is_updating": isUpdating,
	}

	if !lastUpdate.IsZero() {
		data["last_update"] = lastUpdate.Format(time.RFC3339)
		data["data_age_hours"] = math.Round(time.Since(lastUpdate).Hours()*10) / 10
	}

	if next := h.CalculateNextUpdate(); !next.IsZero() {
		data["next_update"] = next.Format(time.RFC3339)
	}

	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = int64(time.Since(start).Seconds())
	}

	status, httpStatus = StatusHealthy, http.StatusOK

	if failure != nil {
		data["last_reload_error"] = failure.Err.Error()
		data["last_reload_failed_at"] = failure.At.Format(time.RFC3339)
		status = StatusDegraded
	}

	switch {
	case h.history == nil:
		data["history"] = "disabled"
	case h.history.Ping(ctx) != nil:
		data["history"] = "unreachable"
		status = StatusDegraded
	default:
		data["history"] = "ok"
	}

	if idx == nil {
		status, httpStatus = StatusUnhealthy, http.StatusServiceUnavailable
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled dataset reload, or the zero
// time when no scheduler is attached.
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.nextRun == nil {
		return time.Time{}
	}
	return h.nextRun()
}
