// Package handlers provides the HTTP handlers of the dosage API: predictions,
// persisted recommendations, dataset listings, history and health.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/logging"
	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/schedule"
	"github.com/giygas/agrisafe-api/validation"
)

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// respondWithDomainError maps core and collaborator errors to HTTP statuses.
// Unknown errors are logged and answered with a generic 500.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fieldErr    *validation.FieldError
		queryErr    *recommend.InvalidQueryError
		scheduleErr *schedule.InvalidScheduleInputError
		noMatchErr  *recommend.NoMatchError
	)

	switch {
	case errors.As(err, &fieldErr):
		RespondWithError(w, http.StatusBadRequest, fieldErr.Error())
	case errors.As(err, &queryErr):
		RespondWithError(w, http.StatusBadRequest, queryErr.Error())
	case errors.As(err, &scheduleErr):
		RespondWithError(w, http.StatusBadRequest, scheduleErr.Error())
	case errors.As(err, &noMatchErr) && noMatchErr.Antibiotic != "":
		RespondWithError(w, http.StatusNotFound,
			fmt.Sprintf("No %s treatment data found for %s with %s", noMatchErr.Antibiotic, noMatchErr.AnimalType, noMatchErr.Disease))
	case errors.As(err, &noMatchErr):
		RespondWithError(w, http.StatusNotFound,
			fmt.Sprintf("No treatment data found for %s with %s", noMatchErr.AnimalType, noMatchErr.Disease))
	case errors.Is(err, recommend.ErrIndexNotLoaded):
		RespondWithError(w, http.StatusServiceUnavailable, "Treatment dataset is not loaded yet")
	case errors.Is(err, history.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, "Recommendation not found")
	case errors.Is(err, history.ErrAlreadyClaimed):
		RespondWithError(w, http.StatusConflict, "Recommendation is already claimed by another shop")
	default:
		logging.Error("Request failed", "path", r.URL.Path, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a single JSON object into dst and reports false after
// writing an error response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			RespondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			RespondWithError(w, http.StatusBadRequest, "Request body must not be empty")
		default:
			logging.Warn("Malformed request body", "path", r.URL.Path, "error", err)
			RespondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		}
		return false
	}

	if dec.More() {
		RespondWithError(w, http.StatusBadRequest, "Request body must contain a single JSON object")
		return false
	}
	return true
}
