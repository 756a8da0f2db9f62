package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/interfaces"
	"github.com/giygas/agrisafe-api/logging"
	"github.com/giygas/agrisafe-api/metrics"
	"github.com/giygas/agrisafe-api/notify"
	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/schedule"
	"github.com/giygas/agrisafe-api/validation"
	"github.com/go-chi/chi/v5"
)

const (
	DefaultDailyFrequency = 2
	DefaultTreatmentDays  = 7
)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.DataStore
	engine        interfaces.Recommender
	history       history.Store
	notifier      notify.Notifier
	healthChecker interfaces.HealthChecker
	now           func() time.Time
}

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	dataStore interfaces.DataStore,
	engine interfaces.Recommender,
	store history.Store,
	notifier notify.Notifier,
	healthChecker interfaces.HealthChecker,
) *HTTPHandlerImpl {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		engine:        engine,
		history:       store,
		notifier:      notifier,
		healthChecker: healthChecker,
		now:           time.Now,
	}
}

// plan is one validated request: the animal and one item per antibiotic
type plan struct {
	query       recommend.Query
	ageCategory string
	items       []planItem
}

type planItem struct {
	requested  string
	notes      string
	doseSource string
	result     recommend.Result
	schedule   schedule.Schedule
}

// buildPlan validates req and computes every treatment of the plan.
// Outcome metrics are recorded here so predict and recommend count alike.
func (h *HTTPHandlerImpl) buildPlan(req PredictRequest) (plan, error) {
	p, err := h.computePlan(req)
	if err != nil {
		recordOutcome(err)
		return plan{}, err
	}
	for _, item := range p.items {
		metrics.ObserveRecommendation(item.result.Confidence)
	}
	return p, nil
}

func (h *HTTPHandlerImpl) computePlan(req PredictRequest) (plan, error) {
	if err := validatePredictRequest(req); err != nil {
		return plan{}, err
	}

	start, err := validation.StartDate(req.StartDate, h.now())
	if err != nil {
		return plan{}, err
	}

	base := recommend.Query{
		AnimalType: strings.TrimSpace(req.AnimalType),
		Disease:    strings.TrimSpace(req.Disease),
		WeightKg:   req.WeightKg,
		AgeDays:    *req.AgeDays,
	}

	// A single soft preference when no antibiotics list was given
	specs, strict := req.Antibiotics, true
	if len(specs) == 0 {
		specs = []PlanItemRequest{{Antibiotic: req.PreferredAntibiotic}}
		strict = false
	}

	p := plan{query: base, items: make([]planItem, 0, len(specs))}
	for _, spec := range specs {
		item, err := h.computeItem(base, spec, strict, req, start)
		if err != nil {
			return plan{}, err
		}
		p.items = append(p.items, item)
	}
	p.query.PreferredAntibiotic = p.items[0].requested
	p.ageCategory = p.items[0].result.AgeCategory
	return p, nil
}

func (h *HTTPHandlerImpl) computeItem(base recommend.Query, spec PlanItemRequest, strict bool, req PredictRequest, start time.Time) (planItem, error) {
	q := base
	q.PreferredAntibiotic = strings.TrimSpace(spec.Antibiotic)
	q.RequirePreferred = strict

	res, err := h.engine.Recommend(q)
	if err != nil {
		return planItem{}, err
	}

	frequency := DefaultDailyFrequency
	switch {
	case spec.DailyFrequency != nil:
		frequency = *spec.DailyFrequency
	case req.DailyFrequency != nil:
		frequency = *req.DailyFrequency
	}

	days := DefaultTreatmentDays
	switch {
	case spec.TreatmentDays != nil:
		days = *spec.TreatmentDays
	case req.TreatmentDays != nil:
		days = *req.TreatmentDays
	case res.SuggestedTreatmentDays > 0:
		days = res.SuggestedTreatmentDays
	}

	source := history.DoseFromDataset
	if spec.SingleDoseML != nil && spec.TreatmentDays != nil {
		res.SingleDoseML = *spec.SingleDoseML
		res.CalculationNote += " Dose and course kept as provided."
		source = history.DoseFromProvided
	}

	s, err := schedule.Build(res, frequency, days, start)
	if err != nil {
		return planItem{}, err
	}

	return planItem{
		requested:  q.PreferredAntibiotic,
		notes:      strings.TrimSpace(spec.Notes),
		doseSource: source,
		result:     res,
		schedule:   s,
	}, nil
}

func recordOutcome(err error) {
	var (
		noMatch  *recommend.NoMatchError
		invalid  *recommend.InvalidQueryError
		field    *validation.FieldError
		schedErr *schedule.InvalidScheduleInputError
	)
	switch {
	case errors.As(err, &noMatch):
		metrics.RecommendationsTotal.WithLabelValues(metrics.OutcomeNoMatch).Inc()
	case errors.As(err, &invalid), errors.As(err, &field), errors.As(err, &schedErr):
		metrics.RecommendationsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
	default:
		metrics.RecommendationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	}
}

func validatePredictRequest(req PredictRequest) error {
	if err := validateAnimal(req.AnimalType, req.Disease, req.WeightKg, req.AgeDays); err != nil {
		return err
	}
	if err := validation.Text("preferred_antibiotic", req.PreferredAntibiotic, false, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.PositiveInt("daily_frequency", req.DailyFrequency, validation.MaxDailyFrequency); err != nil {
		return err
	}
	if err := validation.PositiveInt("treatment_days", req.TreatmentDays, validation.MaxTreatmentDays); err != nil {
		return err
	}

	if len(req.Antibiotics) > validation.MaxPlanItems {
		return &validation.FieldError{Field: "antibiotics", Reason: fmt.Sprintf("must not list more than %d items", validation.MaxPlanItems)}
	}
	for i, item := range req.Antibiotics {
		if err := validatePlanItem(fmt.Sprintf("antibiotics[%d]", i), item); err != nil {
			return err
		}
	}
	return nil
}

func validateAnimal(animalType, disease string, weightKg float64, ageDays *int) error {
	if err := validation.Text("animal_type", animalType, true, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.Text("disease", disease, true, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.Weight(weightKg); err != nil {
		return err
	}
	return validation.Age(ageDays)
}

func validatePlanItem(prefix string, item PlanItemRequest) error {
	if err := validation.Text(prefix+".antibiotic", item.Antibiotic, true, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.PositiveInt(prefix+".daily_frequency", item.DailyFrequency, validation.MaxDailyFrequency); err != nil {
		return err
	}
	if err := validation.PositiveInt(prefix+".treatment_days", item.TreatmentDays, validation.MaxTreatmentDays); err != nil {
		return err
	}
	if err := validation.DoseML(prefix+".single_dose_ml", item.SingleDoseML); err != nil {
		return err
	}
	if item.SingleDoseML != nil && item.TreatmentDays == nil {
		return &validation.FieldError{Field: prefix + ".single_dose_ml", Reason: "requires treatment_days"}
	}
	var notesErr *validation.FieldError
	if err := validation.Notes(item.Notes); errors.As(err, &notesErr) {
		return &validation.FieldError{Field: prefix + ".notes", Reason: notesErr.Reason}
	}
	return nil
}

func validateOwner(req RecommendRequest) error {
	if err := validation.Text("farmer_id", req.FarmerID, true, validation.MaxIDLength); err != nil {
		return err
	}
	if err := validation.Text("shop_id", req.ShopID, false, validation.MaxIDLength); err != nil {
		return err
	}
	if err := validation.Mobile(req.FarmerMobile); err != nil {
		return err
	}
	return validation.Notes(req.Notes)
}

// Predict returns a recommendation and schedule without storing anything
func (h *HTTPHandlerImpl) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.buildPlan(req)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, newPredictionResponse(p))
}

// Recommend stores the recommendation and notifies the farmer when a mobile
// number was given. A failed notification does not fail the request.
func (h *HTTPHandlerImpl) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := validateOwner(req); err != nil {
		metrics.RecommendationsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		respondWithDomainError(w, r, err)
		return
	}

	p, err := h.buildPlan(req.PredictRequest)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	owner := history.Owner{
		FarmerID:     strings.TrimSpace(req.FarmerID),
		ShopID:       strings.TrimSpace(req.ShopID),
		FarmerMobile: req.FarmerMobile,
		Notes:        strings.TrimSpace(req.Notes),
	}
	items := make([]history.Item, len(p.items))
	for i, item := range p.items {
		items[i] = history.NewItem(item.requested, item.doseSource, item.notes, item.result, item.schedule)
	}
	rec := history.NewRecord(owner, p.query, p.ageCategory, items)
	if err := h.history.Save(r.Context(), rec); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	logging.Info("Recommendation stored",
		"id", rec.ID,
		"farmer_id", rec.FarmerID,
		"antibiotics", len(rec.Items),
		"confidence", rec.Items[0].Confidence,
	)

	RespondWithJSON(w, http.StatusCreated, RecommendResponse{
		ID:                 rec.ID,
		PredictionResponse: newPredictionResponse(p),
		NotificationSent:   h.notifyFarmer(r, rec),
	})
}

func (h *HTTPHandlerImpl) notifyFarmer(r *http.Request, rec *history.Record) bool {
	if rec.FarmerMobile == "" {
		return false
	}

	err := h.notifier.Send(r.Context(), rec.FarmerMobile, notify.TreatmentMessage(rec))
	switch {
	case errors.Is(err, notify.ErrDisabled):
		metrics.NotificationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return false
	case err != nil:
		metrics.NotificationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		logging.Warn("Failed to notify farmer", "id", rec.ID, "error", err)
		return false
	}
	metrics.NotificationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return true
}

// Suggest returns the closest dataset records ranked by similarity
func (h *HTTPHandlerImpl) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := validateAnimal(req.AnimalType, req.Disease, req.WeightKg, req.AgeDays); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if err := validation.PositiveInt("limit", req.Limit, validation.MaxSuggestions); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	limit := recommend.DefaultSuggestions
	if req.Limit != nil {
		limit = *req.Limit
	}

	suggestions, err := h.engine.Suggest(recommend.Query{
		AnimalType: strings.TrimSpace(req.AnimalType),
		Disease:    strings.TrimSpace(req.Disease),
		WeightKg:   req.WeightKg,
		AgeDays:    *req.AgeDays,
	}, limit)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// ListDiseases returns every disease in the dataset
func (h *HTTPHandlerImpl) ListDiseases(w http.ResponseWriter, r *http.Request) {
	idx := h.dataStore.GetIndex()
	if idx == nil {
		respondWithDomainError(w, r, recommend.ErrIndexNotLoaded)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"diseases": idx.AllDiseases()})
}

// ListAntibiotics returns the antibiotics recorded for one disease
func (h *HTTPHandlerImpl) ListAntibiotics(w http.ResponseWriter, r *http.Request) {
	disease := pathParam(r, "disease")
	if err := validation.Text("disease", disease, true, validation.MaxNameLength); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	idx := h.dataStore.GetIndex()
	if idx == nil {
		respondWithDomainError(w, r, recommend.ErrIndexNotLoaded)
		return
	}
	if !idx.HasDisease(disease) {
		RespondWithError(w, http.StatusNotFound, "Disease not found")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"disease":     disease,
		"antibiotics": idx.AntibioticsFor(disease),
	})
}

// ListAnimalTypes returns every animal type in the dataset
func (h *HTTPHandlerImpl) ListAnimalTypes(w http.ResponseWriter, r *http.Request) {
	idx := h.dataStore.GetIndex()
	if idx == nil {
		respondWithDomainError(w, r, recommend.ErrIndexNotLoaded)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"animal_types": idx.AnimalTypes()})
}

// FarmerRecommendations lists a farmer's records, newest first
func (h *HTTPHandlerImpl) FarmerRecommendations(w http.ResponseWriter, r *http.Request) {
	farmerID := pathParam(r, "farmerID")
	if err := validation.Text("farmer_id", farmerID, true, validation.MaxIDLength); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	recs, err := h.history.ListByFarmer(r.Context(), farmerID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"farmer_id":       farmerID,
		"recommendations": newRecordResponses(recs),
	})
}

// UnclaimedRecommendations lists records no shop has claimed yet
func (h *HTTPHandlerImpl) UnclaimedRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.history.ListUnclaimed(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"recommendations": newRecordResponses(recs)})
}

// GetRecommendation returns one stored record
func (h *HTTPHandlerImpl) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.RecordID(id); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	rec, err := h.history.Get(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, newRecordResponse(rec))
}

// ShopRecommendations lists the records a shop has claimed, newest first
func (h *HTTPHandlerImpl) ShopRecommendations(w http.ResponseWriter, r *http.Request) {
	shopID := pathParam(r, "shopID")
	if err := validation.Text("shop_id", shopID, true, validation.MaxIDLength); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	recs, err := h.history.ListClaimedBy(r.Context(), shopID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"claimed_by":      shopID,
		"recommendations": newRecordResponses(recs),
	})
}

// ClaimRecommendation marks a record as handled by a shop
func (h *HTTPHandlerImpl) ClaimRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.RecordID(id); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	var req ClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Text("claimed_by", req.ClaimedBy, true, validation.MaxIDLength); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	rec, err := h.history.Claim(r.Context(), id, strings.TrimSpace(req.ClaimedBy))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	logging.Info("Recommendation claimed", "id", id, "claimed_by", req.ClaimedBy)
	RespondWithJSON(w, http.StatusOK, newRecordResponse(rec))
}

// UnclaimRecommendation releases a claimed record
func (h *HTTPHandlerImpl) UnclaimRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.RecordID(id); err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	rec, err := h.history.Unclaim(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	logging.Info("Recommendation unclaimed", "id", id)
	RespondWithJSON(w, http.StatusOK, newRecordResponse(rec))
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// HealthCheck reports dataset and history health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, code := h.healthChecker.HealthCheck(r.Context())
	RespondWithJSON(w, code, HealthResponse{Status: status, Data: details})
}

// pathParam returns an unescaped chi URL parameter
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
