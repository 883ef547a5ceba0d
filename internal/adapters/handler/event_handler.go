package handler

import (
	"net/http"
	"strconv"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/rs/zerolog"
)

// EventHandler handles HTTP requests for inseminations and diagnoses
type EventHandler struct {
	eventService ports.EventService
	window       domain.WindowConfig
	logger       zerolog.Logger
}

// NewEventHandler creates a new event handler
// window is the configured threshold set used for exam type suggestions
func NewEventHandler(eventService ports.EventService, window domain.WindowConfig, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		window:       window,
		logger:       logger.With().Str("component", "event_handler").Logger(),
	}
}

// RegisterInseminations handles POST /events/inseminations
// Links every subject to its active protocol; answers 409 with candidates when a choice is needed
func (h *EventHandler) RegisterInseminations(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	var req ports.RegisterInseminationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		scope.rejectBody(w, r, err)
		return
	}

	result, err := h.eventService.RegisterInseminations(r.Context(), scope.farmID, req)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}
	scope.writeBatch(w, r, result)
}

// RegisterDiagnoses handles POST /events/diagnoses
func (h *EventHandler) RegisterDiagnoses(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	var req ports.RegisterDiagnosesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		scope.rejectBody(w, r, err)
		return
	}

	result, err := h.eventService.RegisterDiagnoses(r.Context(), scope.farmID, req)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}
	for _, d := range result.Decisions {
		if d.Window != nil {
			recordEvaluation(*d.Window)
		}
	}
	scope.writeBatch(w, r, result)
}

// EvaluateDiagnosis handles POST /diagnoses/evaluate
// Always 200 when the check ran; the body says whether the diagnosis is allowed
func (h *EventHandler) EvaluateDiagnosis(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	var req ports.EvaluateDiagnosisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		scope.rejectBody(w, r, err)
		return
	}

	result, err := h.eventService.EvaluateDiagnosis(r.Context(), scope.farmID, req)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}

	recordEvaluation(result)
	writeJSON(w, http.StatusOK, result)
	scope.logStructured(r, http.StatusOK)
}

// SuggestionResponse is the exam type proposed for a day count
type SuggestionResponse struct {
	DaysSinceInsemination int             `json:"days_since_insemination"`
	SuggestedExamType     domain.ExamType `json:"suggested_exam_type"`
}

// SuggestExamType handles GET /exam-types/suggest?days=N
func (h *EventHandler) SuggestExamType(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		scope.writeError(w, r, domain.NewDecisionError(domain.KindInvalidInput, "days must be a non-negative integer"))
		return
	}

	writeJSON(w, http.StatusOK, SuggestionResponse{
		DaysSinceInsemination: days,
		SuggestedExamType:     domain.SuggestExamType(h.window, days),
	})
	scope.logStructured(r, http.StatusOK)
}
