package handler

import (
	"net/http"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProtocolHandler handles HTTP requests for protocol applications and schedules
type ProtocolHandler struct {
	protocolService ports.ProtocolService
	logger          zerolog.Logger
}

// NewProtocolHandler creates a new protocol handler
func NewProtocolHandler(protocolService ports.ProtocolService, logger zerolog.Logger) *ProtocolHandler {
	return &ProtocolHandler{
		protocolService: protocolService,
		logger:          logger.With().Str("component", "protocol_handler").Logger(),
	}
}

// ApplyProtocol handles POST /protocol-applications
// ADMIN and VET - snapshots a template onto every listed subject
func (h *ProtocolHandler) ApplyProtocol(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	var req ports.ApplyProtocolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		scope.rejectBody(w, r, err)
		return
	}

	result, err := h.protocolService.ApplyProtocol(r.Context(), scope.farmID, req)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}
	scope.writeBatch(w, r, result)
}

// GetSchedule handles GET /protocol-applications/{application_id}/schedule
func (h *ProtocolHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	applicationID, err := uuid.Parse(r.PathValue("application_id"))
	if err != nil {
		scope.writeError(w, r, domain.NewDecisionError(domain.KindInvalidInput, "invalid application ID"))
		return
	}

	schedule, err := h.protocolService.GetSchedule(r.Context(), scope.farmID, applicationID)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
	scope.logStructured(r, http.StatusOK)
}

// PreviewScheduleRequest represents a schedule computed from raw steps
type PreviewScheduleRequest struct {
	StartDate domain.Date   `json:"start_date"`
	Steps     []domain.Step `json:"steps"`
}

// PreviewSchedule handles POST /schedules/preview
func (h *ProtocolHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	scope, ok := newRequestScope(w, r, h.logger)
	if !ok {
		return
	}

	var req PreviewScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		scope.rejectBody(w, r, err)
		return
	}

	schedule, err := h.protocolService.PreviewSchedule(req.Steps, req.StartDate)
	if err != nil {
		scope.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
	scope.logStructured(r, http.StatusOK)
}

// ScheduleResponse is a schedule with both its flat and per-day views
type ScheduleResponse struct {
	StartDate         domain.Date            `json:"start_date"`
	Steps             []domain.ScheduledStep `json:"steps"`
	Days              []domain.ScheduleDay   `json:"days"`
	InseminationDates []domain.Date          `json:"insemination_dates"`
}

func newScheduleResponse(s domain.Schedule) ScheduleResponse {
	dates := s.InseminationDates()
	if dates == nil {
		dates = []domain.Date{}
	}
	return ScheduleResponse{
		StartDate:         s.StartDate,
		Steps:             s.Steps,
		Days:              s.Days(),
		InseminationDates: dates,
	}
}
