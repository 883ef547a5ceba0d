package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/IANDYI/breeding-service/internal/adapters/middleware"
	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies; a batch of a few thousand subjects fits easily
const maxBodyBytes = 1 << 20

// generateRequestID generates a unique request ID for tracing
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}

// requestScope carries the per-request identity and logger
type requestScope struct {
	id     string
	start  time.Time
	userID string
	role   string
	farmID uuid.UUID
	logger zerolog.Logger
}

// newRequestScope reads the authenticated identity from the request.
// Writes 401 and returns false when the farm or user is missing.
func newRequestScope(w http.ResponseWriter, r *http.Request, base zerolog.Logger) (*requestScope, bool) {
	s := &requestScope{id: generateRequestID(), start: time.Now()}
	s.logger = base.With().Str("request_id", s.id).Logger()

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		s.logger.Warn().Msg("failed to get user ID from context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	farmID, ok := middleware.GetFarmID(r.Context())
	if !ok {
		s.logger.Warn().Str("user_id", userID).Msg("failed to get farm ID from context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	role, _ := middleware.GetRole(r.Context())

	s.userID = userID
	s.role = role
	s.farmID = farmID
	s.logger = s.logger.With().Str("user_id", userID).Str("farm_id", farmID.String()).Logger()
	return s, true
}

// logStructured logs request metadata once the response is written
// Includes: request_id, user_id, role, farm_id, endpoint, status_code, duration
func (s *requestScope) logStructured(r *http.Request, statusCode int) {
	s.logger.Info().
		Str("role", s.role).
		Str("method", r.Method).
		Str("endpoint", r.URL.Path).
		Int("status_code", statusCode).
		Int64("duration_ms", time.Since(s.start).Milliseconds()).
		Msg("request completed")
}

// decodeJSON decodes a bounded request body and rejects unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Kind      domain.ErrorKind `json:"kind,omitempty"`
	Message   string           `json:"message"`
	Threshold *int             `json:"threshold,omitempty"`
	SubjectID *uuid.UUID       `json:"subject_id,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// statusForKind maps a decision error kind to its HTTP status
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidDate, domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateActiveApplication, domain.KindAmbiguousLink:
		return http.StatusConflict
	case domain.KindOutOfWindow, domain.KindNoActiveApplication, domain.KindNoPriorInsemination, domain.KindPartialBatchFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a decision error with its mapped status; anything else is a 500
// whose details stay in the log
func (s *requestScope) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DecisionError
	if !errors.As(err, &de) {
		s.logger.Error().Err(err).Str("endpoint", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "internal server error", RequestID: s.id})
		s.logStructured(r, http.StatusInternalServerError)
		return
	}

	status := statusForKind(de.Kind)
	resp := ErrorResponse{Kind: de.Kind, Message: de.Message, Threshold: de.Threshold, RequestID: s.id}
	if de.SubjectID != uuid.Nil {
		id := de.SubjectID
		resp.SubjectID = &id
	}
	s.logger.Info().Str("kind", string(de.Kind)).Str("reason", de.Message).Msg("request rejected")
	writeJSON(w, status, resp)
	s.logStructured(r, status)
}

// writeBatch writes a bulk result. Ready and partial batches were persisted (201);
// needs-choice (409) and rejected (422) batches carry the per-subject decisions.
func (s *requestScope) writeBatch(w http.ResponseWriter, r *http.Request, result domain.BatchResult) {
	status := http.StatusCreated
	switch result.Status {
	case domain.BatchNeedsChoice:
		status = http.StatusConflict
	case domain.BatchRejected:
		status = http.StatusUnprocessableEntity
	}
	recordBatch(result)
	writeJSON(w, status, result)
	s.logStructured(r, status)
}

// rejectBody answers a body that failed to decode. Dates and steps validate while
// decoding, so their decision errors keep their kind.
func (s *requestScope) rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) != "" {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info().Err(err).Msg("failed to decode request")
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: domain.KindInvalidInput, Message: "invalid request body", RequestID: s.id})
	s.logStructured(r, http.StatusBadRequest)
}
