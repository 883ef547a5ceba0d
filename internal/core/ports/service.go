package ports

import (
	"context"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
)

// ProtocolService defines the business logic interface for protocol applications
type ProtocolService interface {
	// ApplyProtocol snapshots a template onto every requested subject
	// All-or-nothing unless AllowPartial; a subject with an ACTIVE application is blocked
	ApplyProtocol(ctx context.Context, farmID uuid.UUID, req ApplyProtocolRequest) (domain.BatchResult, error)

	// GetSchedule expands an application's frozen steps into calendar dates
	GetSchedule(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (domain.Schedule, error)

	// PreviewSchedule expands steps from a start date without touching storage
	PreviewSchedule(steps []domain.Step, startDate domain.Date) (domain.Schedule, error)
}

// EventService defines the business logic interface for reproductive events
type EventService interface {
	// RegisterInseminations links and persists one insemination for every subject
	RegisterInseminations(ctx context.Context, farmID uuid.UUID, req RegisterInseminationsRequest) (domain.BatchResult, error)

	// RegisterDiagnoses validates and persists one diagnosis for every subject
	RegisterDiagnoses(ctx context.Context, farmID uuid.UUID, req RegisterDiagnosesRequest) (domain.BatchResult, error)

	// EvaluateDiagnosis validates a diagnosis for one subject without persisting it
	EvaluateDiagnosis(ctx context.Context, farmID uuid.UUID, req EvaluateDiagnosisRequest) (domain.WindowResult, error)
}

// ApplyProtocolRequest represents the input for applying a template to subjects
type ApplyProtocolRequest struct {
	TemplateID   uuid.UUID   `json:"template_id"`
	SubjectIDs   []uuid.UUID `json:"subject_ids"`
	StartDate    domain.Date `json:"start_date"`
	StartHour    string      `json:"start_hour"` // HH:MM
	AllowPartial bool        `json:"allow_partial"`
}

// RegisterInseminationsRequest represents one insemination submitted for many subjects
type RegisterInseminationsRequest struct {
	SubjectIDs   []uuid.UUID             `json:"subject_ids"`
	EventDate    domain.Date             `json:"event_date"`
	ReasonCode   string                  `json:"reason_code"` // IATF and RESSINC require linking
	Inseminator  string                  `json:"inseminator,omitempty"`
	Sire         string                  `json:"sire,omitempty"`
	Note         string                  `json:"note,omitempty"`
	Choices      map[uuid.UUID]uuid.UUID `json:"choices,omitempty"` // subject -> application
	AllowPartial bool                    `json:"allow_partial"`
}

// RegisterDiagnosesRequest represents one diagnosis submitted for many subjects
type RegisterDiagnosesRequest struct {
	SubjectIDs    []uuid.UUID            `json:"subject_ids"`
	DiagnosisDate domain.Date            `json:"diagnosis_date"`
	ExamType      string                 `json:"exam_type,omitempty"`
	Result        string                 `json:"result"`
	Note          string                 `json:"note,omitempty"`
	Window        *domain.WindowOverride `json:"window,omitempty"` // overrides configured defaults
	AllowPartial  bool                   `json:"allow_partial"`
}

// EvaluateDiagnosisRequest represents a diagnosis checked without persisting
type EvaluateDiagnosisRequest struct {
	SubjectID     uuid.UUID              `json:"subject_id"`
	DiagnosisDate domain.Date            `json:"diagnosis_date"`
	ExamType      string                 `json:"exam_type,omitempty"`
	Result        string                 `json:"result"`
	Window        *domain.WindowOverride `json:"window,omitempty"`
}
