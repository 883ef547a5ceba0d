package ports

import (
	"context"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
)

// TemplateRepository defines the interface for protocol template persistence
type TemplateRepository interface {
	// GetTemplate retrieves a template scoped to a farm
	// Returns domain.ErrNotFound if it doesn't exist
	GetTemplate(ctx context.Context, farmID uuid.UUID, templateID uuid.UUID) (*domain.ProtocolTemplate, error)
}

// ApplicationRepository defines the interface for protocol application persistence
type ApplicationRepository interface {
	// CreateApplications inserts all applications in one transaction
	// Returns domain.ErrDuplicateActiveApplication when a subject already has an ACTIVE one
	CreateApplications(ctx context.Context, apps []domain.ProtocolApplication) error

	// GetApplication retrieves an application scoped to a farm
	GetApplication(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (*domain.ProtocolApplication, error)

	// ListActiveApplications retrieves ACTIVE applications for the given subjects
	ListActiveApplications(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.ProtocolApplication, error)
}

// EventRepository defines the interface for reproductive event persistence
type EventRepository interface {
	// ListEvents retrieves events for the given subjects in insertion order
	ListEvents(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.Event, error)

	// CreateEvents inserts a whole batch in one transaction
	CreateEvents(ctx context.Context, events []domain.Event) error
}

// EventPublisher defines the interface for announcing persisted records on RabbitMQ
type EventPublisher interface {
	// PublishEvents announces newly recorded events
	PublishEvents(ctx context.Context, events []domain.Event) error

	// PublishApplications announces newly started protocol applications
	PublishApplications(ctx context.Context, apps []domain.ProtocolApplication) error
}
