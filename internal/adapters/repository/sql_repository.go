package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
)

// OneActiveApplicationConstraint is the partial unique index guarding
// "at most one ACTIVE application per subject"
const OneActiveApplicationConstraint = "ux_protocol_applications_one_active"

const pqUniqueViolation = "23505"

// SQLRepository implements the template, application and event repositories using PostgreSQL
// Includes retry logic and circuit breaker for resilience
type SQLRepository struct {
	db            *sql.DB
	applicationCB *gobreaker.CircuitBreaker
	eventCB       *gobreaker.CircuitBreaker
	maxRetries    int
	retryDelay    time.Duration
}

// BreakerSettings configures the repository circuit breakers
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// NewSQLRepository creates a new PostgreSQL repository with circuit breakers
func NewSQLRepository(db *sql.DB, cfg BreakerSettings) *SQLRepository {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// Decision errors and missing rows are answers, not outages
			IsSuccessful: func(err error) bool {
				return err == nil || domain.KindOf(err) != "" || errors.Is(err, sql.ErrNoRows)
			},
		}
	}

	return &SQLRepository{
		db:            db,
		applicationCB: gobreaker.NewCircuitBreaker(settings("database-applications")),
		eventCB:       gobreaker.NewCircuitBreaker(settings("database-events")),
		maxRetries:    3,
		retryDelay:    1 * time.Second,
	}
}

// executeWithRetry executes a database operation with retry logic
func (r *SQLRepository) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		if i < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", r.maxRetries, lastErr)
}

// isTransient reports whether retrying err could succeed
func isTransient(err error) bool {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if domain.KindOf(err) != "" {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exception, 40 is transaction rollback (serialization, deadlock)
		class := pqErr.Code.Class()
		return class == "08" || class == "40"
	}
	return true
}

// mapConstraintError turns a unique violation on the active index into a decision error
func mapConstraintError(err error, subjectID uuid.UUID) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == OneActiveApplicationConstraint {
		return domain.NewDecisionError(domain.KindDuplicateActiveApplication,
			"subject %s already has an active protocol application", subjectID).WithSubject(subjectID)
	}
	return err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// TemplateRepository implementation

func (r *SQLRepository) GetTemplate(ctx context.Context, farmID uuid.UUID, templateID uuid.UUID) (*domain.ProtocolTemplate, error) {
	result, err := r.applicationCB.Execute(func() (interface{}, error) {
		var tmpl domain.ProtocolTemplate
		var category string
		var steps []byte
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT id, farm_id, name, category, steps FROM protocol_templates WHERE id = $1 AND farm_id = $2`
			return r.db.QueryRowContext(ctx, query, templateID, farmID).Scan(&tmpl.ID, &tmpl.FarmID, &tmpl.Name, &category, &steps)
		})
		if err != nil {
			return nil, err
		}
		tmpl.Category = domain.ProtocolCategory(category)
		if err := json.Unmarshal(steps, &tmpl.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode template steps: %w", err)
		}
		return &tmpl, nil
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewDecisionError(domain.KindNotFound, "protocol template %s not found", templateID)
		}
		return nil, err
	}

	return result.(*domain.ProtocolTemplate), nil
}

// CreateTemplate stores a template; used by seeding and the migrate command
func (r *SQLRepository) CreateTemplate(ctx context.Context, tmpl domain.ProtocolTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	steps, err := json.Marshal(tmpl.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode template steps: %w", err)
	}
	_, err = r.applicationCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			query := `INSERT INTO protocol_templates (id, farm_id, name, category, steps) VALUES ($1, $2, $3, $4, $5)`
			_, err := r.db.ExecContext(ctx, query, tmpl.ID, tmpl.FarmID, tmpl.Name, string(tmpl.Category), steps)
			return err
		})
	})
	return err
}

// ApplicationRepository implementation

func (r *SQLRepository) CreateApplications(ctx context.Context, apps []domain.ProtocolApplication) error {
	if len(apps) == 0 {
		return nil
	}
	_, err := r.applicationCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			tx, err := r.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback() //nolint:errcheck // no-op after commit

			query := `INSERT INTO protocol_applications (
				id, farm_id, subject_id, protocol_id, protocol_name, category, steps_snapshot,
				start_date, start_hour, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
			for _, app := range apps {
				steps, err := json.Marshal(app.Steps)
				if err != nil {
					return fmt.Errorf("failed to encode steps snapshot: %w", err)
				}
				_, err = tx.ExecContext(ctx, query,
					app.ID,
					app.FarmID,
					app.SubjectID,
					app.ProtocolID,
					app.ProtocolName,
					string(app.Category),
					steps,
					app.StartDate,
					app.StartHour,
					string(app.Status),
					app.CreatedAt,
				)
				if err != nil {
					return mapConstraintError(err, app.SubjectID)
				}
			}
			return tx.Commit()
		})
	})
	return err
}

const applicationColumns = `id, farm_id, subject_id, protocol_id, protocol_name, category, steps_snapshot,
	start_date, start_hour, status, created_at`

func (r *SQLRepository) GetApplication(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (*domain.ProtocolApplication, error) {
	result, err := r.applicationCB.Execute(func() (interface{}, error) {
		var app domain.ProtocolApplication
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT ` + applicationColumns + ` FROM protocol_applications WHERE id = $1 AND farm_id = $2`
			row := r.db.QueryRowContext(ctx, query, applicationID, farmID)
			scanned, err := scanApplication(row)
			if err != nil {
				return err
			}
			app = scanned
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &app, nil
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewDecisionError(domain.KindNotFound, "protocol application %s not found", applicationID)
		}
		return nil, err
	}

	return result.(*domain.ProtocolApplication), nil
}

func (r *SQLRepository) ListActiveApplications(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.ProtocolApplication, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	result, err := r.applicationCB.Execute(func() (interface{}, error) {
		var apps []domain.ProtocolApplication
		err := r.executeWithRetry(ctx, func() error {
			apps = nil
			query := `SELECT ` + applicationColumns + ` FROM protocol_applications
				WHERE farm_id = $1 AND subject_id = ANY($2::uuid[]) AND status = $3
				ORDER BY start_date, created_at`
			rows, err := r.db.QueryContext(ctx, query, farmID, pq.Array(uuidStrings(subjectIDs)), string(domain.ApplicationActive))
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				app, err := scanApplication(rows)
				if err != nil {
					return err
				}
				apps = append(apps, app)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return apps, nil
	})

	if err != nil {
		return nil, err
	}

	return result.([]domain.ProtocolApplication), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (domain.ProtocolApplication, error) {
	var app domain.ProtocolApplication
	var category, status string
	var steps []byte
	err := row.Scan(
		&app.ID,
		&app.FarmID,
		&app.SubjectID,
		&app.ProtocolID,
		&app.ProtocolName,
		&category,
		&steps,
		&app.StartDate,
		&app.StartHour,
		&status,
		&app.CreatedAt,
	)
	if err != nil {
		return domain.ProtocolApplication{}, err
	}
	app.Category = domain.ProtocolCategory(category)
	app.Status = domain.ApplicationStatus(status)
	if err := json.Unmarshal(steps, &app.Steps); err != nil {
		return domain.ProtocolApplication{}, fmt.Errorf("failed to decode steps snapshot: %w", err)
	}
	return app, nil
}

// EventRepository implementation

func (r *SQLRepository) CreateEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.eventCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			tx, err := r.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback() //nolint:errcheck // no-op after commit

			query := `INSERT INTO breeding_events (
				id, farm_id, subject_id, kind, event_date, reason_code, raw_reason_code,
				linked_application_id, inseminator, sire, protocol_id,
				result, exam_type, parent_insemination_id, days_since_insemination, note, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
			for _, e := range events {
				_, err := tx.ExecContext(ctx, query,
					e.ID,
					e.FarmID,
					e.SubjectID,
					string(e.Kind),
					e.EventDate,
					nullString(string(e.ReasonCode)),
					nullString(e.RawReasonCode),
					nullUUID(e.LinkedApplicationID),
					nullString(e.Inseminator),
					nullString(e.Sire),
					nullUUID(e.ProtocolID),
					nullString(string(e.Result)),
					nullString(string(e.ExamType)),
					nullUUID(e.ParentInseminationID),
					e.DaysSinceInsemination,
					nullString(e.Note),
					e.CreatedAt,
				)
				if err != nil {
					return err
				}
			}
			return tx.Commit()
		})
	})
	return err
}

func (r *SQLRepository) ListEvents(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.Event, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	result, err := r.eventCB.Execute(func() (interface{}, error) {
		var events []domain.Event
		err := r.executeWithRetry(ctx, func() error {
			events = nil
			query := `SELECT id, farm_id, subject_id, kind, event_date, reason_code, raw_reason_code,
				linked_application_id, inseminator, sire, protocol_id,
				result, exam_type, parent_insemination_id, days_since_insemination, note, created_at
				FROM breeding_events
				WHERE farm_id = $1 AND subject_id = ANY($2::uuid[])
				ORDER BY seq`
			rows, err := r.db.QueryContext(ctx, query, farmID, pq.Array(uuidStrings(subjectIDs)))
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				e, err := scanEvent(rows)
				if err != nil {
					return err
				}
				events = append(events, e)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return events, nil
	})

	if err != nil {
		return nil, err
	}

	return result.([]domain.Event), nil
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	var kind string
	var reasonCode, rawReason, inseminator, sire, result, examType, note sql.NullString
	var linked, protocolID, parentID uuid.NullUUID
	var days sql.NullInt64

	err := row.Scan(
		&e.ID,
		&e.FarmID,
		&e.SubjectID,
		&kind,
		&e.EventDate,
		&reasonCode,
		&rawReason,
		&linked,
		&inseminator,
		&sire,
		&protocolID,
		&result,
		&examType,
		&parentID,
		&days,
		&note,
		&e.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}

	e.Kind = domain.EventKind(kind)
	e.ReasonCode = domain.ReasonCode(reasonCode.String)
	e.RawReasonCode = rawReason.String
	e.Inseminator = inseminator.String
	e.Sire = sire.String
	e.Result = domain.DiagnosisResult(result.String)
	e.ExamType = domain.ExamType(examType.String)
	e.Note = note.String
	if linked.Valid {
		id := linked.UUID
		e.LinkedApplicationID = &id
	}
	if protocolID.Valid {
		id := protocolID.UUID
		e.ProtocolID = &id
	}
	if parentID.Valid {
		id := parentID.UUID
		e.ParentInseminationID = &id
	}
	if days.Valid {
		d := int(days.Int64)
		e.DaysSinceInsemination = &d
	}
	return e, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// Ensure SQLRepository implements the interfaces
var (
	_ ports.TemplateRepository    = (*SQLRepository)(nil)
	_ ports.ApplicationRepository = (*SQLRepository)(nil)
	_ ports.EventRepository       = (*SQLRepository)(nil)
)
