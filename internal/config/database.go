package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/IANDYI/breeding-service/internal/adapters/repository"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// schema is applied in order; every statement is idempotent
var schema = []struct {
	name string
	sql  string
}{
	{"protocol_templates", `
	CREATE TABLE IF NOT EXISTS protocol_templates (
		id UUID PRIMARY KEY,
		farm_id UUID NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		steps JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`},
	{"protocol_applications", `
	CREATE TABLE IF NOT EXISTS protocol_applications (
		id UUID PRIMARY KEY,
		farm_id UUID NOT NULL,
		subject_id UUID NOT NULL,
		protocol_id UUID NOT NULL,
		protocol_name TEXT NOT NULL,
		category TEXT NOT NULL,
		steps_snapshot JSONB NOT NULL,
		start_date DATE NOT NULL,
		start_hour TEXT NOT NULL DEFAULT '00:00',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT chk_application_status CHECK (status IN ('ACTIVE', 'COMPLETED', 'CANCELLED'))
	);`},
	// At most one ACTIVE application per subject; violations map to DUPLICATE_ACTIVE_APPLICATION
	{repository.OneActiveApplicationConstraint, `
	CREATE UNIQUE INDEX IF NOT EXISTS ` + repository.OneActiveApplicationConstraint + `
		ON protocol_applications (farm_id, subject_id)
		WHERE status = 'ACTIVE';`},
	{"breeding_events", `
	CREATE TABLE IF NOT EXISTS breeding_events (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		farm_id UUID NOT NULL,
		subject_id UUID NOT NULL,
		kind TEXT NOT NULL,
		event_date DATE NOT NULL,
		reason_code TEXT,
		raw_reason_code TEXT,
		linked_application_id UUID REFERENCES protocol_applications(id),
		inseminator TEXT,
		sire TEXT,
		protocol_id UUID,
		result TEXT,
		exam_type TEXT,
		parent_insemination_id UUID,
		days_since_insemination INTEGER,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT chk_event_kind CHECK (kind IN ('INSEMINATION', 'DIAGNOSIS', 'CLINICAL', 'PROTOCOL_START'))
	);`},
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_protocol_applications_subject ON protocol_applications(farm_id, subject_id)",
	"CREATE INDEX IF NOT EXISTS idx_breeding_events_subject ON breeding_events(farm_id, subject_id, seq)",
	"CREATE INDEX IF NOT EXISTS idx_breeding_events_linked_application ON breeding_events(linked_application_id)",
}

// InitDatabase creates the database schema if it does not exist
// Set DROP_TABLES_ON_STARTUP=true to drop existing tables first
func InitDatabase(ctx context.Context, db *sql.DB, dropTables bool, logger zerolog.Logger) error {
	if dropTables {
		logger.Warn().Msg("dropping existing tables (DROP_TABLES_ON_STARTUP=true)")
		for _, table := range []string{"breeding_events", "protocol_applications", "protocol_templates"} {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
				logger.Warn().Err(err).Str("table", table).Msg("failed to drop table")
			}
		}
	}

	for _, stmt := range schema {
		logger.Debug().Str("object", stmt.name).Msg("applying schema")
		if _, err := db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			logger.Warn().Err(err).Msg("failed to create index")
		}
	}

	logger.Info().Msg("database schema initialized successfully")
	return nil
}

// ConnectDatabase establishes a connection to PostgreSQL with retry logic
func ConnectDatabase(databaseURL string, maxRetries int, retryDelay time.Duration, logger zerolog.Logger) (*sql.DB, error) {
	var err error

	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", i+1).Int("max_retries", maxRetries).Msg("failed to open database connection")
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		if err = db.Ping(); err != nil {
			logger.Warn().Err(err).Int("attempt", i+1).Int("max_retries", maxRetries).Msg("failed to ping database")
			db.Close()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		logger.Info().Msg("database connection established successfully")
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}
