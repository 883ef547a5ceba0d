package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapConstraintError_OneActiveApplication(t *testing.T) {
	subjectID := uuid.New()
	err := &pq.Error{Code: pqUniqueViolation, Constraint: OneActiveApplicationConstraint}

	mapped := mapConstraintError(fmt.Errorf("insert failed: %w", err), subjectID)

	require.ErrorIs(t, mapped, domain.ErrDuplicateActiveApplication)
	var de *domain.DecisionError
	require.ErrorAs(t, mapped, &de)
	assert.Equal(t, subjectID, de.SubjectID)
}

func TestMapConstraintError_OtherErrorsPassThrough(t *testing.T) {
	other := &pq.Error{Code: pqUniqueViolation, Constraint: "protocol_applications_pkey"}
	assert.Same(t, other, mapConstraintError(other, uuid.New()))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapConstraintError(plain, uuid.New()))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"no rows", sql.ErrNoRows, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"decision error", domain.NewDecisionError(domain.KindNotFound, "template not found"), false},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"unique violation", &pq.Error{Code: pqUniqueViolation}, false},
		{"unknown driver error", errors.New("driver: bad connection"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isTransient(tt.err))
		})
	}
}

func TestUUIDStrings(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []string{a.String(), b.String()}, uuidStrings([]uuid.UUID{a, b}))
	assert.Empty(t, uuidStrings(nil))
}
