package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionError(t *testing.T) {
	threshold := 28
	subjectID := uuid.New()
	err := (&domain.DecisionError{Kind: domain.KindOutOfWindow, Message: "DG30 requires ≥28 days", Threshold: &threshold}).WithSubject(subjectID)

	assert.Equal(t, "OUT_OF_WINDOW: DG30 requires ≥28 days", err.Error())
	assert.True(t, errors.Is(err, domain.ErrOutOfWindow))
	assert.False(t, errors.Is(err, domain.ErrInvalidDate))
	assert.Equal(t, subjectID, err.SubjectID)

	wrapped := errors.Join(errors.New("context"), err)
	assert.Equal(t, domain.KindOutOfWindow, domain.KindOf(wrapped))
	assert.Equal(t, domain.ErrorKind(""), domain.KindOf(errors.New("plain")))
}

func TestBlocked(t *testing.T) {
	subjectID := uuid.New()
	decision := domain.Blocked(subjectID, domain.NewDecisionError(domain.KindNoActiveApplication, "apply a protocol first"))

	assert.Equal(t, domain.OutcomeBlocked, decision.Outcome)
	assert.Equal(t, domain.KindNoActiveApplication, decision.ErrorKind)
	assert.Equal(t, "apply a protocol first", decision.BlockingReason)
	assert.False(t, decision.IsReady())
}

func TestBatchResult_Err(t *testing.T) {
	blocked := domain.SubjectDecision{SubjectID: uuid.New(), Outcome: domain.OutcomeBlocked}
	pending := domain.SubjectDecision{SubjectID: uuid.New(), Outcome: domain.OutcomeNeedsChoice}
	linked := domain.SubjectDecision{SubjectID: uuid.New(), Outcome: domain.OutcomeAutoLinked}

	rejected := domain.BatchResult{Status: domain.BatchRejected, Decisions: []domain.SubjectDecision{blocked, linked}}
	assert.True(t, errors.Is(rejected.Err(), domain.ErrPartialBatchFailure))
	assert.False(t, rejected.Persistable())
	assert.Len(t, rejected.Blocked(), 1)

	needsChoice := domain.BatchResult{Status: domain.BatchNeedsChoice, Decisions: []domain.SubjectDecision{pending, linked}}
	assert.True(t, errors.Is(needsChoice.Err(), domain.ErrAmbiguousLink))
	assert.Len(t, needsChoice.NeedsChoice(), 1)

	partial := domain.BatchResult{Status: domain.BatchPartial}
	assert.NoError(t, partial.Err())
	assert.True(t, partial.Persistable())
}

func TestParseDiagnosisResult(t *testing.T) {
	for raw, want := range map[string]domain.DiagnosisResult{
		"Prenhe":    domain.ResultPregnant,
		"PREGNANT":  domain.ResultPregnant,
		"vazia":     domain.ResultEmpty,
		"not seen":  domain.ResultNotSeen,
		"Não vista": domain.ResultNotSeen,
	} {
		got, err := domain.ParseDiagnosisResult(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := domain.ParseDiagnosisResult("maybe")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	assert.False(t, domain.ResultNotSeen.IsConclusive())
}

func TestNewInseminationEvent(t *testing.T) {
	farmID := uuid.New()
	subjectID := uuid.New()
	now := time.Now()

	event, err := domain.NewInseminationEvent(farmID, subjectID, domain.MustParseDate("2024-01-10"), " Ressinc ", " João ", "Bull 42", now)
	require.NoError(t, err)
	assert.Equal(t, domain.EventInsemination, event.Kind)
	assert.Equal(t, domain.ReasonResync, event.ReasonCode)
	assert.Equal(t, "Ressinc", event.RawReasonCode)
	assert.Equal(t, "João", event.Inseminator)
	assert.Nil(t, event.LinkedApplicationID)

	app := domain.ProtocolApplication{ID: uuid.New(), ProtocolID: uuid.New()}
	linked := event.WithLinkedApplication(app)
	require.NotNil(t, linked.LinkedApplicationID)
	assert.Equal(t, app.ID, *linked.LinkedApplicationID)
	assert.Equal(t, app.ProtocolID, *linked.ProtocolID)
	assert.Nil(t, event.LinkedApplicationID)

	_, err = domain.NewInseminationEvent(farmID, subjectID, domain.Date{}, "IATF", "", "", now)
	assert.Equal(t, domain.KindInvalidDate, domain.KindOf(err))
}
