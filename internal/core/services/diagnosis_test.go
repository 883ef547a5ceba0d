package services_test

import (
	"errors"
	"testing"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDiagnosisTarget_LatestOnOrBefore(t *testing.T) {
	subjectID := uuid.New()
	early := insemination(t, subjectID, "2023-11-01")
	late := insemination(t, subjectID, "2024-01-05")
	future := insemination(t, subjectID, "2024-03-01")
	otherSubject := insemination(t, uuid.New(), "2024-01-20")

	target, err := services.ResolveDiagnosisTarget(subjectID, date("2024-02-10"), []domain.Event{early, late, future, otherSubject})
	require.NoError(t, err)
	assert.Equal(t, late.ID, target.ID)
}

func TestResolveDiagnosisTarget_TieGoesToLaterInserted(t *testing.T) {
	subjectID := uuid.New()
	first := insemination(t, subjectID, "2024-01-05")
	second := insemination(t, subjectID, "2024-01-05")

	target, err := services.ResolveDiagnosisTarget(subjectID, date("2024-02-10"), []domain.Event{first, second})
	require.NoError(t, err)
	assert.Equal(t, second.ID, target.ID)
}

func TestResolveDiagnosisTarget_RequiresInsemination(t *testing.T) {
	subjectID := uuid.New()

	_, err := services.ResolveDiagnosisTarget(subjectID, date("2024-02-10"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoPriorInsemination))
	assert.Contains(t, err.Error(), "register an insemination first")
}

func TestEvaluateDiagnosis_DG30TooEarly(t *testing.T) {
	subjectID := uuid.New()
	events := []domain.Event{insemination(t, subjectID, "2024-01-05")}
	req := services.DiagnosisRequest{
		SubjectID:     subjectID,
		DiagnosisDate: date("2024-01-25"),
		ExamType:      domain.ExamDG30,
		Result:        domain.ResultPregnant,
	}

	eval := services.EvaluateDiagnosis(domain.DefaultWindowConfig(), req, events)
	assert.False(t, eval.Window.Valid)
	assert.Equal(t, 20, *eval.Window.DaysSinceInsemination)
	assert.Equal(t, "DG30 requires ≥28 days", eval.Window.Reason)

	_, err := services.BuildDiagnosisEvent(testFarmID, req, eval, testNow)
	assert.True(t, errors.Is(err, domain.ErrOutOfWindow))

	req.Result = domain.ResultNotSeen
	eval = services.EvaluateDiagnosis(domain.DefaultWindowConfig(), req, events)
	assert.True(t, eval.Window.Valid)
}

func TestBuildDiagnosisEvent_CopiesInseminationContext(t *testing.T) {
	subjectID := uuid.New()
	app := activeApplication(t, subjectID, "2023-12-27")
	target := insemination(t, subjectID, "2024-01-05").WithLinkedApplication(app)
	req := services.DiagnosisRequest{
		SubjectID:     subjectID,
		DiagnosisDate: date("2024-02-05"),
		Result:        domain.ResultPregnant,
		Note:          " twins ",
	}

	eval := services.EvaluateDiagnosis(domain.DefaultWindowConfig(), req, []domain.Event{target})
	event, err := services.BuildDiagnosisEvent(testFarmID, req, eval, testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.EventDiagnosis, event.Kind)
	assert.Equal(t, domain.ExamDG30, event.ExamType)
	assert.Equal(t, 31, *event.DaysSinceInsemination)
	assert.Equal(t, target.ID, *event.ParentInseminationID)
	assert.Equal(t, app.ID, *event.LinkedApplicationID)
	assert.Equal(t, app.ProtocolID, *event.ProtocolID)
	assert.Equal(t, "Ana", event.Inseminator)
	assert.Equal(t, "Bull 7", event.Sire)
	assert.Equal(t, "twins", event.Note)
}

func TestBuildDiagnosisEvent_WithoutInsemination(t *testing.T) {
	req := services.DiagnosisRequest{
		SubjectID:     uuid.New(),
		DiagnosisDate: date("2024-02-05"),
		Result:        domain.ResultEmpty,
	}

	eval := services.EvaluateDiagnosis(domain.DefaultWindowConfig(), req, nil)
	assert.Nil(t, eval.Target)

	_, err := services.BuildDiagnosisEvent(testFarmID, req, eval, testNow)
	assert.True(t, errors.Is(err, domain.ErrNoPriorInsemination))
}
