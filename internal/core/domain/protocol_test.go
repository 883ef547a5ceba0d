package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// iatfTemplate is the common 9-day IATF protocol
func iatfTemplate(t *testing.T) domain.ProtocolTemplate {
	t.Helper()
	var steps []domain.Step
	require.NoError(t, json.Unmarshal([]byte(`[
		{"day_offset": 0, "hormone": "Benzoato de Estradiol", "dose": "2"},
		{"day_offset": 0, "action": "Inserir Dispositivo"},
		{"day_offset": 7, "hormone": "PGF2α"},
		{"day_offset": 7, "action": "Retirar Dispositivo"},
		{"day_offset": 9, "action": "Inseminação"}
	]`), &steps))
	return domain.ProtocolTemplate{
		ID:       uuid.New(),
		FarmID:   uuid.New(),
		Name:     "IATF 9 dias",
		Category: domain.CategoryIATF,
		Steps:    steps,
	}
}

func TestStepFromFields(t *testing.T) {
	dose := decimal.RequireFromString("0.5")

	hormone, err := domain.StepFromFields(0, "PGF2α", &dose, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StepHormone, hormone.Kind)
	assert.Equal(t, "PGF2α 0.5", hormone.Label())
	assert.False(t, hormone.IsInsemination())

	action, err := domain.StepFromFields(9, "", nil, "Inseminação")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAction, action.Kind)
	assert.True(t, action.IsInsemination())

	both, err := domain.StepFromFields(7, "eCG", nil, "Retirar Dispositivo")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAction, both.Kind)
	assert.Equal(t, "eCG", both.Hormone)
	assert.Equal(t, "Retirar Dispositivo", both.Label())
}

func TestStepFromFields_Invalid(t *testing.T) {
	negative := decimal.NewFromInt(-1)

	_, err := domain.StepFromFields(-1, "GnRH", nil, "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, err = domain.StepFromFields(0, "  ", nil, " ")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, err = domain.StepFromFields(0, "GnRH", &negative, "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestStep_UnmarshalJSON_RejectsEmptyStep(t *testing.T) {
	var steps []domain.Step
	err := json.Unmarshal([]byte(`[{"day_offset": 3}]`), &steps)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestStep_JSONSnapshotSurvivesStorage(t *testing.T) {
	tmpl := iatfTemplate(t)
	data, err := json.Marshal(tmpl.Steps)
	require.NoError(t, err)

	var restored []domain.Step
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Len(t, restored, len(tmpl.Steps))
	assert.True(t, restored[4].IsInsemination())
	assert.True(t, tmpl.Steps[0].Dose.Equal(*restored[0].Dose))
}

func TestSnapshotSteps_SortsStablyAndDetaches(t *testing.T) {
	dose := decimal.NewFromInt(2)
	steps := []domain.Step{
		{DayOffset: 9, Kind: domain.StepAction, Action: "Inseminação", ActionKind: domain.ActionInsemination},
		{DayOffset: 0, Kind: domain.StepHormone, Hormone: "BE", Dose: &dose},
		{DayOffset: 0, Kind: domain.StepAction, Action: "Inserir Dispositivo", ActionKind: domain.ActionOther},
	}

	snapshot := domain.SnapshotSteps(steps)
	require.Len(t, snapshot, 3)
	assert.Equal(t, "BE", snapshot[0].Hormone)
	assert.Equal(t, "Inserir Dispositivo", snapshot[1].Action)
	assert.Equal(t, 9, snapshot[2].DayOffset)

	// Template edits do not reach the snapshot
	steps[1].Hormone = "changed"
	*steps[1].Dose = decimal.NewFromInt(99)
	assert.Equal(t, "BE", snapshot[0].Hormone)
	assert.Equal(t, "2", snapshot[0].Dose.String())
}

func TestProtocolTemplate_Validate(t *testing.T) {
	assert.NoError(t, iatfTemplate(t).Validate())

	noName := iatfTemplate(t)
	noName.Name = " "
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(noName.Validate()))

	noSteps := iatfTemplate(t)
	noSteps.Steps = nil
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(noSteps.Validate()))
}

func TestParseProtocolCategory(t *testing.T) {
	c, err := domain.ParseProtocolCategory(" presync ")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryPresync, c)

	_, err = domain.ParseProtocolCategory("weekly")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestNewProtocolApplication(t *testing.T) {
	tmpl := iatfTemplate(t)
	subjectID := uuid.New()
	createdAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	app, err := domain.NewProtocolApplication(tmpl, subjectID, domain.MustParseDate("2024-01-01"), "8:05", createdAt)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, app.ID)
	assert.Equal(t, tmpl.FarmID, app.FarmID)
	assert.Equal(t, tmpl.ID, app.ProtocolID)
	assert.Equal(t, "IATF 9 dias", app.ProtocolName)
	assert.Equal(t, domain.ApplicationActive, app.Status)
	assert.Equal(t, "08:05", app.StartHour)
	assert.True(t, app.IsActive())

	tmpl.Steps[4].DayOffset = 10
	assert.Equal(t, 9, app.Steps[4].DayOffset)

	completed := app.WithStatus(domain.ApplicationCompleted)
	assert.False(t, completed.IsActive())
	assert.True(t, app.IsActive())
}

func TestNewProtocolApplication_Invalid(t *testing.T) {
	tmpl := iatfTemplate(t)

	_, err := domain.NewProtocolApplication(tmpl, uuid.New(), domain.Date{}, "", time.Now())
	assert.Equal(t, domain.KindInvalidDate, domain.KindOf(err))

	_, err = domain.NewProtocolApplication(tmpl, uuid.New(), domain.MustParseDate("2024-01-01"), "25:99", time.Now())
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
