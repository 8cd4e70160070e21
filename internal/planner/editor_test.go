package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
	"example.com/trip-budget-planner/backend/internal/repository/memory"
)

type fakeGenerator struct {
	plan  models.GeneratedPlan
	err   error
	calls int
}

func (g *fakeGenerator) GeneratePlan(ctx context.Context, input ai.GeneratePlanInput) (models.GeneratedPlan, ai.Trace, error) {
	g.calls++
	if g.err != nil {
		return models.GeneratedPlan{}, ai.Trace{}, g.err
	}
	return g.plan.Clone(), ai.Trace{Attempts: 1}, nil
}

type failingWriter struct{ err error }

func (w failingWriter) UpsertPlan(context.Context, string, string, repository.PlanFields) (models.TripPlan, error) {
	return models.TripPlan{}, w.err
}

func generatedParis() models.GeneratedPlan {
	return models.GeneratedPlan{
		TotalEstimatedCost: 300,
		Breakdown: []models.BreakdownItem{
			{Category: "Food", Amount: 100, Description: "Meals"},
			{Category: "Lodging", Amount: 200, Description: "Hotel"},
		},
		Itinerary: []models.DayPlan{
			{Day: 1, Activities: []string{"Louvre"}, EstimatedCost: 40},
			{Day: 2, Activities: []string{"Eiffel Tower", "Seine"}, EstimatedCost: 60},
		},
	}
}

func parisParams() Params {
	return Params{
		Destination:   "Paris",
		TravelStyle:   models.TravelStyleStandard,
		TripStartDate: "2025-06-01",
		TripEndDate:   "2025-06-02",
	}
}

func reviewingEditor(t *testing.T, store PlanWriter) (*Editor, *fakeGenerator) {
	t.Helper()

	generator := &fakeGenerator{plan: generatedParis()}
	editor := NewEditor("user-1", generator, store)
	require.NoError(t, editor.Configure(parisParams()))
	require.NoError(t, editor.Generate(context.Background()))
	require.Equal(t, StateReviewing, editor.State())
	return editor, generator
}

func assertTotalMatchesBreakdown(t *testing.T, editor *Editor) {
	t.Helper()

	draft := editor.Draft()
	var sum float64
	for _, item := range draft.Breakdown {
		sum += item.Amount
	}
	assert.InDelta(t, sum, draft.TotalEstimatedCost, 1e-9)
}

func TestEditorHappyPath(t *testing.T) {
	store := memory.New()
	editor, _ := reviewingEditor(t, store)

	require.NoError(t, editor.UpdateBreakdownAmount(0, 150))
	assert.Equal(t, StateEditing, editor.State())
	assert.Equal(t, 350.0, editor.Draft().TotalEstimatedCost)

	index, err := editor.AddBreakdown()
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	assert.Equal(t, "Other", editor.Draft().Breakdown[index].Category)
	require.NoError(t, editor.UpdateBreakdownAmount(index, 25.5))
	require.NoError(t, editor.UpdateBreakdownCategory(index, "Shopping"))
	require.NoError(t, editor.UpdateBreakdownDescription(index, "Souvenirs"))
	assertTotalMatchesBreakdown(t, editor)

	require.NoError(t, editor.RemoveBreakdown(1))
	assert.Equal(t, 175.5, editor.Draft().TotalEstimatedCost)

	require.NoError(t, editor.UpdateDayCost(0, 55))
	require.NoError(t, editor.AddActivity(0, "Orsay"))
	require.NoError(t, editor.UpdateActivity(1, 0, "Arc de Triomphe"))
	require.NoError(t, editor.RemoveActivity(1, 1))

	plan, err := editor.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSaved, editor.State())
	assert.Equal(t, 175.5, plan.TotalBudget)
	assert.Equal(t, []string{"Louvre", "Orsay"}, plan.Itinerary[0].Activities)
	assert.Equal(t, []string{"Arc de Triomphe"}, plan.Itinerary[1].Activities)
	assert.Equal(t, "2025-06-02", plan.TripEndDate.Format(ai.DateLayout))

	saved, ok := editor.Saved()
	require.True(t, ok)
	assert.Equal(t, plan.ID, saved.ID)

	stored, err := store.GetPlan(context.Background(), "user-1", "Paris")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, stored.ID)
}

func TestEditorUpdateIsIdempotent(t *testing.T) {
	editor, _ := reviewingEditor(t, memory.New())

	require.NoError(t, editor.UpdateBreakdownAmount(1, 80))
	once := editor.Draft()
	require.NoError(t, editor.UpdateBreakdownAmount(1, 80))

	assert.Equal(t, once, editor.Draft())
}

func TestEditorGenerateGate(t *testing.T) {
	generator := &fakeGenerator{plan: generatedParis()}
	editor := NewEditor("user-1", generator, memory.New())

	assert.ErrorIs(t, editor.Generate(context.Background()), ErrInvalidState)

	params := parisParams()
	params.TripEndDate = ""
	require.NoError(t, editor.Configure(params))
	assert.ErrorIs(t, editor.Generate(context.Background()), ErrIncompleteParams)
	assert.Equal(t, StateConfiguring, editor.State())
	assert.Zero(t, generator.calls)
}

func TestEditorGenerateFailureReturnsToConfiguring(t *testing.T) {
	for _, genErr := range []error{
		&ai.UnavailableError{Reason: ai.ReasonQuotaExceeded, Err: errors.New("429")},
		ai.ErrInvalidTripWindow,
	} {
		store := memory.New()
		generator := &fakeGenerator{err: genErr}
		editor := NewEditor("user-1", generator, store)
		require.NoError(t, editor.Configure(parisParams()))

		err := editor.Generate(context.Background())
		assert.ErrorIs(t, err, genErr)
		assert.Equal(t, StateConfiguring, editor.State())
		assert.ErrorIs(t, editor.Err(), genErr)
		assert.Empty(t, editor.Draft().Breakdown)

		plans, err := store.ListPlans(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Empty(t, plans)

		generator.err = nil
		generator.plan = generatedParis()
		require.NoError(t, editor.Generate(context.Background()))
		assert.Equal(t, StateReviewing, editor.State())
		assert.NoError(t, editor.Err())
	}
}

func TestEditorCommitFailureStaysEditing(t *testing.T) {
	storeErr := errors.New("database is down")
	editor, _ := reviewingEditor(t, failingWriter{err: storeErr})

	_, err := editor.Commit(context.Background())
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, StateEditing, editor.State())
	assert.ErrorIs(t, editor.Err(), storeErr)

	_, ok := editor.Saved()
	assert.False(t, ok)

	require.NoError(t, editor.UpdateBreakdownAmount(0, 1))
}

func TestEditorRejectsWrongState(t *testing.T) {
	editor := NewEditor("user-1", &fakeGenerator{}, memory.New())

	assert.ErrorIs(t, editor.UpdateBreakdownAmount(0, 1), ErrInvalidState)
	_, err := editor.AddBreakdown()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = editor.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	reviewing, _ := reviewingEditor(t, memory.New())
	assert.ErrorIs(t, reviewing.Configure(parisParams()), ErrInvalidState)
}

func TestEditorEditValidation(t *testing.T) {
	editor, _ := reviewingEditor(t, memory.New())

	assert.ErrorIs(t, editor.UpdateBreakdownAmount(5, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, editor.UpdateBreakdownAmount(0, -1), ErrInvalidValue)
	assert.ErrorIs(t, editor.UpdateBreakdownCategory(0, "  "), ErrInvalidValue)
	assert.ErrorIs(t, editor.RemoveBreakdown(-1), ErrIndexOutOfRange)
	assert.ErrorIs(t, editor.UpdateDayCost(9, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, editor.RemoveActivity(0, 3), ErrIndexOutOfRange)
	assert.Equal(t, StateReviewing, editor.State(), "failed edits do not change state")
	assert.Equal(t, 300.0, editor.Draft().TotalEstimatedCost)
}

func TestEditorDraftIsCopy(t *testing.T) {
	editor, _ := reviewingEditor(t, memory.New())

	draft := editor.Draft()
	draft.Breakdown[0].Amount = 9999
	draft.Itinerary[0].Activities[0] = "changed"

	assert.Equal(t, 100.0, editor.Draft().Breakdown[0].Amount)
	assert.Equal(t, "Louvre", editor.Draft().Itinerary[0].Activities[0])
}

func TestEditorResetDiscardsDraft(t *testing.T) {
	store := memory.New()
	editor, _ := reviewingEditor(t, store)
	require.NoError(t, editor.UpdateBreakdownAmount(0, 1))

	require.NoError(t, editor.Reset())
	assert.Equal(t, StateEmpty, editor.State())
	assert.Empty(t, editor.Draft().Breakdown)

	_, err := store.GetPlan(context.Background(), "user-1", "Paris")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEditorLoadSavedPlan(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	plan := models.TripPlan{
		Destination:   "Rome",
		TravelStyle:   models.TravelStyleLuxury,
		TripStartDate: &start,
		TripEndDate:   &end,
		TotalBudget:   500,
		Breakdown:     []models.BreakdownItem{{Category: "Lodging", Amount: 420}},
		Itinerary:     []models.DayPlan{{Day: 1, Activities: []string{"Colosseum"}}},
	}

	store := memory.New()
	generator := &fakeGenerator{}
	editor := NewEditor("user-1", generator, store)
	require.NoError(t, editor.Load(plan))

	assert.Equal(t, StateReviewing, editor.State())
	assert.Zero(t, generator.calls)
	assert.Equal(t, 420.0, editor.Draft().TotalEstimatedCost)
	assert.Equal(t, "2025-06-03", editor.Params().TripEndDate)

	saved, err := editor.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TravelStyleLuxury, saved.TravelStyle)
	assert.Equal(t, 420.0, saved.TotalBudget)
}

// TestEditorLoadBudgetOnlyPlanKeepsTotal проверяет, что план без сметы сохраняет бюджет после правок маршрута.
func TestEditorLoadBudgetOnlyPlanKeepsTotal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	total := 800.0
	itinerary := []models.DayPlan{{Day: 1, Activities: []string{"Forum"}, EstimatedCost: 30}}
	stored, err := store.UpsertPlan(ctx, "user-1", "Rome", repository.PlanFields{TotalBudget: &total, Itinerary: &itinerary})
	require.NoError(t, err)

	editor := NewEditor("user-1", &fakeGenerator{}, store)
	require.NoError(t, editor.Load(stored))
	assert.Equal(t, 800.0, editor.Draft().TotalEstimatedCost)

	_, err = editor.Commit(ctx)
	require.NoError(t, err)

	reloaded, err := store.GetPlan(ctx, "user-1", "Rome")
	require.NoError(t, err)
	assert.Equal(t, 800.0, reloaded.TotalBudget)

	require.NoError(t, editor.Load(reloaded))
	require.NoError(t, editor.UpdateDayCost(0, 55))
	require.NoError(t, editor.AddActivity(0, "Pantheon"))
	assert.Equal(t, 800.0, editor.Draft().TotalEstimatedCost)

	saved, err := editor.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 800.0, saved.TotalBudget)
	assert.Equal(t, 55.0, saved.Itinerary[0].EstimatedCost)

	require.NoError(t, editor.Load(saved))
	index, err := editor.AddBreakdown()
	require.NoError(t, err)
	require.NoError(t, editor.UpdateBreakdownAmount(index, 120))
	assertTotalMatchesBreakdown(t, editor)
	assert.Equal(t, 120.0, editor.Draft().TotalEstimatedCost)

	require.NoError(t, editor.RemoveBreakdown(index))
	assert.Zero(t, editor.Draft().TotalEstimatedCost)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reviewing", StateReviewing.String())
	assert.Equal(t, "state(42)", State(42).String())
}
