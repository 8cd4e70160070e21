package ledger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
	"example.com/trip-budget-planner/backend/internal/repository/memory"
)

func newPlan(t *testing.T, store repository.PlanStore, budget float64) models.TripPlan {
	t.Helper()

	plan, err := store.UpsertPlan(context.Background(), "user-1", "Paris", repository.PlanFields{TotalBudget: lo.ToPtr(budget)})
	require.NoError(t, err)
	return plan
}

func TestRecordExpenseSummary(t *testing.T) {
	store := memory.New()
	ledger := New(store)
	ctx := context.Background()
	plan := newPlan(t, store, 100)

	_, err := ledger.RecordExpense(ctx, "user-1", plan.ID, ExpenseInput{Category: "Food", Amount: 40})
	require.NoError(t, err)
	updated, err := ledger.RecordExpense(ctx, "user-1", plan.ID, ExpenseInput{Category: "transport", Amount: 15})
	require.NoError(t, err)

	summary := Summarize(updated)
	assert.Equal(t, 55.0, summary.TotalSpent)
	assert.Equal(t, 45.0, summary.Remaining)
	assert.Equal(t, 55.0, summary.ProgressPercent)
	assert.Equal(t, 40.0, summary.ByCategory[models.ExpenseCategoryFood])
	assert.Equal(t, 15.0, summary.ByCategory[models.ExpenseCategoryTransport])
	assert.Equal(t, models.ExpenseCategoryTransport, updated.Expenses[1].Category)
}

func TestRecordExpenseDefaultsDate(t *testing.T) {
	store := memory.New()
	ledger := New(store)
	fixed := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }
	plan := newPlan(t, store, 100)

	updated, err := ledger.RecordExpense(context.Background(), "user-1", plan.ID, ExpenseInput{Category: "Other", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, fixed, updated.Expenses[0].Date)

	explicit := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err = ledger.RecordExpense(context.Background(), "user-1", plan.ID, ExpenseInput{Category: "Other", Amount: 1, Date: &explicit})
	require.NoError(t, err)
	assert.Equal(t, explicit, updated.Expenses[1].Date)
}

func TestRecordExpenseRejectsInvalid(t *testing.T) {
	store := memory.New()
	ledger := New(store)
	plan := newPlan(t, store, 100)

	cases := []ExpenseInput{
		{Category: "Food", Amount: 0},
		{Category: "Food", Amount: -5},
		{Category: "Gifts", Amount: 5},
		{Category: "", Amount: 5},
	}

	for _, input := range cases {
		_, err := ledger.RecordExpense(context.Background(), "user-1", plan.ID, input)
		assert.ErrorIs(t, err, ErrInvalidExpense, "%+v", input)
	}

	stored, err := store.GetPlanByID(context.Background(), "user-1", plan.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Expenses)
}

func TestRecordExpenseUnknownPlan(t *testing.T) {
	ledger := New(memory.New())

	_, err := ledger.RecordExpense(context.Background(), "user-1", uuid.New(), ExpenseInput{Category: "Food", Amount: 5})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExpense(t *testing.T) {
	store := memory.New()
	ledger := New(store)
	ctx := context.Background()
	plan := newPlan(t, store, 80)

	updated, err := ledger.RecordExpense(ctx, "user-1", plan.ID, ExpenseInput{Category: "Food", Amount: 30})
	require.NoError(t, err)

	updated, err = ledger.DeleteExpense(ctx, "user-1", updated.Expenses[0].ID)
	require.NoError(t, err)

	summary := Summarize(updated)
	assert.Equal(t, 0.0, summary.TotalSpent)
	assert.Equal(t, 80.0, summary.Remaining)
	assert.Empty(t, summary.ByCategory)
}

func TestSummaryIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	amounts := []float64{0.1, 0.2, 12.35, 7.15, 99.99, 0.01}

	for round := 0; round < 5; round++ {
		store := memory.New()
		ledger := New(store)
		plan := newPlan(t, store, 200)

		shuffled := append([]float64(nil), amounts...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		var ids []uuid.UUID
		for _, amount := range shuffled {
			updated, err := ledger.RecordExpense(ctx, "user-1", plan.ID, ExpenseInput{Category: "Food", Amount: amount})
			require.NoError(t, err)
			ids = append(ids, updated.Expenses[len(updated.Expenses)-1].ID)
		}

		updated, err := ledger.DeleteExpense(ctx, "user-1", ids[0])
		require.NoError(t, err)

		want := 119.8 - shuffled[0]
		assert.InDelta(t, want, Summarize(updated).TotalSpent, 1e-9)
	}
}

func TestSummarizeZeroBudget(t *testing.T) {
	plan := models.TripPlan{
		TotalBudget: 0,
		Expenses:    []models.Expense{{Category: models.ExpenseCategoryFood, Amount: 12.5}},
	}

	summary := Summarize(plan)
	assert.Equal(t, 12.5, summary.TotalSpent)
	assert.Equal(t, -12.5, summary.Remaining)
	assert.Equal(t, 0.0, summary.ProgressPercent)
}
