package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/money"
	"example.com/trip-budget-planner/backend/internal/repository"
)

const maxDescriptionLength = 500

var ErrInvalidExpense = errors.New("invalid expense")

type ExpenseInput struct {
	Category    string
	Amount      float64
	Description string
	Date        *time.Time
}

// Summary holds the spend aggregates derived from a plan's expenses.
type Summary struct {
	TotalSpent      float64
	Remaining       float64
	ProgressPercent float64
	ByCategory      map[models.ExpenseCategory]float64
}

type Ledger struct {
	store repository.PlanStore
	now   func() time.Time
}

// New создает журнал расходов поверх хранилища планов.
func New(store repository.PlanStore) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordExpense добавляет расход в план владельца и возвращает обновленный план.
func (l *Ledger) RecordExpense(ctx context.Context, ownerID string, planID uuid.UUID, input ExpenseInput) (models.TripPlan, error) {
	expense, err := l.buildExpense(input)
	if err != nil {
		return models.TripPlan{}, err
	}

	return l.store.AddExpense(ctx, ownerID, planID, expense)
}

// DeleteExpense удаляет расход владельца и возвращает план, к которому он относился.
func (l *Ledger) DeleteExpense(ctx context.Context, ownerID string, expenseID uuid.UUID) (models.TripPlan, error) {
	return l.store.RemoveExpense(ctx, ownerID, expenseID)
}

func (l *Ledger) buildExpense(input ExpenseInput) (models.Expense, error) {
	category, ok := models.ParseExpenseCategory(input.Category)
	if !ok {
		return models.Expense{}, fmt.Errorf("%w: unknown category %q", ErrInvalidExpense, input.Category)
	}

	if input.Amount <= 0 {
		return models.Expense{}, fmt.Errorf("%w: amount must be positive", ErrInvalidExpense)
	}

	description := strings.TrimSpace(input.Description)
	if len([]rune(description)) > maxDescriptionLength {
		return models.Expense{}, fmt.Errorf("%w: description is too long", ErrInvalidExpense)
	}

	now := l.now()
	date := now
	if input.Date != nil && !input.Date.IsZero() {
		date = input.Date.UTC()
	}

	return models.Expense{
		ID:          uuid.New(),
		Category:    category,
		Amount:      input.Amount,
		Description: description,
		Date:        date,
		CreatedAt:   now,
	}, nil
}

// Summarize считает потраченное, остаток и прогресс по текущему списку расходов.
func Summarize(plan models.TripPlan) Summary {
	spent := money.SumBy(plan.Expenses, func(expense models.Expense) float64 { return expense.Amount })

	grouped := lo.GroupBy(plan.Expenses, func(expense models.Expense) models.ExpenseCategory { return expense.Category })
	byCategory := lo.MapValues(grouped, func(expenses []models.Expense, _ models.ExpenseCategory) float64 {
		return money.SumBy(expenses, func(expense models.Expense) float64 { return expense.Amount })
	})

	return Summary{
		TotalSpent:      spent,
		Remaining:       money.Sub(plan.TotalBudget, spent),
		ProgressPercent: money.Percent(spent, plan.TotalBudget),
		ByCategory:      byCategory,
	}
}
