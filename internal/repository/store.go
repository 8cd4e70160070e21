package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/trip-budget-planner/backend/internal/models"
)

// PlanFields is a partial set of plan attributes. Nil fields keep the stored value.
type PlanFields struct {
	TravelStyle   *models.TravelStyle
	TripStartDate *time.Time
	TripEndDate   *time.Time
	TotalBudget   *float64
	Breakdown     *[]models.BreakdownItem
	Itinerary     *[]models.DayPlan
}

// PlanStore persists trip plans keyed by (owner, destination) together with their expenses.
type PlanStore interface {
	UpsertPlan(ctx context.Context, ownerID, destination string, fields PlanFields) (models.TripPlan, error)
	UpdatePlan(ctx context.Context, ownerID string, planID uuid.UUID, fields PlanFields) (models.TripPlan, error)
	GetPlan(ctx context.Context, ownerID, destination string) (models.TripPlan, error)
	GetPlanByID(ctx context.Context, ownerID string, planID uuid.UUID) (models.TripPlan, error)
	ListPlans(ctx context.Context, ownerID string) ([]models.TripPlan, error)
	DeletePlan(ctx context.Context, ownerID string, planID uuid.UUID) error
	AddExpense(ctx context.Context, ownerID string, planID uuid.UUID, expense models.Expense) (models.TripPlan, error)
	RemoveExpense(ctx context.Context, ownerID string, expenseID uuid.UUID) (models.TripPlan, error)
}

type AIRequestLog struct {
	OwnerID         string
	RequestType     string
	Provider        string
	Model           string
	Prompt          string
	RequestPayload  []byte
	ResponsePayload []byte
	RawResponse     string
	Success         bool
	ErrorMessage    *string
	CreatedAt       time.Time
}

type AIRequestLogger interface {
	LogRequest(ctx context.Context, log AIRequestLog) error
}

// NormalizeKey проверяет и нормализует ключ плана (владелец, направление).
func NormalizeKey(ownerID, destination string) (string, string, error) {
	owner := strings.TrimSpace(ownerID)
	place := strings.TrimSpace(destination)
	if owner == "" || place == "" {
		return "", "", fmt.Errorf("%w: owner and destination are required", ErrInvalid)
	}
	return owner, place, nil
}

// Validate проверяет значения переданных полей без учета сохраненного плана.
func (f PlanFields) Validate() error {
	if f.TravelStyle != nil {
		if _, ok := models.ParseTravelStyle(string(*f.TravelStyle)); !ok {
			return fmt.Errorf("%w: unknown travel style %q", ErrInvalid, *f.TravelStyle)
		}
	}

	if f.TotalBudget != nil && *f.TotalBudget < 0 {
		return fmt.Errorf("%w: totalBudget must not be negative", ErrInvalid)
	}

	if f.Breakdown != nil {
		for i, item := range *f.Breakdown {
			if strings.TrimSpace(item.Category) == "" {
				return fmt.Errorf("%w: breakdown[%d] category is required", ErrInvalid, i)
			}
			if item.Amount < 0 {
				return fmt.Errorf("%w: breakdown[%d] amount must not be negative", ErrInvalid, i)
			}
		}
	}

	if f.Itinerary != nil {
		for i, day := range *f.Itinerary {
			if day.Day < 1 {
				return fmt.Errorf("%w: itinerary[%d] day must be positive", ErrInvalid, i)
			}
			if day.EstimatedCost < 0 {
				return fmt.Errorf("%w: itinerary[%d] estimatedCost must not be negative", ErrInvalid, i)
			}
		}
	}

	if f.TripStartDate != nil && f.TripEndDate != nil && f.TripEndDate.Before(*f.TripStartDate) {
		return fmt.Errorf("%w: tripEndDate must not be before tripStartDate", ErrInvalid)
	}

	return nil
}

// Normalized приводит стиль поездки к каноническому написанию.
func (f PlanFields) Normalized() PlanFields {
	if f.TravelStyle != nil {
		if style, ok := models.ParseTravelStyle(string(*f.TravelStyle)); ok {
			f.TravelStyle = &style
		}
	}
	return f
}

// Apply переносит заданные поля в план и проверяет итоговое окно поездки.
func (f PlanFields) Apply(plan *models.TripPlan) error {
	if f.TravelStyle != nil {
		style, _ := models.ParseTravelStyle(string(*f.TravelStyle))
		plan.TravelStyle = style
	}
	if f.TripStartDate != nil {
		start := truncateDate(*f.TripStartDate)
		plan.TripStartDate = &start
	}
	if f.TripEndDate != nil {
		end := truncateDate(*f.TripEndDate)
		plan.TripEndDate = &end
	}
	if f.TotalBudget != nil {
		plan.TotalBudget = *f.TotalBudget
	}
	if f.Breakdown != nil {
		plan.Breakdown = models.CloneBreakdown(*f.Breakdown)
	}
	if f.Itinerary != nil {
		plan.Itinerary = models.CloneItinerary(*f.Itinerary)
	}

	if plan.TravelStyle == "" {
		plan.TravelStyle = models.TravelStyleStandard
	}
	if plan.Breakdown == nil {
		plan.Breakdown = []models.BreakdownItem{}
	}
	if plan.Itinerary == nil {
		plan.Itinerary = []models.DayPlan{}
	}

	if plan.TripStartDate != nil && plan.TripEndDate != nil && plan.TripEndDate.Before(*plan.TripStartDate) {
		return fmt.Errorf("%w: tripEndDate must not be before tripStartDate", ErrInvalid)
	}

	return nil
}

// ValidateExpense проверяет расход перед сохранением.
func ValidateExpense(expense models.Expense) error {
	if expense.ID == uuid.Nil {
		return fmt.Errorf("%w: expense id is required", ErrInvalid)
	}
	if expense.Amount <= 0 {
		return fmt.Errorf("%w: expense amount must be positive", ErrInvalid)
	}
	if category, ok := models.ParseExpenseCategory(string(expense.Category)); !ok || category != expense.Category {
		return fmt.Errorf("%w: unknown expense category %q", ErrInvalid, expense.Category)
	}
	return nil
}

func truncateDate(value time.Time) time.Time {
	year, month, day := value.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
