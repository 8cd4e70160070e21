package repository

import (
	"errors"
	"testing"
	"time"

	"example.com/trip-budget-planner/backend/internal/models"
)

// TestPlanFieldsValidate проверяет отклонение некорректных полей плана.
func TestPlanFieldsValidate(t *testing.T) {
	negative := -1.0
	unknown := models.TravelStyle("Backpacker")
	start := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	badBreakdown := []models.BreakdownItem{{Category: "Food", Amount: -3}}
	badItinerary := []models.DayPlan{{Day: 0}}

	cases := map[string]PlanFields{
		"negative budget":  {TotalBudget: &negative},
		"unknown style":    {TravelStyle: &unknown},
		"inverted window":  {TripStartDate: &start, TripEndDate: &end},
		"negative amount":  {Breakdown: &badBreakdown},
		"non-positive day": {Itinerary: &badItinerary},
	}

	for name, fields := range cases {
		if err := fields.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	if err := (PlanFields{}).Validate(); err != nil {
		t.Fatalf("expected empty fields to be valid, got %v", err)
	}
}

// TestPlanFieldsApply проверяет частичное обновление и нормализацию дат.
func TestPlanFieldsApply(t *testing.T) {
	start := time.Date(2025, 6, 1, 15, 30, 0, 0, time.FixedZone("X", 3600))
	plan := models.TripPlan{TotalBudget: 40, TravelStyle: models.TravelStyleBudget}

	if err := (PlanFields{TripStartDate: &start}).Apply(&plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.TotalBudget != 40 || plan.TravelStyle != models.TravelStyleBudget {
		t.Fatalf("expected untouched fields to survive, got %+v", plan)
	}
	if plan.TripStartDate == nil || plan.TripStartDate.Hour() != 0 || plan.TripStartDate.Day() != 1 {
		t.Fatalf("expected date truncated to day, got %v", plan.TripStartDate)
	}
	if plan.Breakdown == nil || plan.Itinerary == nil {
		t.Fatal("expected empty lists instead of nil")
	}
}
