package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TravelStyle string

type ExpenseCategory string

const (
	TravelStyleBudget   TravelStyle = "Budget"
	TravelStyleStandard TravelStyle = "Standard"
	TravelStyleLuxury   TravelStyle = "Luxury"

	ExpenseCategoryFood       ExpenseCategory = "Food"
	ExpenseCategoryTransport  ExpenseCategory = "Transport"
	ExpenseCategoryLodging    ExpenseCategory = "Lodging"
	ExpenseCategoryActivities ExpenseCategory = "Activities"
	ExpenseCategoryShopping   ExpenseCategory = "Shopping"
	ExpenseCategoryOther      ExpenseCategory = "Other"
)

// ExpenseCategories lists the allowed expense categories in display order.
var ExpenseCategories = []ExpenseCategory{
	ExpenseCategoryFood,
	ExpenseCategoryTransport,
	ExpenseCategoryLodging,
	ExpenseCategoryActivities,
	ExpenseCategoryShopping,
	ExpenseCategoryOther,
}

// ParseTravelStyle возвращает стиль поездки по строке без учета регистра.
func ParseTravelStyle(value string) (TravelStyle, bool) {
	for _, style := range []TravelStyle{TravelStyleBudget, TravelStyleStandard, TravelStyleLuxury} {
		if strings.EqualFold(string(style), strings.TrimSpace(value)) {
			return style, true
		}
	}
	return "", false
}

// ParseExpenseCategory возвращает категорию расхода по строке без учета регистра.
func ParseExpenseCategory(value string) (ExpenseCategory, bool) {
	for _, category := range ExpenseCategories {
		if strings.EqualFold(string(category), strings.TrimSpace(value)) {
			return category, true
		}
	}
	return "", false
}

type BreakdownItem struct {
	Category    string  `json:"category" bson:"category"`
	Amount      float64 `json:"amount" bson:"amount"`
	Description string  `json:"description" bson:"description"`
}

type DayPlan struct {
	Day           int      `json:"day" bson:"day"`
	Activities    []string `json:"activities" bson:"activities"`
	EstimatedCost float64  `json:"estimatedCost" bson:"estimated_cost"`
}

type Expense struct {
	ID          uuid.UUID       `json:"id"`
	Category    ExpenseCategory `json:"category"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// GeneratedPlan is the unsaved result of one generation call.
type GeneratedPlan struct {
	TotalEstimatedCost float64         `json:"totalEstimatedCost"`
	Breakdown          []BreakdownItem `json:"breakdown"`
	Itinerary          []DayPlan       `json:"itinerary"`
}

type TripPlan struct {
	ID            uuid.UUID
	OwnerID       string
	Destination   string
	TravelStyle   TravelStyle
	TripStartDate *time.Time
	TripEndDate   *time.Time
	TotalBudget   float64
	Breakdown     []BreakdownItem
	Itinerary     []DayPlan
	Expenses      []Expense
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone возвращает глубокую копию плана.
func (p TripPlan) Clone() TripPlan {
	out := p
	if p.TripStartDate != nil {
		start := *p.TripStartDate
		out.TripStartDate = &start
	}
	if p.TripEndDate != nil {
		end := *p.TripEndDate
		out.TripEndDate = &end
	}
	out.Breakdown = CloneBreakdown(p.Breakdown)
	out.Itinerary = CloneItinerary(p.Itinerary)
	if p.Expenses != nil {
		out.Expenses = make([]Expense, len(p.Expenses))
		copy(out.Expenses, p.Expenses)
	}
	return out
}

// Clone возвращает глубокую копию сгенерированного плана.
func (p GeneratedPlan) Clone() GeneratedPlan {
	return GeneratedPlan{
		TotalEstimatedCost: p.TotalEstimatedCost,
		Breakdown:          CloneBreakdown(p.Breakdown),
		Itinerary:          CloneItinerary(p.Itinerary),
	}
}

func CloneBreakdown(items []BreakdownItem) []BreakdownItem {
	if items == nil {
		return nil
	}
	out := make([]BreakdownItem, len(items))
	copy(out, items)
	return out
}

func CloneItinerary(days []DayPlan) []DayPlan {
	if days == nil {
		return nil
	}
	out := make([]DayPlan, len(days))
	for i, day := range days {
		out[i] = day
		if day.Activities != nil {
			out[i].Activities = make([]string, len(day.Activities))
			copy(out[i].Activities, day.Activities)
		}
	}
	return out
}
