package docstore

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
)

type planDocument struct {
	ID            string                 `bson:"_id"`
	OwnerID       string                 `bson:"owner_id"`
	Destination   string                 `bson:"destination"`
	TravelStyle   string                 `bson:"travel_style"`
	TripStartDate *time.Time             `bson:"trip_start_date,omitempty"`
	TripEndDate   *time.Time             `bson:"trip_end_date,omitempty"`
	TotalBudget   float64                `bson:"total_budget"`
	Breakdown     []models.BreakdownItem `bson:"breakdown"`
	Itinerary     []models.DayPlan       `bson:"itinerary"`
	Expenses      []expenseDocument      `bson:"expenses"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

type expenseDocument struct {
	ID          string    `bson:"_id"`
	Category    string    `bson:"category"`
	Amount      float64   `bson:"amount"`
	Description string    `bson:"description"`
	Date        time.Time `bson:"date"`
	CreatedAt   time.Time `bson:"created_at"`
}

type aiRequestDocument struct {
	OwnerID         string    `bson:"owner_id"`
	RequestType     string    `bson:"request_type"`
	Provider        string    `bson:"provider"`
	Model           string    `bson:"model"`
	Prompt          string    `bson:"prompt"`
	RequestPayload  string    `bson:"request_payload,omitempty"`
	ResponsePayload string    `bson:"response_payload,omitempty"`
	RawResponse     string    `bson:"raw_response"`
	Success         bool      `bson:"success"`
	ErrorMessage    *string   `bson:"error_message,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

func (d planDocument) toModel() (models.TripPlan, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.TripPlan{}, err
	}

	plan := models.TripPlan{
		ID:            id,
		OwnerID:       d.OwnerID,
		Destination:   d.Destination,
		TravelStyle:   models.TravelStyle(d.TravelStyle),
		TripStartDate: utcDate(d.TripStartDate),
		TripEndDate:   utcDate(d.TripEndDate),
		TotalBudget:   d.TotalBudget,
		Breakdown:     d.Breakdown,
		Itinerary:     d.Itinerary,
		Expenses:      make([]models.Expense, 0, len(d.Expenses)),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if plan.Breakdown == nil {
		plan.Breakdown = []models.BreakdownItem{}
	}
	if plan.Itinerary == nil {
		plan.Itinerary = []models.DayPlan{}
	}
	for i := range plan.Itinerary {
		if plan.Itinerary[i].Activities == nil {
			plan.Itinerary[i].Activities = []string{}
		}
	}

	for _, doc := range d.Expenses {
		expenseID, err := uuid.Parse(doc.ID)
		if err != nil {
			return models.TripPlan{}, err
		}
		plan.Expenses = append(plan.Expenses, models.Expense{
			ID:          expenseID,
			Category:    models.ExpenseCategory(doc.Category),
			Amount:      doc.Amount,
			Description: doc.Description,
			Date:        doc.Date.UTC(),
			CreatedAt:   doc.CreatedAt.UTC(),
		})
	}

	return plan, nil
}

func fromExpense(expense models.Expense) expenseDocument {
	return expenseDocument{
		ID:          expense.ID.String(),
		Category:    string(expense.Category),
		Amount:      expense.Amount,
		Description: expense.Description,
		Date:        expense.Date,
		CreatedAt:   expense.CreatedAt,
	}
}

// planUpdate строит $set и $setOnInsert для частичного upsert. Поля не пересекаются.
func planUpdate(fields repository.PlanFields, now time.Time, insert *planDocument) bson.M {
	set := bson.M{"updated_at": now}

	if fields.TravelStyle != nil {
		set["travel_style"] = string(*fields.TravelStyle)
	}
	if fields.TripStartDate != nil {
		set["trip_start_date"] = *fields.TripStartDate
	}
	if fields.TripEndDate != nil {
		set["trip_end_date"] = *fields.TripEndDate
	}
	if fields.TotalBudget != nil {
		set["total_budget"] = *fields.TotalBudget
	}
	if fields.Breakdown != nil {
		set["breakdown"] = nonNil(*fields.Breakdown)
	}
	if fields.Itinerary != nil {
		set["itinerary"] = nonNil(*fields.Itinerary)
	}

	update := bson.M{"$set": set}
	if insert == nil {
		return update
	}

	onInsert := bson.M{
		"_id":         insert.ID,
		"owner_id":    insert.OwnerID,
		"destination": insert.Destination,
		"expenses":    []expenseDocument{},
		"created_at":  now,
	}
	defaults := bson.M{
		"travel_style": string(models.TravelStyleStandard),
		"breakdown":    []models.BreakdownItem{},
		"itinerary":    []models.DayPlan{},
		"total_budget": 0.0,
	}
	for key, value := range defaults {
		if _, ok := set[key]; !ok {
			onInsert[key] = value
		}
	}
	update["$setOnInsert"] = onInsert

	return update
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func utcDate(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC()
	return &out
}
