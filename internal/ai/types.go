package ai

import "example.com/trip-budget-planner/backend/internal/models"

type GeneratePlanInput struct {
	Destination   string             `json:"destination"`
	TravelStyle   models.TravelStyle `json:"travel_style"`
	TripStartDate string             `json:"trip_start_date"`
	TripEndDate   string             `json:"trip_end_date"`
	CustomPrompt  string             `json:"custom_prompt,omitempty"`
}

// Trace describes one GeneratePlan call for the request log.
type Trace struct {
	Prompt   string
	Content  string
	Raw      []byte
	Attempts int
}

type promptInput struct {
	Destination   string             `json:"destination"`
	TravelStyle   models.TravelStyle `json:"travel_style"`
	TripStartDate string             `json:"trip_start_date"`
	TripEndDate   string             `json:"trip_end_date"`
	TripDays      int                `json:"trip_days"`
	Categories    []string           `json:"required_categories"`
}
