package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/money"
)

const (
	DateLayout = "2006-01-02"

	MaxTripDays         = 30
	maxCustomPromptSize = 2000
	defaultBackoff      = 500 * time.Millisecond
)

type Service struct {
	client     Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

type Option func(*Service)

// WithTimeout ограничивает время одной попытки генерации.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// WithMaxRetries задает число повторов при временных сбоях провайдера.
func WithMaxRetries(retries int) Option {
	return func(s *Service) {
		if retries >= 0 {
			s.maxRetries = retries
		}
	}
}

func WithBackoff(backoff time.Duration) Option {
	return func(s *Service) { s.backoff = backoff }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создает сервис генерации плана поездки поверх AI-клиента.
func NewService(client Client, opts ...Option) *Service {
	s := &Service{
		client:  client,
		backoff: defaultBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TripDays возвращает количество дней поездки включительно.
func TripDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// ParseTripWindow разбирает даты поездки и проверяет их порядок.
func ParseTripWindow(start, end string) (time.Time, time.Time, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: trip dates are required", ErrInvalidTripWindow)
	}

	tripStart, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid tripStartDate format", ErrInvalidTripWindow)
	}

	tripEnd, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid tripEndDate format", ErrInvalidTripWindow)
	}

	if tripEnd.Before(tripStart) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: tripEndDate must not be before tripStartDate", ErrInvalidTripWindow)
	}

	return tripStart, tripEnd, nil
}

// GeneratePlan запрашивает у AI бюджет и маршрут поездки и валидирует ответ.
func (s *Service) GeneratePlan(ctx context.Context, input GeneratePlanInput) (models.GeneratedPlan, Trace, error) {
	var trace Trace

	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return models.GeneratedPlan{}, trace, fmt.Errorf("%w: destination is required", ErrInvalidInput)
	}

	style := models.TravelStyleStandard
	if strings.TrimSpace(string(input.TravelStyle)) != "" {
		parsed, ok := models.ParseTravelStyle(string(input.TravelStyle))
		if !ok {
			return models.GeneratedPlan{}, trace, fmt.Errorf("%w: unknown travel style %q", ErrInvalidInput, input.TravelStyle)
		}
		style = parsed
	}

	if len(input.CustomPrompt) > maxCustomPromptSize {
		return models.GeneratedPlan{}, trace, fmt.Errorf("%w: custom prompt is too long", ErrInvalidInput)
	}

	start, end, err := ParseTripWindow(input.TripStartDate, input.TripEndDate)
	if err != nil {
		return models.GeneratedPlan{}, trace, err
	}

	days := TripDays(start, end)
	if days > MaxTripDays {
		return models.GeneratedPlan{}, trace, fmt.Errorf("%w: trips longer than %d days are not supported", ErrInvalidTripWindow, MaxTripDays)
	}

	categories := make([]string, 0, len(models.ExpenseCategories))
	for _, category := range models.ExpenseCategories {
		categories = append(categories, string(category))
	}

	prompt, err := buildGeneratePlanPrompt(promptInput{
		Destination:   destination,
		TravelStyle:   style,
		TripStartDate: start.Format(DateLayout),
		TripEndDate:   end.Format(DateLayout),
		TripDays:      days,
		Categories:    categories,
	}, input.CustomPrompt)
	if err != nil {
		return models.GeneratedPlan{}, trace, err
	}
	trace.Prompt = prompt

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	content, err := s.chat(ctx, messages, &trace)
	if err != nil {
		return models.GeneratedPlan{}, trace, err
	}
	trace.Content = content

	object, err := ExtractJSON(content)
	if err != nil {
		s.logger.Warn("ai response is not valid json",
			slog.String("destination", destination),
			slog.String("error", err.Error()),
			slog.String("raw_response", content),
		)
		return models.GeneratedPlan{}, trace, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	plan, err := decodePlan(object, days, s.logger)
	if err != nil {
		s.logger.Warn("ai response has invalid plan shape",
			slog.String("destination", destination),
			slog.String("error", err.Error()),
			slog.String("raw_response", content),
		)
		return models.GeneratedPlan{}, trace, err
	}

	return plan, trace, nil
}

func (s *Service) chat(ctx context.Context, messages []Message, trace *Trace) (string, error) {
	backoff := s.backoff
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		trace.Attempts = attempt + 1

		content, raw, err := s.chatOnce(ctx, messages)
		trace.Raw = raw
		if err == nil {
			return content, nil
		}

		reason := Classify(err)
		lastErr = &UnavailableError{Reason: reason, Err: err}
		if reason != ReasonTransient || ctx.Err() != nil || attempt == s.maxRetries {
			break
		}

		s.logger.Info("retrying ai request", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return "", &UnavailableError{Reason: ReasonTransient, Err: ctx.Err()}
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return "", lastErr
}

func (s *Service) chatOnce(ctx context.Context, messages []Message) (string, []byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.client.Chat(ctx, messages)
}

func decodePlan(object map[string]interface{}, tripDays int, logger *slog.Logger) (models.GeneratedPlan, error) {
	var plan models.GeneratedPlan

	total, ok := asAmount(object["totalEstimatedCost"])
	if !ok {
		return plan, shapeError("totalEstimatedCost", "must be a non-negative number")
	}

	rawBreakdown, ok := object["breakdown"].([]interface{})
	if !ok || len(rawBreakdown) == 0 {
		return plan, shapeError("breakdown", "must be a non-empty array")
	}

	plan.Breakdown = make([]models.BreakdownItem, 0, len(rawBreakdown))
	for i, rawItem := range rawBreakdown {
		field := fmt.Sprintf("breakdown[%d]", i)
		entry, ok := rawItem.(map[string]interface{})
		if !ok {
			return plan, shapeError(field, "must be an object")
		}

		category, ok := entry["category"].(string)
		if !ok || strings.TrimSpace(category) == "" {
			return plan, shapeError(field+".category", "must be a non-empty string")
		}

		amount, ok := asAmount(entry["amount"])
		if !ok {
			return plan, shapeError(field+".amount", "must be a non-negative number")
		}

		description, err := optionalString(entry["description"])
		if err != nil {
			return plan, shapeError(field+".description", "must be a string")
		}

		plan.Breakdown = append(plan.Breakdown, models.BreakdownItem{
			Category:    strings.TrimSpace(category),
			Amount:      amount,
			Description: strings.TrimSpace(description),
		})
	}

	rawItinerary, ok := object["itinerary"].([]interface{})
	if !ok || len(rawItinerary) == 0 {
		return plan, shapeError("itinerary", "must be a non-empty array")
	}

	seen := make(map[int]struct{}, len(rawItinerary))
	plan.Itinerary = make([]models.DayPlan, 0, len(rawItinerary))
	for i, rawDay := range rawItinerary {
		field := fmt.Sprintf("itinerary[%d]", i)
		entry, ok := rawDay.(map[string]interface{})
		if !ok {
			return plan, shapeError(field, "must be an object")
		}

		day, ok := asDay(entry["day"])
		if !ok {
			return plan, shapeError(field+".day", "must be a positive integer")
		}
		if day > tripDays {
			return plan, shapeError(field+".day", "exceeds trip length of %d days", tripDays)
		}
		if _, exists := seen[day]; exists {
			return plan, shapeError(field+".day", "duplicates day %d", day)
		}
		seen[day] = struct{}{}

		cost, ok := asAmount(entry["estimatedCost"])
		if !ok {
			return plan, shapeError(field+".estimatedCost", "must be a non-negative number")
		}

		activities := make([]string, 0)
		if rawActivities, exists := entry["activities"]; exists && rawActivities != nil {
			list, ok := rawActivities.([]interface{})
			if !ok {
				return plan, shapeError(field+".activities", "must be an array of strings")
			}
			for _, rawActivity := range list {
				activity, ok := rawActivity.(string)
				if !ok {
					return plan, shapeError(field+".activities", "must be an array of strings")
				}
				if trimmed := strings.TrimSpace(activity); trimmed != "" {
					activities = append(activities, trimmed)
				}
			}
		}

		plan.Itinerary = append(plan.Itinerary, models.DayPlan{
			Day:           day,
			Activities:    activities,
			EstimatedCost: cost,
		})
	}

	if len(plan.Itinerary) != tripDays {
		return plan, shapeError("itinerary", "must have %d days, got %d", tripDays, len(plan.Itinerary))
	}

	sort.SliceStable(plan.Itinerary, func(i, j int) bool {
		return plan.Itinerary[i].Day < plan.Itinerary[j].Day
	})

	// Total is always the breakdown sum; the model's own figure is only shape-checked.
	plan.TotalEstimatedCost = money.SumBy(plan.Breakdown, func(item models.BreakdownItem) float64 { return item.Amount })
	if !money.Equal(total, plan.TotalEstimatedCost) {
		logger.Debug("ai total differs from breakdown sum",
			slog.Float64("reported", total),
			slog.Float64("computed", plan.TotalEstimatedCost),
		)
	}

	return plan, nil
}

func asAmount(value interface{}) (float64, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}

	parsed, err := number.Float64()
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0, false
	}

	return parsed, true
}

func asDay(value interface{}) (int, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}

	parsed, err := number.Int64()
	if err != nil || parsed < 1 || parsed > math.MaxInt32 {
		return 0, false
	}

	return int(parsed), true
}

func optionalString(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}

	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("not a string")
	}

	return text, nil
}
