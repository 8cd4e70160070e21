package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/ledger"
	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/money"
	"example.com/trip-budget-planner/backend/internal/notifications"
	"example.com/trip-budget-planner/backend/internal/repository"
)

const aiRequestGeneratePlan = "generate_plan"

type BudgetHandler struct {
	Service  *ai.Service
	Plans    repository.PlanStore
	AIRepo   repository.AIRequestLogger
	Notifier *notifications.Hub
	Provider string
	Model    string
}

// NewBudgetHandler создает обработчик генерации и сохранения планов поездки.
func NewBudgetHandler(service *ai.Service, plans repository.PlanStore, aiRepo repository.AIRequestLogger, notifier *notifications.Hub, provider, model string) *BudgetHandler {
	return &BudgetHandler{
		Service:  service,
		Plans:    plans,
		AIRepo:   aiRepo,
		Notifier: notifier,
		Provider: provider,
		Model:    model,
	}
}

type GenerateRequest struct {
	Destination   string `json:"destination" validate:"required,max=200"`
	TravelStyle   string `json:"travelStyle" validate:"max=20"`
	TripStartDate string `json:"tripStartDate" validate:"required"`
	TripEndDate   string `json:"tripEndDate" validate:"required"`
	CustomPrompt  string `json:"customPrompt" validate:"max=2000"`
}

// PlanFieldsRequest is the partial plan body shared by save and update.
type PlanFieldsRequest struct {
	TravelStyle        *string                 `json:"travelStyle"`
	TripStartDate      *string                 `json:"tripStartDate"`
	TripEndDate        *string                 `json:"tripEndDate"`
	TotalBudget        *float64                `json:"totalBudget" validate:"omitempty,gte=0"`
	EstimatedBreakdown *[]models.BreakdownItem `json:"estimatedBreakdown"`
	Itinerary          *[]models.DayPlan       `json:"itinerary"`
}

type SavePlanRequest struct {
	UserID      string `json:"userId"`
	Destination string `json:"destination" validate:"required,max=200"`
	PlanFieldsRequest
}

type ExpenseResponse struct {
	ID          uuid.UUID              `json:"id"`
	Category    models.ExpenseCategory `json:"category"`
	Amount      float64                `json:"amount"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"`
	CreatedAt   time.Time              `json:"createdAt"`
}

type TripPlanResponse struct {
	ID                 uuid.UUID                          `json:"id"`
	UserID             string                             `json:"userId"`
	Destination        string                             `json:"destination"`
	TravelStyle        models.TravelStyle                 `json:"travelStyle"`
	TripStartDate      *string                            `json:"tripStartDate"`
	TripEndDate        *string                            `json:"tripEndDate"`
	TotalBudget        float64                            `json:"totalBudget"`
	EstimatedBreakdown []models.BreakdownItem             `json:"estimatedBreakdown"`
	Itinerary          []models.DayPlan                   `json:"itinerary"`
	Expenses           []ExpenseResponse                  `json:"expenses"`
	TotalSpent         float64                            `json:"totalSpent"`
	Remaining          float64                            `json:"remaining"`
	ProgressPercent    float64                            `json:"progressPercent"`
	ByCategory         map[models.ExpenseCategory]float64 `json:"byCategory"`
	CreatedAt          time.Time                          `json:"createdAt"`
	UpdatedAt          time.Time                          `json:"updatedAt"`
}

// Generate запрашивает у AI бюджет и маршрут поездки без сохранения.
func (h *BudgetHandler) Generate(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	input := ai.GeneratePlanInput{
		Destination:   req.Destination,
		TravelStyle:   models.TravelStyle(req.TravelStyle),
		TripStartDate: req.TripStartDate,
		TripEndDate:   req.TripEndDate,
		CustomPrompt:  req.CustomPrompt,
	}

	ctx := c.Request().Context()
	plan, trace, err := h.Service.GeneratePlan(ctx, input)
	if err != nil {
		// Input errors are rejected before any provider call.
		if !errors.Is(err, ai.ErrInvalidInput) && !errors.Is(err, ai.ErrInvalidTripWindow) {
			h.logAIRequest(ctx, ownerID, input, trace, nil, err)
		}
		return writeError(c, err)
	}

	h.logAIRequest(ctx, ownerID, input, trace, &plan, nil)
	return c.JSON(http.StatusOK, plan)
}

// Save создает или обновляет план владельца по направлению.
func (h *BudgetHandler) Save(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req SavePlanRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	if userID := strings.TrimSpace(req.UserID); userID != "" && userID != ownerID {
		return forbidden(c)
	}

	fields, err := req.PlanFieldsRequest.toFields()
	if err != nil {
		return badRequest(c, err.Error())
	}

	if standaloneTotal(fields) {
		stored, getErr := h.Plans.GetPlan(c.Request().Context(), ownerID, req.Destination)
		switch {
		case getErr == nil:
			if err := checkStoredTotal(stored, fields); err != nil {
				return badRequest(c, err.Error())
			}
		case !errors.Is(getErr, repository.ErrNotFound):
			return writeError(c, getErr)
		}
	}

	plan, err := h.Plans.UpsertPlan(c.Request().Context(), ownerID, req.Destination, fields)
	if err != nil {
		return writeError(c, err)
	}

	publishBudgetUpdate(h.Notifier, ownerID, plan)
	return c.JSON(http.StatusOK, toTripPlanResponse(plan))
}

// List возвращает планы владельца или один план по направлению.
func (h *BudgetHandler) List(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if destination := strings.TrimSpace(c.QueryParam("destination")); destination != "" {
		plan, err := h.Plans.GetPlan(c.Request().Context(), ownerID, destination)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound(c, "plan not found")
			}
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, toTripPlanResponse(plan))
	}

	plans, err := h.Plans.ListPlans(c.Request().Context(), ownerID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, lo.Map(plans, func(plan models.TripPlan, _ int) TripPlanResponse {
		return toTripPlanResponse(plan)
	}))
}

// Get возвращает план по идентификатору.
func (h *BudgetHandler) Get(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	plan, err := h.Plans.GetPlanByID(c.Request().Context(), ownerID, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, toTripPlanResponse(plan))
}

// Update частично обновляет план.
func (h *BudgetHandler) Update(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	var req PlanFieldsRequest
	if err = c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err = c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	fields, err := req.toFields()
	if err != nil {
		return badRequest(c, err.Error())
	}

	if standaloneTotal(fields) {
		stored, getErr := h.Plans.GetPlanByID(c.Request().Context(), ownerID, planID)
		if getErr != nil {
			if errors.Is(getErr, repository.ErrNotFound) {
				return notFound(c, "plan not found")
			}
			return writeError(c, getErr)
		}
		if err := checkStoredTotal(stored, fields); err != nil {
			return badRequest(c, err.Error())
		}
	}

	plan, err := h.Plans.UpdatePlan(c.Request().Context(), ownerID, planID, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return writeError(c, err)
	}

	publishBudgetUpdate(h.Notifier, ownerID, plan)
	return c.JSON(http.StatusOK, toTripPlanResponse(plan))
}

// Delete удаляет план вместе с расходами.
func (h *BudgetHandler) Delete(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	if err := h.Plans.DeletePlan(c.Request().Context(), ownerID, planID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *BudgetHandler) logAIRequest(ctx context.Context, ownerID string, input ai.GeneratePlanInput, trace ai.Trace, plan *models.GeneratedPlan, err error) {
	if h.AIRepo == nil {
		return
	}

	requestPayload, _ := json.Marshal(input)
	var responsePayload []byte
	if plan != nil {
		responsePayload, _ = json.Marshal(plan)
	}

	raw := trace.Content
	if raw == "" {
		raw = string(trace.Raw)
	}

	log := repository.AIRequestLog{
		OwnerID:         ownerID,
		RequestType:     aiRequestGeneratePlan,
		Provider:        h.Provider,
		Model:           h.Model,
		Prompt:          trace.Prompt,
		RequestPayload:  requestPayload,
		ResponsePayload: responsePayload,
		RawResponse:     raw,
		Success:         err == nil,
	}
	if err != nil {
		log.ErrorMessage = lo.ToPtr(err.Error())
	}

	if logErr := h.AIRepo.LogRequest(ctx, log); logErr != nil {
		slog.Warn("failed to store ai request log", slog.String("owner_id", ownerID), slog.String("error", logErr.Error()))
	}
}

func (r PlanFieldsRequest) toFields() (repository.PlanFields, error) {
	var fields repository.PlanFields

	if r.TravelStyle != nil {
		style, ok := models.ParseTravelStyle(*r.TravelStyle)
		if !ok {
			return fields, fmt.Errorf("unknown travelStyle %q", *r.TravelStyle)
		}
		fields.TravelStyle = &style
	}

	if r.TripStartDate != nil {
		start, err := parseDate(*r.TripStartDate)
		if err != nil {
			return fields, errors.New("invalid tripStartDate format")
		}
		fields.TripStartDate = &start
	}
	if r.TripEndDate != nil {
		end, err := parseDate(*r.TripEndDate)
		if err != nil {
			return fields, errors.New("invalid tripEndDate format")
		}
		fields.TripEndDate = &end
	}
	if fields.TripStartDate != nil && fields.TripEndDate != nil && fields.TripEndDate.Before(*fields.TripStartDate) {
		return fields, errors.New("tripEndDate must not be before tripStartDate")
	}

	if r.EstimatedBreakdown != nil {
		breakdown := models.CloneBreakdown(*r.EstimatedBreakdown)
		if breakdown == nil {
			breakdown = []models.BreakdownItem{}
		}
		sum := money.SumBy(breakdown, func(item models.BreakdownItem) float64 { return item.Amount })
		if r.TotalBudget != nil && !money.Equal(*r.TotalBudget, sum) {
			return fields, fmt.Errorf("totalBudget %.2f does not match breakdown sum %.2f", *r.TotalBudget, sum)
		}
		fields.Breakdown = &breakdown
		fields.TotalBudget = &sum
	} else if r.TotalBudget != nil {
		fields.TotalBudget = lo.ToPtr(*r.TotalBudget)
	}

	if r.Itinerary != nil {
		itinerary := models.CloneItinerary(*r.Itinerary)
		if itinerary == nil {
			itinerary = []models.DayPlan{}
		}
		fields.Itinerary = &itinerary
	}

	return fields, nil
}

// standaloneTotal сообщает, что запрос меняет totalBudget без новой сметы.
func standaloneTotal(fields repository.PlanFields) bool {
	return fields.TotalBudget != nil && fields.Breakdown == nil
}

// checkStoredTotal отклоняет totalBudget, не совпадающий с суммой сохраненной сметы.
// План без сметы принимает любой бюджет.
func checkStoredTotal(stored models.TripPlan, fields repository.PlanFields) error {
	if !standaloneTotal(fields) || len(stored.Breakdown) == 0 {
		return nil
	}

	sum := money.SumBy(stored.Breakdown, func(item models.BreakdownItem) float64 { return item.Amount })
	if !money.Equal(*fields.TotalBudget, sum) {
		return fmt.Errorf("totalBudget %.2f does not match stored breakdown sum %.2f, send estimatedBreakdown to change it", *fields.TotalBudget, sum)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.Parse(ai.DateLayout, trimmed); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, trimmed)
}

func formatDate(value *time.Time) *string {
	if value == nil {
		return nil
	}
	return lo.ToPtr(value.Format(ai.DateLayout))
}

func toTripPlanResponse(plan models.TripPlan) TripPlanResponse {
	summary := ledger.Summarize(plan)

	breakdown := plan.Breakdown
	if breakdown == nil {
		breakdown = []models.BreakdownItem{}
	}
	itinerary := plan.Itinerary
	if itinerary == nil {
		itinerary = []models.DayPlan{}
	}

	return TripPlanResponse{
		ID:                 plan.ID,
		UserID:             plan.OwnerID,
		Destination:        plan.Destination,
		TravelStyle:        plan.TravelStyle,
		TripStartDate:      formatDate(plan.TripStartDate),
		TripEndDate:        formatDate(plan.TripEndDate),
		TotalBudget:        plan.TotalBudget,
		EstimatedBreakdown: breakdown,
		Itinerary:          itinerary,
		Expenses: lo.Map(plan.Expenses, func(expense models.Expense, _ int) ExpenseResponse {
			return ExpenseResponse{
				ID:          expense.ID,
				Category:    expense.Category,
				Amount:      expense.Amount,
				Description: expense.Description,
				Date:        expense.Date.Format(ai.DateLayout),
				CreatedAt:   expense.CreatedAt,
			}
		}),
		TotalSpent:      summary.TotalSpent,
		Remaining:       summary.Remaining,
		ProgressPercent: summary.ProgressPercent,
		ByCategory:      summary.ByCategory,
		CreatedAt:       plan.CreatedAt,
		UpdatedAt:       plan.UpdatedAt,
	}
}
