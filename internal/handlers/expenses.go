package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/ledger"
	"example.com/trip-budget-planner/backend/internal/notifications"
	"example.com/trip-budget-planner/backend/internal/repository"
)

type ExpenseHandler struct {
	Ledger   *ledger.Ledger
	Notifier *notifications.Hub
}

// NewExpenseHandler создает обработчик фактических расходов поездки.
func NewExpenseHandler(expenses *ledger.Ledger, notifier *notifications.Hub) *ExpenseHandler {
	return &ExpenseHandler{Ledger: expenses, Notifier: notifier}
}

type ExpenseRequest struct {
	PlanID      string  `json:"planId"`
	Category    string  `json:"category" validate:"required,max=50"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description" validate:"max=500"`
	Date        string  `json:"date"`
}

// Create добавляет расход в план, указанный в теле запроса.
func (h *ExpenseHandler) Create(c echo.Context) error {
	return h.create(c, func(req ExpenseRequest) string { return req.PlanID })
}

// CreateForPlan добавляет расход в план из пути запроса.
func (h *ExpenseHandler) CreateForPlan(c echo.Context) error {
	return h.create(c, func(ExpenseRequest) string { return c.Param("id") })
}

// Delete удаляет расход и возвращает обновленный план.
func (h *ExpenseHandler) Delete(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	expenseID, err := uuid.Parse(c.Param("expenseId"))
	if err != nil {
		return badRequest(c, "invalid expense id")
	}

	plan, err := h.Ledger.DeleteExpense(c.Request().Context(), ownerID, expenseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "expense not found")
		}
		return writeError(c, err)
	}

	publishBudgetUpdate(h.Notifier, ownerID, plan)
	return c.JSON(http.StatusOK, toTripPlanResponse(plan))
}

func (h *ExpenseHandler) create(c echo.Context, planParam func(ExpenseRequest) string) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ExpenseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	planID, err := uuid.Parse(strings.TrimSpace(planParam(req)))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	input := ledger.ExpenseInput{
		Category:    req.Category,
		Amount:      req.Amount,
		Description: req.Description,
	}
	if strings.TrimSpace(req.Date) != "" {
		var date time.Time
		date, err = parseDate(req.Date)
		if err != nil {
			return badRequest(c, "invalid date format")
		}
		input.Date = &date
	}

	plan, err := h.Ledger.RecordExpense(c.Request().Context(), ownerID, planID, input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return writeError(c, err)
	}

	publishBudgetUpdate(h.Notifier, ownerID, plan)
	return c.JSON(http.StatusOK, toTripPlanResponse(plan))
}
