package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/repository"
)

const (
	exportTypeBreakdown = "breakdown"
	exportTypeItinerary = "itinerary"
	exportTypeExpenses  = "expenses"
)

// ExportCSV выгружает смету, маршрут или расходы плана в CSV-файл.
func (h *BudgetHandler) ExportCSV(c echo.Context) error {
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

	exportType := strings.ToLower(strings.TrimSpace(c.QueryParam("type")))
	if exportType == "" {
		exportType = exportTypeExpenses
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	switch exportType {
	case exportTypeBreakdown:
		err = writeBreakdownCSV(writer, plan)
	case exportTypeItinerary:
		err = writeItineraryCSV(writer, plan)
	case exportTypeExpenses:
		err = writeExpensesCSV(writer, plan)
	default:
		return badRequest(c, "invalid export type")
	}
	if err != nil {
		return serverError(c)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return serverError(c)
	}

	filename := "trip-" + plan.ID.String() + "-" + exportType + ".csv"
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func writeBreakdownCSV(writer *csv.Writer, plan models.TripPlan) error {
	if err := writer.Write([]string{"plan_id", "destination", "category", "amount", "description"}); err != nil {
		return err
	}

	for _, item := range plan.Breakdown {
		record := []string{
			plan.ID.String(),
			plan.Destination,
			item.Category,
			formatAmount(item.Amount),
			item.Description,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

func writeItineraryCSV(writer *csv.Writer, plan models.TripPlan) error {
	if err := writer.Write([]string{"plan_id", "destination", "day", "activities", "estimated_cost"}); err != nil {
		return err
	}

	for _, day := range plan.Itinerary {
		record := []string{
			plan.ID.String(),
			plan.Destination,
			strconv.Itoa(day.Day),
			strings.Join(day.Activities, "; "),
			formatAmount(day.EstimatedCost),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

func writeExpensesCSV(writer *csv.Writer, plan models.TripPlan) error {
	header := []string{
		"plan_id",
		"destination",
		"expense_id",
		"category",
		"amount",
		"description",
		"date",
		"created_at",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, expense := range plan.Expenses {
		record := []string{
			plan.ID.String(),
			plan.Destination,
			expense.ID.String(),
			string(expense.Category),
			formatAmount(expense.Amount),
			expense.Description,
			expense.Date.Format(time.DateOnly),
			expense.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
