package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/ledger"
	"example.com/trip-budget-planner/backend/internal/repository"
)

const (
	codeValidation       = "validation_error"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeNotFound         = "not_found"
	codeConflict         = "conflict"
	codeQuotaExceeded    = "quota_exceeded"
	codeModelUnavailable = "model_unavailable"
	codeAIUnavailable    = "ai_unavailable"
	codeAIResponse       = "ai_invalid_response"
	codeInternal         = "internal_error"

	messageAIResponse = "AI returned an unusable response, please try again"
)

type ErrorResponse struct {
	Message       string `json:"message"`
	Code          string `json:"code"`
	QuotaExceeded bool   `json:"quotaExceeded,omitempty"`
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Message: message, Code: codeValidation})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "missing or invalid token", Code: codeUnauthorized})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, ErrorResponse{Message: "access denied", Code: codeForbidden})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Message: message, Code: codeNotFound})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error", Code: codeInternal})
}

// writeError переводит доменную ошибку в HTTP-ответ.
func writeError(c echo.Context, err error) error {
	var unavailable *ai.UnavailableError
	switch {
	case errors.As(err, &unavailable):
		switch unavailable.Reason {
		case ai.ReasonQuotaExceeded:
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Message:       "AI quota exceeded, please try again later",
				Code:          codeQuotaExceeded,
				QuotaExceeded: true,
			})
		case ai.ReasonModelUnavailable:
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Message: "AI model is currently unavailable, please try again later",
				Code:    codeModelUnavailable,
			})
		case ai.ReasonTransient:
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Message: "AI service is temporarily unreachable, please try again",
				Code:    codeAIUnavailable,
			})
		}
		slog.Error("ai generation failed", slog.String("error", err.Error()))
		return serverError(c)
	case errors.Is(err, ai.ErrInvalidTripWindow),
		errors.Is(err, ai.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidExpense),
		errors.Is(err, repository.ErrInvalid):
		return badRequest(c, err.Error())
	case errors.Is(err, ai.ErrMalformedResponse), errors.Is(err, ai.ErrInvalidPlanShape):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: messageAIResponse, Code: codeAIResponse})
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "plan or expense not found")
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error(), Code: codeConflict})
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		return serverError(c)
	}
}
