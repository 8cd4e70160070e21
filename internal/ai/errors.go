package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput          = errors.New("invalid generation input")
	ErrInvalidTripWindow     = errors.New("invalid trip window")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrMalformedResponse     = errors.New("ai returned invalid json")
	ErrInvalidJSON           = errors.New("ai response json does not parse")
	ErrInvalidPlanShape      = errors.New("ai returned an invalid plan shape")
)

type UnavailableReason string

const (
	ReasonQuotaExceeded    UnavailableReason = "quota_exceeded"
	ReasonModelUnavailable UnavailableReason = "model_unavailable"
	ReasonTransient        UnavailableReason = "transient"
	ReasonUnknown          UnavailableReason = "unknown"
)

// UnavailableError wraps a collaborator failure with its classification.
type UnavailableError struct {
	Reason UnavailableReason
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrGenerationUnavailable, e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrGenerationUnavailable
}

// ExtractionError keeps the raw model text next to the parse failure.
type ExtractionError struct {
	Kind error
	Raw  string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ShapeError names the first field of a parsed plan that failed validation.
type ShapeError struct {
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidPlanShape, e.Field, e.Reason)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrInvalidPlanShape
}

func shapeError(field, format string, args ...interface{}) error {
	return &ShapeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Classify сопоставляет ошибку провайдера с причиной недоступности генерации.
func Classify(err error) UnavailableReason {
	if err == nil {
		return ReasonUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonTransient
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonTransient
	}

	return ReasonUnknown
}

func classifyAPIError(err *APIError) UnavailableReason {
	status := strings.ToUpper(strings.TrimSpace(err.Status))
	message := strings.ToLower(err.Message)

	switch {
	case err.StatusCode == http.StatusTooManyRequests,
		status == "RESOURCE_EXHAUSTED",
		strings.Contains(message, "quota"),
		strings.Contains(message, "rate limit"):
		return ReasonQuotaExceeded
	case err.StatusCode == http.StatusNotFound,
		err.StatusCode == http.StatusServiceUnavailable,
		status == "UNAVAILABLE",
		status == "NOT_FOUND",
		strings.Contains(message, "overloaded"),
		strings.Contains(message, "model_not_found"):
		return ReasonModelUnavailable
	case err.StatusCode == http.StatusInternalServerError,
		err.StatusCode == http.StatusBadGateway,
		err.StatusCode == http.StatusGatewayTimeout,
		status == "DEADLINE_EXCEEDED":
		return ReasonTransient
	default:
		return ReasonUnknown
	}
}
