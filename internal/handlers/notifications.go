package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/ledger"
	"example.com/trip-budget-planner/backend/internal/models"
	"example.com/trip-budget-planner/backend/internal/notifications"
)

type NotificationHandler struct {
	Hub *notifications.Hub
}

// NewNotificationHandler создает SSE-обработчик уведомлений.
func NewNotificationHandler(hub *notifications.Hub) *NotificationHandler {
	return &NotificationHandler{Hub: hub}
}

// Stream открывает SSE-поток событий для владельца.
func (h *NotificationHandler) Stream(c echo.Context) error {
	ownerID, ok := auth.OwnerIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return serverError(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ch, unsubscribe := h.Hub.Subscribe(ownerID)
	defer unsubscribe()

	_ = writeSSE(c, notifications.Event{
		Type:      notifications.EventConnected,
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"userId": ownerID},
	})
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, event); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSE(c echo.Context, event notifications.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := c.Response().Write([]byte("event: " + event.Type + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}

	return nil
}

func publishBudgetUpdate(hub *notifications.Hub, ownerID string, plan models.TripPlan) {
	if hub == nil {
		return
	}

	summary := ledger.Summarize(plan)
	hub.Publish(ownerID, notifications.Event{
		Type: notifications.EventBudgetUpdated,
		Data: map[string]interface{}{
			"planId":          plan.ID.String(),
			"totalSpent":      summary.TotalSpent,
			"remaining":       summary.Remaining,
			"progressPercent": summary.ProgressPercent,
		},
	})
}
