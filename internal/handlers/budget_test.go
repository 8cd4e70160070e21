package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/config"
	"example.com/trip-budget-planner/backend/internal/handlers"
	"example.com/trip-budget-planner/backend/internal/notifications"
	"example.com/trip-budget-planner/backend/internal/repository/memory"
	"example.com/trip-budget-planner/backend/internal/server"
)

const (
	testSecret = "test-secret"
	testOwner  = "owner-1"

	parisPlan = "Here is your plan:\n```json\n" + `{
  "totalEstimatedCost": 999,
  "breakdown": [
    {"category": "Lodging", "amount": 300, "description": "hotel"},
    {"category": "Food", "amount": 150, "description": "bistros"},
    {"category": "Activities", "amount": 50, "description": "museums"}
  ],
  "itinerary": [
    {"day": 2, "activities": ["Louvre"], "estimatedCost": 30},
    {"day": 1, "activities": ["Eiffel Tower"], "estimatedCost": 20},
    {"day": 3, "activities": ["Montmartre"], "estimatedCost": 0}
  ]
}` + "\n```"
)

type fakeClient struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (f *fakeClient) Chat(_ context.Context, _ []ai.Message) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.content, []byte(f.content), nil
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	e      *echo.Echo
	store  *memory.Store
	client *fakeClient
	hub    *notifications.Hub
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Config{
		Auth: config.AuthConfig{JWTSecret: testSecret, JWTIssuer: "test", AccessTokenTTL: time.Hour},
		AI: config.AIConfig{
			Provider:           config.AIProviderGemini,
			Model:              "test-model",
			Timeout:            time.Second,
			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
	}

	env := &testEnv{
		store:  memory.New(),
		client: &fakeClient{content: parisPlan},
		hub:    notifications.NewHub(),
	}
	env.e = server.New(cfg, nil, server.Deps{
		Plans:    env.store,
		AILog:    env.store,
		AIClient: env.client,
		Hub:      env.hub,
	})

	token, _, err := auth.NewTokenManager(testSecret, "test", time.Hour).NewAccessToken(testOwner)
	require.NoError(t, err)
	env.token = token

	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if env.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (env *testEnv) savePlan(t *testing.T) handlers.TripPlanResponse {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"userId":        testOwner,
		"destination":   "Paris",
		"travelStyle":   "standard",
		"tripStartDate": "2025-06-01",
		"tripEndDate":   "2025-06-03",
		"totalBudget":   100,
		"estimatedBreakdown": []map[string]interface{}{
			{"category": "Lodging", "amount": 60, "description": "hostel"},
			{"category": "Food", "amount": 40, "description": "street food"},
		},
		"itinerary": []map[string]interface{}{
			{"day": 1, "activities": []string{"walk"}, "estimatedCost": 10},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[handlers.TripPlanResponse](t, rec)
}

// TestGenerateReturnsPlan проверяет генерацию плана на три дня.
func TestGenerateReturnsPlan(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget/generate", handlers.GenerateRequest{
		Destination:   "Paris",
		TravelStyle:   "Standard",
		TripStartDate: "2025-06-01",
		TripEndDate:   "2025-06-03",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var plan struct {
		TotalEstimatedCost float64 `json:"totalEstimatedCost"`
		Breakdown          []struct {
			Amount float64 `json:"amount"`
		} `json:"breakdown"`
		Itinerary []struct {
			Day int `json:"day"`
		} `json:"itinerary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))

	assert.Equal(t, 500.0, plan.TotalEstimatedCost)
	require.Len(t, plan.Itinerary, 3)
	for i, day := range plan.Itinerary {
		assert.Equal(t, i+1, day.Day)
	}

	logs := env.store.AIRequests()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, testOwner, logs[0].OwnerID)
	assert.Equal(t, "test-model", logs[0].Model)
	assert.Contains(t, logs[0].RawResponse, "Eiffel Tower")

	plans, err := env.store.ListPlans(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Empty(t, plans, "generation must not persist anything")
}

// TestGenerateRejectsInvalidWindow проверяет, что AI не вызывается при неверных датах.
func TestGenerateRejectsInvalidWindow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget/generate", handlers.GenerateRequest{
		Destination:   "Paris",
		TripStartDate: "2025-06-05",
		TripEndDate:   "2025-06-01",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.client.Calls())
	assert.Empty(t, env.store.AIRequests())
}

// TestGenerateQuotaExceeded проверяет ответ 429 с флагом quotaExceeded.
func TestGenerateQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.client.err = &ai.APIError{Provider: "gemini", StatusCode: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "quota"}

	rec := env.do(t, http.MethodPost, "/api/v1/budget/generate", handlers.GenerateRequest{
		Destination:   "Paris",
		TripStartDate: "2025-06-01",
		TripEndDate:   "2025-06-03",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decode[handlers.ErrorResponse](t, rec)
	assert.True(t, body.QuotaExceeded)
	assert.NotEmpty(t, body.Message)

	logs := env.store.AIRequests()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	require.NotNil(t, logs[0].ErrorMessage)
}

// TestGenerateModelUnavailable проверяет ответ 503 без флага квоты.
func TestGenerateModelUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.client.err = &ai.APIError{Provider: "gemini", StatusCode: http.StatusServiceUnavailable, Status: "UNAVAILABLE", Message: "model is overloaded"}

	rec := env.do(t, http.MethodPost, "/api/v1/budget/generate", handlers.GenerateRequest{
		Destination:   "Paris",
		TripStartDate: "2025-06-01",
		TripEndDate:   "2025-06-03",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode[handlers.ErrorResponse](t, rec).QuotaExceeded)
}

// TestGenerateMalformedResponse проверяет, что сырой ответ модели не уходит клиенту.
func TestGenerateMalformedResponse(t *testing.T) {
	env := newTestEnv(t)
	env.client.content = "I am unable to produce a budget for that destination."

	rec := env.do(t, http.MethodPost, "/api/v1/budget/generate", handlers.GenerateRequest{
		Destination:   "Paris",
		TripStartDate: "2025-06-01",
		TripEndDate:   "2025-06-03",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unable to produce")

	logs := env.store.AIRequests()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].RawResponse, "unable to produce")
	assert.False(t, logs[0].Success)
}

// TestRequiresToken проверяет, что без токена маршруты бюджета недоступны.
func TestRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.do(t, http.MethodGet, "/api/v1/budget", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestSaveForbiddenForOtherUser проверяет запрет сохранения чужого плана.
func TestSaveForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"userId":      "someone-else",
		"destination": "Paris",
		"totalBudget": 10,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// TestSaveRejectsMismatchedTotal проверяет согласованность суммы и сметы.
func TestSaveRejectsMismatchedTotal(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"destination": "Paris",
		"totalBudget": 120,
		"estimatedBreakdown": []map[string]interface{}{
			{"category": "Food", "amount": 100},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestSaveDerivesTotalFromBreakdown проверяет вычисление суммы по смете.
func TestSaveDerivesTotalFromBreakdown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"destination": "Rome",
		"estimatedBreakdown": []map[string]interface{}{
			{"category": "Food", "amount": 10.1},
			{"category": "Transport", "amount": 20.2},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	plan := decode[handlers.TripPlanResponse](t, rec)
	assert.Equal(t, 30.3, plan.TotalBudget)
	assert.Equal(t, "Standard", string(plan.TravelStyle))
}

// TestSaveUpsertKeepsStoredFields проверяет, что повторное сохранение не затирает непереданные поля.
func TestSaveUpsertKeepsStoredFields(t *testing.T) {
	env := newTestEnv(t)
	first := env.savePlan(t)

	rec := env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"destination": "Paris",
		"travelStyle": "Luxury",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	second := decode[handlers.TripPlanResponse](t, rec)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Luxury", string(second.TravelStyle))
	assert.Equal(t, 100.0, second.TotalBudget)
	assert.Len(t, second.EstimatedBreakdown, 2)
	require.NotNil(t, second.TripStartDate)
	assert.Equal(t, "2025-06-01", *second.TripStartDate)

	rec = env.do(t, http.MethodGet, "/api/v1/budget?destination=Paris", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[handlers.TripPlanResponse](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/v1/budget?destination=Tokyo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestStandaloneTotalMustMatchStoredBreakdown проверяет, что бюджет без сметы не расходится с сохраненной сметой.
func TestStandaloneTotalMustMatchStoredBreakdown(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	rec := env.do(t, http.MethodPut, "/api/v1/budget/"+plan.ID.String(), map[string]interface{}{
		"totalBudget": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"destination": "Paris",
		"totalBudget": 7,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/budget/"+plan.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, decode[handlers.TripPlanResponse](t, rec).TotalBudget)

	rec = env.do(t, http.MethodPut, "/api/v1/budget/"+plan.ID.String(), map[string]interface{}{
		"totalBudget": 100,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/budget", map[string]interface{}{
		"destination": "Oslo",
		"totalBudget": 300,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	oslo := decode[handlers.TripPlanResponse](t, rec)

	rec = env.do(t, http.MethodPut, "/api/v1/budget/"+oslo.ID.String(), map[string]interface{}{
		"totalBudget": 350,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 350.0, decode[handlers.TripPlanResponse](t, rec).TotalBudget)

	rec = env.do(t, http.MethodPut, "/api/v1/budget/00000000-0000-0000-0000-000000000001", map[string]interface{}{
		"totalBudget": 10,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestUpdatePlan проверяет частичное обновление и проверку окна поездки.
func TestUpdatePlan(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	rec := env.do(t, http.MethodPut, "/api/v1/budget/"+plan.ID.String(), map[string]interface{}{
		"itinerary": []map[string]interface{}{
			{"day": 1, "activities": []string{"Louvre"}, "estimatedCost": 17},
			{"day": 2, "activities": []string{"Orsay"}, "estimatedCost": 14},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[handlers.TripPlanResponse](t, rec)
	assert.Len(t, updated.Itinerary, 2)
	assert.Equal(t, 100.0, updated.TotalBudget)

	rec = env.do(t, http.MethodPut, "/api/v1/budget/"+plan.ID.String(), map[string]interface{}{
		"tripEndDate": "2025-05-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/budget/"+plan.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decode[handlers.TripPlanResponse](t, rec)
	require.NotNil(t, fetched.TripEndDate)
	assert.Equal(t, "2025-06-03", *fetched.TripEndDate)
}

// TestExpenseFlow проверяет учет расходов и итоговые показатели бюджета.
func TestExpenseFlow(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	events, unsubscribe := env.hub.Subscribe(testOwner)
	defer unsubscribe()

	rec := env.do(t, http.MethodPost, "/api/v1/budget/expenses", map[string]interface{}{
		"planId":   plan.ID.String(),
		"category": "Food",
		"amount":   40,
		"date":     "2025-06-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/budget/"+plan.ID.String()+"/expenses", map[string]interface{}{
		"category":    "transport",
		"amount":      15,
		"description": "metro",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[handlers.TripPlanResponse](t, rec)
	assert.Equal(t, 55.0, updated.TotalSpent)
	assert.Equal(t, 45.0, updated.Remaining)
	assert.Equal(t, 55.0, updated.ProgressPercent)
	assert.Equal(t, 40.0, updated.ByCategory["Food"])
	assert.Equal(t, 15.0, updated.ByCategory["Transport"])
	require.Len(t, updated.Expenses, 2)

	select {
	case event := <-events:
		assert.Equal(t, notifications.EventBudgetUpdated, event.Type)
	default:
		t.Fatal("expected budget_updated event")
	}

	var foodID string
	for _, expense := range updated.Expenses {
		if expense.Category == "Food" {
			foodID = expense.ID.String()
		}
	}
	require.NotEmpty(t, foodID)

	rec = env.do(t, http.MethodDelete, "/api/v1/budget/expenses/"+foodID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	afterDelete := decode[handlers.TripPlanResponse](t, rec)
	assert.Equal(t, 15.0, afterDelete.TotalSpent)
	assert.Equal(t, 15.0, afterDelete.ProgressPercent)

	rec = env.do(t, http.MethodDelete, "/api/v1/budget/expenses/"+foodID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestExpenseValidation проверяет отказ для неверных расходов.
func TestExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	cases := map[string]map[string]interface{}{
		"zero amount":      {"planId": plan.ID.String(), "category": "Food", "amount": 0},
		"unknown category": {"planId": plan.ID.String(), "category": "Gifts", "amount": 5},
		"missing plan":     {"category": "Food", "amount": 5},
		"bad date":         {"planId": plan.ID.String(), "category": "Food", "amount": 5, "date": "yesterday"},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/budget/expenses", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := env.do(t, http.MethodPost, "/api/v1/budget/expenses", map[string]interface{}{
		"planId":   "00000000-0000-0000-0000-000000000001",
		"category": "Food",
		"amount":   5,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestDeletePlan проверяет удаление плана и повторное удаление.
func TestDeletePlan(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/budget/"+plan.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/budget/"+plan.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/budget", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]handlers.TripPlanResponse](t, rec))
}

// TestExportCSV проверяет выгрузку сметы и расходов в CSV.
func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	plan := env.savePlan(t)

	rec := env.do(t, http.MethodGet, "/api/v1/budget/"+plan.ID.String()+"/export/csv?type=breakdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "plan_id,destination,category,amount,description", lines[0])
	assert.Contains(t, lines[1], "Lodging,60.00,hostel")

	rec = env.do(t, http.MethodGet, "/api/v1/budget/"+plan.ID.String()+"/export/csv?type=photos", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
