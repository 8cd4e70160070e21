package server

import (
	"github.com/labstack/echo/v4"

	"example.com/trip-budget-planner/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	budgetHandler *handlers.BudgetHandler,
	expenseHandler *handlers.ExpenseHandler,
	notificationHandler *handlers.NotificationHandler,
	authMiddleware echo.MiddlewareFunc,
	aiRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", handlers.Health)

	api := e.Group("/api/v1")
	api.GET("/health", handlers.Health)

	budget := api.Group("/budget", authMiddleware)
	budget.POST("/generate", budgetHandler.Generate, aiRateLimiter)
	budget.POST("", budgetHandler.Save)
	budget.GET("", budgetHandler.List)
	budget.POST("/expenses", expenseHandler.Create)
	budget.DELETE("/expenses/:expenseId", expenseHandler.Delete)
	budget.GET("/:id", budgetHandler.Get)
	budget.GET("/:id/export/csv", budgetHandler.ExportCSV)
	budget.PUT("/:id", budgetHandler.Update)
	budget.DELETE("/:id", budgetHandler.Delete)
	budget.POST("/:id/expenses", expenseHandler.CreateForPlan)

	notifications := api.Group("/notifications", authMiddleware)
	notifications.GET("/stream", notificationHandler.Stream)
}
