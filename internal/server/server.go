package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"example.com/trip-budget-planner/backend/internal/ai"
	"example.com/trip-budget-planner/backend/internal/auth"
	"example.com/trip-budget-planner/backend/internal/config"
	"example.com/trip-budget-planner/backend/internal/handlers"
	"example.com/trip-budget-planner/backend/internal/ledger"
	"example.com/trip-budget-planner/backend/internal/notifications"
	"example.com/trip-budget-planner/backend/internal/repository"
)

// Deps holds the long-lived collaborators built once at startup.
type Deps struct {
	Plans    repository.PlanStore
	AILog    repository.AIRequestLogger
	AIClient ai.Client
	Hub      *notifications.Hub
}

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(cfg config.Config, logger *slog.Logger, deps Deps) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	hub := deps.Hub
	if hub == nil {
		hub = notifications.NewHub()
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	aiService := NewAIService(cfg.AI, deps.AIClient, logger)

	budgetHandler := handlers.NewBudgetHandler(aiService, deps.Plans, deps.AILog, hub, cfg.AI.Provider, cfg.AI.Model)
	expenseHandler := handlers.NewExpenseHandler(ledger.New(deps.Plans), hub)
	notificationHandler := handlers.NewNotificationHandler(hub)

	registerRoutes(
		e,
		budgetHandler,
		expenseHandler,
		notificationHandler,
		auth.JWTMiddleware(tokenManager),
		aiRateLimiter(cfg.AI),
	)

	return e
}

// NewAIClient создает клиент AI-провайдера по конфигурации.
func NewAIClient(cfg config.AIConfig) (ai.Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.AIProviderGemini:
		return ai.NewGeminiClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens), nil
	case config.AIProviderGroq, config.AIProviderOpenAI:
		return ai.NewOpenAIClient(cfg.Provider, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// NewAIService оборачивает клиент сервисом генерации с таймаутом и повторами из конфигурации.
func NewAIService(cfg config.AIConfig, client ai.Client, logger *slog.Logger) *ai.Service {
	return ai.NewService(client,
		ai.WithTimeout(cfg.Timeout),
		ai.WithMaxRetries(cfg.MaxRetries),
		ai.WithLogger(logger),
	)
}

// NewHTTPServer создает net/http сервер с заданными таймаутами и CORS.
func NewHTTPServer(cfg config.ServerConfig, corsCfg config.CORSConfig, handler http.Handler) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins:   corsCfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      c.Handler(handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func aiRateLimiter(cfg config.AIConfig) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if ownerID, ok := auth.OwnerIDFromContext(c); ok {
				return ownerID, nil
			}
			return c.RealIP(), nil
		},
	})
}
