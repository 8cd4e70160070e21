package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ContextOwnerIDKey = "owner_id"

	// EventSource cannot send headers, so the stream accepts the token as a query parameter.
	tokenQueryParam = "access_token"
)

// JWTMiddleware проверяет access-токен и сохраняет owner_id в контексте.
func JWTMiddleware(manager *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := manager.ParseAccessToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextOwnerIDKey, claims.Subject)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if c.Request().Method == http.MethodGet {
			if token := strings.TrimSpace(c.QueryParam(tokenQueryParam)); token != "" {
				return token, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}

	return tokenString, nil
}

// OwnerIDFromContext извлекает идентификатор владельца из контекста.
func OwnerIDFromContext(c echo.Context) (string, bool) {
	ownerID, ok := c.Get(ContextOwnerIDKey).(string)
	return ownerID, ok && ownerID != ""
}
