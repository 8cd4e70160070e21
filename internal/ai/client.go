package ai

import (
	"context"
	"fmt"
	"strings"
)

const defaultMaxTokens = 4096

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a generative-language collaborator. It returns the model text and the raw API body.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, []byte, error)
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	message := strings.TrimSpace(e.Message)
	if e.Status != "" {
		return fmt.Sprintf("%s api error (%d %s): %s", e.Provider, e.StatusCode, e.Status, message)
	}
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, message)
}

func resolveMaxTokens(value int) int {
	if value > 0 {
		return value
	}

	return defaultMaxTokens
}
