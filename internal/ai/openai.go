package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient calls an OpenAI-compatible chat completions API (OpenAI, Groq).
type OpenAIClient struct {
	provider  string
	model     string
	maxTokens int
	client    openai.Client
	hasKey    bool
}

// NewOpenAIClient создает клиент OpenAI-совместимого API с заданными параметрами.
func NewOpenAIClient(provider, apiKey, baseURL, model string, timeout time.Duration, maxTokens int) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed+"/"))
	}

	return &OpenAIClient{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
		client:    openai.NewClient(opts...),
		hasKey:    strings.TrimSpace(apiKey) != "",
	}
}

// Chat отправляет сообщения в chat completions и возвращает текст ответа и сырой ответ API.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	if !c.hasKey {
		return "", nil, errors.New(c.provider + " api key is missing")
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(0.4),
		MaxTokens:   openai.Int(int64(resolveMaxTokens(c.maxTokens))),
	}
	if len(params.Messages) == 0 {
		return "", nil, errors.New(c.provider + " request has no content")
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", []byte(apiErr.RawJSON()), &APIError{
				Provider:   c.provider,
				StatusCode: apiErr.StatusCode,
				Status:     apiErr.Code,
				Message:    apiErr.Message,
			}
		}
		return "", nil, err
	}

	raw := []byte(completion.RawJSON())
	if len(completion.Choices) == 0 {
		return "", raw, errors.New(c.provider + " response missing choices")
	}

	return completion.Choices[0].Message.Content, raw, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, message := range messages {
		text := strings.TrimSpace(message.Content)
		if text == "" {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(message.Role)) {
		case "system":
			out = append(out, openai.SystemMessage(text))
		case "assistant", "model":
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}
