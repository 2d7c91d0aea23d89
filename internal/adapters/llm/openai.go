package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/threadline-ai/threadline/internal/domain"
)

// OpenAIClient implements domain.CompletionClient on the OpenAI chat
// completions API. A custom base URL also covers local
// OpenAI-compatible servers.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Generate implements domain.CompletionClient.
func (c *OpenAIClient) Generate(
	ctx context.Context,
	userInput string,
	history []domain.HistoryTurn,
) (*domain.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if historyRole(turn.Role) == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userInput,
	})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	elapsed := time.Since(start)
	if err != nil {
		code := "request_failed"
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			code = strconv.Itoa(apiErr.HTTPStatusCode)
		}
		return nil, &domain.UpstreamError{
			Provider: "openai",
			Code:     code,
			Err:      err,
		}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &domain.UpstreamError{
			Provider: "openai",
			Code:     "empty_response",
			Err:      fmt.Errorf("openai returned no choices"),
		}
	}

	return &domain.Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		LatencyMS: elapsed.Milliseconds(),
	}, nil
}
