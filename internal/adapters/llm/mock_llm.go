package llm

import (
	"context"
	"fmt"

	"github.com/threadline-ai/threadline/internal/domain"
)

// MockClient is a deterministic CompletionClient for local mode and
// tests.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, userInput string, history []domain.HistoryTurn) (*domain.Completion, error) {
	content := fmt.Sprintf("You said %q. This is a mock reply (history: %d turns).", userInput, len(history))
	return &domain.Completion{
		Content: content,
		Model:   "mock",
		Usage: domain.Usage{
			PromptTokens:     len(userInput) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(userInput) + len(content)) / 4,
		},
	}, nil
}
