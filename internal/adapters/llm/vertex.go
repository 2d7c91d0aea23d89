package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
	"google.golang.org/grpc/status"

	"github.com/threadline-ai/threadline/internal/domain"
)

// VertexClient implements domain.CompletionClient on Vertex AI (Gemini).
type VertexClient struct {
	client          *genai.Client
	modelName       string
	maxOutputTokens int32
	temperature     float32
}

type VertexConfig struct {
	ProjectID       string
	Location        string
	Model           string
	MaxOutputTokens int
	Temperature     float64
}

func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: project and location are required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.ProjectID,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:          client,
		modelName:       cfg.Model,
		maxOutputTokens: int32(cfg.MaxOutputTokens),
		temperature:     float32(cfg.Temperature),
	}, nil
}

// Generate implements domain.CompletionClient.
func (v *VertexClient) Generate(
	ctx context.Context,
	userInput string,
	history []domain.HistoryTurn,
) (*domain.Completion, error) {
	var contents []*genai.Content
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if historyRole(turn.Role) == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userInput, genai.RoleUser))

	temp := v.temperature
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   v.maxOutputTokens,
	}

	start := time.Now()
	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &domain.UpstreamError{
			Provider: "vertex",
			Code:     status.Code(err).String(),
			Err:      err,
		}
	}

	text := res.Text()
	if text == "" {
		return nil, &domain.UpstreamError{
			Provider: "vertex",
			Code:     "empty_response",
			Err:      fmt.Errorf("vertex returned empty text"),
		}
	}

	// Usage is best-effort; missing metadata stays zero.
	var usage domain.Usage
	if res.UsageMetadata != nil {
		usage = domain.Usage{
			PromptTokens:     int(res.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(res.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(res.UsageMetadata.TotalTokenCount),
		}
	}

	return &domain.Completion{
		Content:   text,
		Model:     v.modelName,
		Usage:     usage,
		LatencyMS: elapsed.Milliseconds(),
	}, nil
}
