package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/threadline-ai/threadline/internal/app/history"
)

// NewTokenEstimator builds a history.CostFunc backed by the model's BPE
// encoding. Falls back to cl100k_base when the model is unknown to
// tiktoken (e.g. Gemini models).
func NewTokenEstimator(model string) (history.CostFunc, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("loading tiktoken encoding: %w", err)
		}
	}
	return func(content string) int {
		return len(enc.Encode(content, nil, nil))
	}, nil
}
