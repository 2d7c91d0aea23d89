// Package history turns a raw list of stored messages into a bounded,
// chronologically ordered window suitable as completion input.
package history

import (
	"github.com/threadline-ai/threadline/internal/domain"
)

// CostFunc estimates the token cost of a piece of content.
type CostFunc func(content string) int

// ApproxTokens is the default cost estimate: one token per four
// characters, rounded up. Cheap and deterministic.
func ApproxTokens(content string) int {
	return (len(content) + 3) / 4
}

// Build selects at most nLatest of the most recent messages and trims
// the selection to the maxTokens budget using ApproxTokens.
func Build(msgs []*domain.Message, nLatest, maxTokens int) []domain.HistoryTurn {
	return BuildWithCost(msgs, nLatest, maxTokens, ApproxTokens)
}

// BuildWithCost is Build with a caller-supplied cost estimator.
//
// Input must be ordered oldest first. The walk goes from the most recent
// message backwards, accumulating cost, and stops before the first
// message that would blow the budget. The most recent message is never
// dropped: if it alone exceeds the budget its content is truncated to
// fit instead. Output is oldest first.
func BuildWithCost(msgs []*domain.Message, nLatest, maxTokens int, cost CostFunc) []domain.HistoryTurn {
	if len(msgs) == 0 || nLatest <= 0 {
		return nil
	}
	if cost == nil {
		cost = ApproxTokens
	}

	window := msgs
	if len(window) > nLatest {
		window = window[len(window)-nLatest:]
	}

	var selected []domain.HistoryTurn
	budget := maxTokens
	for i := len(window) - 1; i >= 0; i-- {
		m := window[i]
		c := cost(m.Content)
		if c > budget {
			if len(selected) == 0 {
				// Forced inclusion of the most recent message.
				selected = append(selected, domain.HistoryTurn{
					Role:    m.Role,
					Content: truncate(m.Content, budget, cost),
				})
			}
			break
		}
		budget -= c
		selected = append(selected, domain.HistoryTurn{Role: m.Role, Content: m.Content})
	}

	// Walked newest to oldest; flip back to chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

// truncate returns the longest rune prefix of content whose cost stays
// within budget.
func truncate(content string, budget int, cost CostFunc) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if cost(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
