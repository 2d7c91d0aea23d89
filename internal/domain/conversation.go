package domain

import (
	"strings"
	"unicode/utf8"
)

// Thread groups an ordered set of messages in a single conversation.
// Title, MessagesCount, UpdatedAt and LastMessageAt are aggregates
// maintained by the store as a side effect of message writes.
type Thread struct {
	ID            ThreadID
	Title         string
	Tags          []string
	Archived      bool
	CreatedAt     Timestamp
	UpdatedAt     Timestamp
	LastMessageAt Timestamp
	MessagesCount int64
}

// Message is one turn in a conversation. Messages are created once and
// never mutated or deleted.
type Message struct {
	ID        MessageID
	ThreadID  ThreadID
	Role      Role
	Content   string
	CreatedAt Timestamp

	// Caller-supplied extras on user messages.
	Metadata map[string]any

	// Generation metadata, set on assistant messages only. Best-effort:
	// zero values mean the upstream did not report them.
	Model     string
	Usage     Usage
	LatencyMS int64
}

// HistoryTurn is one entry of the bounded history window handed to the
// completion client.
type HistoryTurn struct {
	Role    Role
	Content string
}

// Usage holds token counts reported by the completion upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the normalized result of one generation call.
type Completion struct {
	Content   string
	Model     string
	Usage     Usage
	LatencyMS int64
}

// titleMaxRunes is how much of the first user message becomes the
// thread title.
const titleMaxRunes = 50

// TitleFromContent derives a thread title from the first user message:
// the first 50 runes of the trimmed content, with "..." appended iff the
// content was longer than that.
func TitleFromContent(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}
