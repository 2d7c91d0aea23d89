package domain

import "context"

// CompletionClient defines how the core talks to a text-generation
// upstream. Usage and latency in the result are best-effort; their
// absence must not fail the call.
type CompletionClient interface {
	Generate(ctx context.Context, userInput string, history []HistoryTurn) (*Completion, error)
}

// ThreadPage is one window of the thread listing plus the full count.
type ThreadPage struct {
	Page    int
	Limit   int
	Total   int64
	Threads []*Thread
}

// ThreadStore defines thread persistence.
type ThreadStore interface {
	// CreateThread persists the thread together with its welcome message.
	// The thread arrives with MessagesCount already accounting for the
	// welcome, so the welcome write must not touch the aggregates.
	CreateThread(ctx context.Context, t *Thread, welcome *Message) error

	// ListThreads pages through threads sorted by UpdatedAt descending.
	// Total is the full thread count, independent of the window.
	ListThreads(ctx context.Context, page, limit int) (*ThreadPage, error)

	// RenameThread sets the title and bumps UpdatedAt. Returns
	// ErrNotFound when the thread does not exist.
	RenameThread(ctx context.Context, id ThreadID, title string) error
}

// MessageStore defines message persistence and the thread aggregate
// maintenance that goes with every message write.
type MessageStore interface {
	// CreateMessage validates the thread reference (ErrInvalidReference
	// when malformed, ErrNotFound when absent), inserts the message and
	// atomically updates the owning thread's MessagesCount, UpdatedAt and
	// LastMessageAt. When the message is the thread's first user message
	// the thread title is derived from its content.
	CreateMessage(ctx context.Context, m *Message) error

	// ListMessages returns messages for a thread, newest first, at most
	// limit of them, optionally only those strictly before beforeID.
	ListMessages(ctx context.Context, threadID ThreadID, beforeID MessageID, limit int) ([]*Message, error)
}
