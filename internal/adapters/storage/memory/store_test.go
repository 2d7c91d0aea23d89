package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/threadline-ai/threadline/internal/adapters/storage/memory"
	"github.com/threadline-ai/threadline/internal/domain"
)

func seedThread(t *testing.T, store *memory.Store, title string, at time.Time) *domain.Thread {
	t.Helper()

	thread := &domain.Thread{
		ID:            domain.ThreadID(domain.NewID(at)),
		Title:         title,
		Tags:          []string{},
		CreatedAt:     at,
		UpdatedAt:     at,
		LastMessageAt: at,
		MessagesCount: 1,
	}
	welcome := &domain.Message{
		ID:        domain.MessageID(domain.NewID(at)),
		ThreadID:  thread.ID,
		Role:      domain.RoleAssistant,
		Content:   "welcome",
		CreatedAt: at,
	}
	if err := store.CreateThread(context.Background(), thread, welcome); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	return thread
}

func seedMessage(t *testing.T, store *memory.Store, threadID domain.ThreadID, role domain.Role, content string, at time.Time) *domain.Message {
	t.Helper()

	m := &domain.Message{
		ID:        domain.MessageID(domain.NewID(at)),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}
	if err := store.CreateMessage(context.Background(), m); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	return m
}

func TestCreateMessageMaintainsAggregates(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	thread := seedThread(t, store, "Test", base)

	seedMessage(t, store, thread.ID, domain.RoleUser, "hi", base.Add(time.Minute))
	seedMessage(t, store, thread.ID, domain.RoleAssistant, "hello", base.Add(2*time.Minute))

	got, err := store.GetThread(context.Background(), thread.ID)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if got.MessagesCount != 3 {
		t.Fatalf("messagesCount = %d, want 3", got.MessagesCount)
	}
	if !got.LastMessageAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("lastMessageAt = %v", got.LastMessageAt)
	}
	if !got.UpdatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("updatedAt = %v", got.UpdatedAt)
	}
}

func TestCreateMessageErrors(t *testing.T) {
	store := memory.NewStore()
	base := time.Now()

	err := store.CreateMessage(context.Background(), &domain.Message{
		ID:       domain.MessageID(domain.NewID(base)),
		ThreadID: "",
		Role:     domain.RoleUser,
		Content:  "x",
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("empty thread id: expected ErrInvalidReference, got %v", err)
	}

	err = store.CreateMessage(context.Background(), &domain.Message{
		ID:       domain.MessageID(domain.NewID(base)),
		ThreadID: "bad/reference",
		Role:     domain.RoleUser,
		Content:  "x",
	})
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("slash in thread id: expected ErrInvalidReference, got %v", err)
	}

	err = store.CreateMessage(context.Background(), &domain.Message{
		ID:       domain.MessageID(domain.NewID(base)),
		ThreadID: "well-formed-but-absent",
		Role:     domain.RoleUser,
		Content:  "x",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("absent thread: expected ErrNotFound, got %v", err)
	}
}

func TestFirstUserMessageTitle(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	thread := seedThread(t, store, "New chat", base)

	// The welcome message is assistant-authored and must not count.
	seedMessage(t, store, thread.ID, domain.RoleUser, "What is the capital of France?", base.Add(time.Minute))

	got, _ := store.GetThread(context.Background(), thread.ID)
	if got.Title != "What is the capital of France?" {
		t.Fatalf("title = %q", got.Title)
	}

	seedMessage(t, store, thread.ID, domain.RoleUser, "And of Spain?", base.Add(2*time.Minute))
	got, _ = store.GetThread(context.Background(), thread.ID)
	if got.Title != "What is the capital of France?" {
		t.Fatalf("second user message retitled the thread: %q", got.Title)
	}
}

func TestListMessagesNewestFirstAndCursor(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	thread := seedThread(t, store, "Test", base)

	var ids []domain.MessageID
	for i := 0; i < 6; i++ {
		m := seedMessage(t, store, thread.ID, domain.RoleUser,
			fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i+1)*time.Second))
		ids = append(ids, m.ID)
	}

	ctx := context.Background()

	newest, err := store.ListMessages(ctx, thread.ID, "", 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(newest) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(newest))
	}
	if newest[0].ID != ids[5] || newest[1].ID != ids[4] || newest[2].ID != ids[3] {
		t.Fatal("listing is not newest-first")
	}

	// Exclusive cursor: everything strictly before ids[3].
	older, err := store.ListMessages(ctx, thread.ID, ids[3], 10)
	if err != nil {
		t.Fatalf("cursored ListMessages failed: %v", err)
	}
	for _, m := range older {
		if m.ID >= ids[3] {
			t.Fatalf("cursor leaked message %s", m.ID)
		}
	}

	// Idempotence: same cursor and limit, same result.
	again, err := store.ListMessages(ctx, thread.ID, ids[3], 10)
	if err != nil {
		t.Fatalf("repeat ListMessages failed: %v", err)
	}
	if len(again) != len(older) {
		t.Fatalf("idempotence violated: %d vs %d results", len(again), len(older))
	}
	for i := range again {
		if again[i].ID != older[i].ID {
			t.Fatalf("idempotence violated at %d: %s vs %s", i, again[i].ID, older[i].ID)
		}
	}
}

func TestListThreadsPaginationNoOverlap(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		seedThread(t, store, fmt.Sprintf("thread-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	ctx := context.Background()

	page1, err := store.ListThreads(ctx, 1, 5)
	if err != nil {
		t.Fatalf("ListThreads page 1 failed: %v", err)
	}
	page2, err := store.ListThreads(ctx, 2, 5)
	if err != nil {
		t.Fatalf("ListThreads page 2 failed: %v", err)
	}

	if page1.Total != 12 || page2.Total != 12 {
		t.Fatalf("totals = %d, %d; want 12", page1.Total, page2.Total)
	}
	if len(page1.Threads) != 5 || len(page2.Threads) != 5 {
		t.Fatalf("window sizes = %d, %d; want 5", len(page1.Threads), len(page2.Threads))
	}

	seen := make(map[domain.ThreadID]bool)
	for _, th := range page1.Threads {
		seen[th.ID] = true
	}
	for _, th := range page2.Threads {
		if seen[th.ID] {
			t.Fatalf("thread %s appears on both pages", th.ID)
		}
	}

	// Most recently updated first.
	if page1.Threads[0].Title != "thread-11" {
		t.Fatalf("page 1 starts with %q, want thread-11", page1.Threads[0].Title)
	}
}

func TestRenameThread(t *testing.T) {
	store := memory.NewStore()
	thread := seedThread(t, store, "Old", time.Now())

	if err := store.RenameThread(context.Background(), thread.ID, "New"); err != nil {
		t.Fatalf("RenameThread failed: %v", err)
	}
	got, _ := store.GetThread(context.Background(), thread.ID)
	if got.Title != "New" {
		t.Fatalf("title = %q", got.Title)
	}

	if err := store.RenameThread(context.Background(), "absent-thread", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
