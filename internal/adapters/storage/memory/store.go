// Package memory provides an in-memory store for local mode and tests.
// It is NOT persistent, but it implements the exact same aggregate
// semantics as the Firestore store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/threadline-ai/threadline/internal/domain"
)

// Store implements domain.ThreadStore and domain.MessageStore behind a
// single lock, so thread aggregates never race with message writes.
type Store struct {
	mu       sync.RWMutex
	threads  map[domain.ThreadID]*domain.Thread
	messages map[domain.ThreadID][]*domain.Message
}

func NewStore() *Store {
	return &Store{
		threads:  make(map[domain.ThreadID]*domain.Thread),
		messages: make(map[domain.ThreadID][]*domain.Message),
	}
}

func validateRef(id string) error {
	if id == "" || strings.ContainsRune(id, '/') {
		return domain.ErrInvalidReference
	}
	return nil
}

func (s *Store) CreateThread(ctx context.Context, t *domain.Thread, welcome *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[t.ID]; exists {
		return fmt.Errorf("thread %s already exists", t.ID)
	}

	cp := *t
	s.threads[t.ID] = &cp
	if welcome != nil {
		wcp := *welcome
		s.messages[t.ID] = append(s.messages[t.ID], &wcp)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context, page, limit int) (*domain.ThreadPage, error) {
	if page < 1 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		// Stable tiebreak so pagination windows never overlap.
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	skip := (page - 1) * limit
	if skip > len(all) {
		skip = len(all)
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}

	return &domain.ThreadPage{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Threads: all[skip:end],
	}, nil
}

func (s *Store) RenameThread(ctx context.Context, id domain.ThreadID, title string) error {
	if err := validateRef(string(id)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Title = title
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	if err := validateRef(string(m.ThreadID)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[m.ThreadID]
	if !ok {
		return domain.ErrNotFound
	}

	cp := *m
	s.messages[m.ThreadID] = append(s.messages[m.ThreadID], &cp)

	if m.Role == domain.RoleUser {
		userCount := 0
		for _, existing := range s.messages[m.ThreadID] {
			if existing.Role == domain.RoleUser {
				userCount++
			}
		}
		if userCount == 1 {
			t.Title = domain.TitleFromContent(m.Content)
		}
	}

	t.MessagesCount++
	t.UpdatedAt = m.CreatedAt
	t.LastMessageAt = m.CreatedAt
	return nil
}

func (s *Store) ListMessages(ctx context.Context, threadID domain.ThreadID, beforeID domain.MessageID, limit int) ([]*domain.Message, error) {
	if err := validateRef(string(threadID)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[threadID]
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if beforeID != "" && m.ID >= beforeID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	// Newest first; IDs sort in creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetThread returns a copy of a thread, mostly for tests and the legacy
// listing shape.
func (s *Store) GetThread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	if err := validateRef(string(id)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}
