// Package firestore persists threads and messages in two top-level
// Firestore collections. Thread aggregates (message count, activity
// timestamps, title) are maintained with Firestore's atomic update
// primitives, never with application-side read-modify-write.
package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/threadline-ai/threadline/internal/domain"
)

const (
	threadsCollection  = "threads"
	messagesCollection = "messages"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given GCP project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) threadsCol() *firestore.CollectionRef {
	return s.client.Collection(threadsCollection)
}

func (s *Store) threadDoc(id domain.ThreadID) *firestore.DocumentRef {
	return s.threadsCol().Doc(string(id))
}

func (s *Store) messagesCol() *firestore.CollectionRef {
	return s.client.Collection(messagesCollection)
}

func (s *Store) messageDoc(id domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol().Doc(string(id))
}

// Firestore document IDs cannot be empty or contain a path separator.
func validateRef(id string) error {
	if id == "" || strings.ContainsRune(id, '/') {
		return domain.ErrInvalidReference
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type threadDoc struct {
	Title         string    `firestore:"title"`
	Tags          []string  `firestore:"tags"`
	Archived      bool      `firestore:"archived"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
	LastMessageAt time.Time `firestore:"last_message_at"`
	MessagesCount int64     `firestore:"messages_count"`
}

type usageDoc struct {
	PromptTokens     int `firestore:"prompt_tokens"`
	CompletionTokens int `firestore:"completion_tokens"`
	TotalTokens      int `firestore:"total_tokens"`
}

type messageDoc struct {
	ThreadID  string         `firestore:"thread_id"`
	Role      string         `firestore:"role"`
	Content   string         `firestore:"content"`
	CreatedAt time.Time      `firestore:"created_at"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Model     string         `firestore:"model,omitempty"`
	Usage     usageDoc       `firestore:"usage"`
	LatencyMS int64          `firestore:"latency_ms"`
}

func toThreadDoc(t *domain.Thread) threadDoc {
	return threadDoc{
		Title:         t.Title,
		Tags:          t.Tags,
		Archived:      t.Archived,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		LastMessageAt: t.LastMessageAt,
		MessagesCount: t.MessagesCount,
	}
}

func toMessageDoc(m *domain.Message) messageDoc {
	return messageDoc{
		ThreadID:  string(m.ThreadID),
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Metadata:  m.Metadata,
		Model:     m.Model,
		Usage: usageDoc{
			PromptTokens:     m.Usage.PromptTokens,
			CompletionTokens: m.Usage.CompletionTokens,
			TotalTokens:      m.Usage.TotalTokens,
		},
		LatencyMS: m.LatencyMS,
	}
}

func fromMessageDoc(id string, doc messageDoc) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(id),
		ThreadID:  domain.ThreadID(doc.ThreadID),
		Role:      domain.Role(doc.Role),
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
		Metadata:  doc.Metadata,
		Model:     doc.Model,
		Usage: domain.Usage{
			PromptTokens:     doc.Usage.PromptTokens,
			CompletionTokens: doc.Usage.CompletionTokens,
			TotalTokens:      doc.Usage.TotalTokens,
		},
		LatencyMS: doc.LatencyMS,
	}
}

// ─────────────────────────────────────────
// ThreadStore implementation
// ─────────────────────────────────────────

// CreateThread writes the thread and its welcome message in one
// transaction, so a crash cannot leave a thread whose count claims a
// welcome that was never written.
func (s *Store) CreateThread(ctx context.Context, t *domain.Thread, welcome *domain.Message) error {
	if err := validateRef(string(t.ID)); err != nil {
		return err
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.threadDoc(t.ID), toThreadDoc(t)); err != nil {
			return err
		}
		if welcome != nil {
			if err := tx.Create(s.messageDoc(welcome.ID), toMessageDoc(welcome)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("firestore CreateThread: %w", err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context, page, limit int) (*domain.ThreadPage, error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * limit

	total, err := s.countThreads(ctx)
	if err != nil {
		return nil, err
	}

	q := s.threadsCol().
		OrderBy("updated_at", firestore.Desc).
		Offset(skip).
		Limit(limit)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Thread
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListThreads: %w", err)
		}

		var doc threadDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode threadDoc: %w", err)
		}

		out = append(out, &domain.Thread{
			ID:            domain.ThreadID(snap.Ref.ID),
			Title:         doc.Title,
			Tags:          doc.Tags,
			Archived:      doc.Archived,
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
			LastMessageAt: doc.LastMessageAt,
			MessagesCount: doc.MessagesCount,
		})
	}

	return &domain.ThreadPage{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Threads: out,
	}, nil
}

func (s *Store) countThreads(ctx context.Context) (int64, error) {
	res, err := s.threadsCol().NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore count threads: %w", err)
	}
	v, ok := res["total"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore count threads: unexpected aggregation result %T", res["total"])
	}
	return v.GetIntegerValue(), nil
}

func (s *Store) RenameThread(ctx context.Context, id domain.ThreadID, title string) error {
	if err := validateRef(string(id)); err != nil {
		return err
	}

	_, err := s.threadDoc(id).Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore RenameThread: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

// CreateMessage inserts the message and maintains the thread aggregates
// with an atomic server-side increment. A missing thread is an explicit
// domain.ErrNotFound, never a silent no-op.
//
// First-user-message detection is count-then-branch: two concurrent
// first posts to the same thread can leave the title set from either
// message, or from neither. Accepted — the title is derived, not
// authoritative.
func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	if err := validateRef(string(m.ThreadID)); err != nil {
		return err
	}

	if _, err := s.threadDoc(m.ThreadID).Get(ctx); err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore CreateMessage get thread: %w", err)
	}

	if _, err := s.messageDoc(m.ID).Create(ctx, toMessageDoc(m)); err != nil {
		return fmt.Errorf("firestore CreateMessage: %w", err)
	}

	if m.Role == domain.RoleUser {
		userCount, err := s.countUserMessages(ctx, m.ThreadID)
		if err != nil {
			return err
		}
		if userCount == 1 {
			_, err := s.threadDoc(m.ThreadID).Update(ctx, []firestore.Update{
				{Path: "title", Value: domain.TitleFromContent(m.Content)},
			})
			if err != nil {
				return fmt.Errorf("firestore CreateMessage set title: %w", err)
			}
		}
	}

	_, err := s.threadDoc(m.ThreadID).Update(ctx, []firestore.Update{
		{Path: "messages_count", Value: firestore.Increment(1)},
		{Path: "updated_at", Value: m.CreatedAt},
		{Path: "last_message_at", Value: m.CreatedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore CreateMessage update thread: %w", err)
	}
	return nil
}

func (s *Store) countUserMessages(ctx context.Context, threadID domain.ThreadID) (int64, error) {
	q := s.messagesCol().
		Where("thread_id", "==", string(threadID)).
		Where("role", "==", string(domain.RoleUser))
	res, err := q.NewAggregationQuery().
		WithCount("total").
		Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore count user messages: %w", err)
	}
	v, ok := res["total"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore count user messages: unexpected aggregation result %T", res["total"])
	}
	return v.GetIntegerValue(), nil
}

// ListMessages returns a thread's messages newest first, ordered by
// document ID. Message IDs sort in creation order, so the ID order is
// the chronological order and beforeID works as an exclusive cursor.
func (s *Store) ListMessages(ctx context.Context, threadID domain.ThreadID, beforeID domain.MessageID, limit int) ([]*domain.Message, error) {
	if err := validateRef(string(threadID)); err != nil {
		return nil, err
	}
	if beforeID != "" {
		if err := validateRef(string(beforeID)); err != nil {
			return nil, err
		}
	}

	q := s.messagesCol().
		Where("thread_id", "==", string(threadID)).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if beforeID != "" {
		q = q.Where(firestore.DocumentID, "<", string(beforeID))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	out := make([]*domain.Message, 0, limit)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		out = append(out, fromMessageDoc(snap.Ref.ID, doc))
	}
	return out, nil
}
