// Package chat implements the message-turn use case: persisting user
// input, assembling bounded history, calling the completion upstream and
// persisting the reply together with the thread aggregates.
package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadline-ai/threadline/internal/app/history"
	"github.com/threadline-ai/threadline/internal/domain"
	"github.com/threadline-ai/threadline/internal/observability"
)

const (
	// welcomeText seeds every new thread with one assistant message.
	welcomeText = "Hi there 👋\nI'm your AI assistant. Ask me anything!"

	// historyFetchLimit bounds how many stored messages are pulled for
	// history assembly, before the token budget is applied.
	historyFetchLimit = 200

	defaultNLatest      = 20
	defaultMaxTokens    = 2000
	defaultListLimit    = 50
	maxListLimit        = 200
	defaultThreadsLimit = 20
	maxThreadsLimit     = 100
)

// HistoryLimits bounds the history window handed to the completion
// client: at most NLatest messages, within a MaxTokens budget.
type HistoryLimits struct {
	NLatest   int
	MaxTokens int
}

type Service struct {
	llm      domain.CompletionClient
	threads  domain.ThreadStore
	messages domain.MessageStore
	limits   HistoryLimits
	cost     history.CostFunc
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService wires the orchestrator. metrics may be nil.
func NewService(
	llm domain.CompletionClient,
	threads domain.ThreadStore,
	messages domain.MessageStore,
	limits HistoryLimits,
	metrics *observability.Metrics,
) *Service {
	if limits.NLatest <= 0 {
		limits.NLatest = defaultNLatest
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = defaultMaxTokens
	}

	return &Service{
		llm:      llm,
		threads:  threads,
		messages: messages,
		limits:   limits,
		cost:     history.ApproxTokens,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetTokenEstimator replaces the default char/4 cost proxy, e.g. with a
// tiktoken-backed estimator.
func (s *Service) SetTokenEstimator(cost history.CostFunc) {
	if cost != nil {
		s.cost = cost
	}
}

type CreateThreadInput struct {
	Title string
}

type CreateThreadOutput struct {
	Thread  *domain.Thread
	Welcome *domain.Message
}

// CreateThread persists a new thread together with its welcome message.
// The thread starts with MessagesCount = 1, covering the welcome.
func (s *Service) CreateThread(ctx context.Context, in CreateThreadInput) (*CreateThreadOutput, error) {
	now := s.now()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "New chat"
	}

	log := observability.LoggerFromContext(ctx).With(zap.String("title", title))
	log.Info("creating thread")

	thread := &domain.Thread{
		ID:            domain.ThreadID(domain.NewID(now)),
		Title:         title,
		Tags:          []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		MessagesCount: 1,
	}

	welcome := &domain.Message{
		ID:        domain.MessageID(domain.NewID(now)),
		ThreadID:  thread.ID,
		Role:      domain.RoleAssistant,
		Content:   welcomeText,
		CreatedAt: now,
	}

	if err := s.threads.CreateThread(ctx, thread, welcome); err != nil {
		log.Error("failed to create thread", zap.Error(err))
		return nil, err
	}

	log.Info("thread created", zap.String("thread_id", string(thread.ID)))

	return &CreateThreadOutput{
		Thread:  thread,
		Welcome: welcome,
	}, nil
}

type PostMessageInput struct {
	ThreadID domain.ThreadID
	Role     domain.Role
	Content  string
	Metadata map[string]any
}

type PostMessageOutput struct {
	ThreadID         domain.ThreadID
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
}

// PostMessage runs one full turn: persist the user message, rebuild the
// bounded history, generate a reply and persist it. Side effects are
// strictly ordered; if generation fails, the user message stays
// persisted and the upstream error is returned as the turn's outcome.
func (s *Service) PostMessage(ctx context.Context, in PostMessageInput) (*PostMessageOutput, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, domain.Validationf("content is required")
	}
	if in.Role != "" && in.Role != domain.RoleUser {
		return nil, domain.Validationf("only %q messages can start a turn", domain.RoleUser)
	}

	log := observability.LoggerFromContext(ctx).With(zap.String("thread_id", string(in.ThreadID)))
	log.Info("posting message")

	userMsg := &domain.Message{
		ID:        domain.MessageID(domain.NewID(s.now())),
		ThreadID:  in.ThreadID,
		Role:      domain.RoleUser,
		Content:   in.Content,
		CreatedAt: s.now(),
		Metadata:  in.Metadata,
	}

	if err := s.messages.CreateMessage(ctx, userMsg); err != nil {
		log.Error("failed to persist user message", zap.Error(err))
		s.metrics.ObserveTurn("store_error")
		return nil, err
	}

	raw, err := s.messages.ListMessages(ctx, in.ThreadID, "", historyFetchLimit)
	if err != nil {
		log.Error("failed to load history", zap.Error(err))
		s.metrics.ObserveTurn("store_error")
		return nil, err
	}

	turns := history.BuildWithCost(
		historyBefore(raw, userMsg.ID),
		s.limits.NLatest,
		s.limits.MaxTokens,
		s.cost,
	)

	start := s.now()
	completion, err := s.llm.Generate(ctx, content, turns)
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		s.metrics.ObserveTurn("upstream_error")
		return nil, err
	}
	s.metrics.ObserveCompletion(completion.Model, s.now().Sub(start))

	assistantMsg := &domain.Message{
		ID:        domain.MessageID(domain.NewID(s.now())),
		ThreadID:  in.ThreadID,
		Role:      domain.RoleAssistant,
		Content:   completion.Content,
		CreatedAt: s.now(),
		Model:     completion.Model,
		Usage:     completion.Usage,
		LatencyMS: completion.LatencyMS,
	}

	if err := s.messages.CreateMessage(ctx, assistantMsg); err != nil {
		log.Error("failed to persist assistant message", zap.Error(err))
		s.metrics.ObserveTurn("store_error")
		return nil, err
	}

	s.metrics.ObserveTurn("ok")
	log.Info("turn completed",
		zap.String("model", completion.Model),
		zap.Int64("latency_ms", completion.LatencyMS),
		zap.Int("history_turns", len(turns)),
	)

	return &PostMessageOutput{
		ThreadID:         in.ThreadID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// historyBefore reverses the newest-first store listing into
// chronological order and drops the just-written user message: the
// completion client receives it as the user input and must not see it
// twice. The match is by ID rather than tail position, because IDs
// minted in the same nanosecond tie on their timestamp prefix and the
// listing order between them is arbitrary.
func historyBefore(newestFirst []*domain.Message, userMsgID domain.MessageID) []*domain.Message {
	oldestFirst := make([]*domain.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if newestFirst[i].ID == userMsgID {
			continue
		}
		oldestFirst = append(oldestFirst, newestFirst[i])
	}
	return oldestFirst
}

// ListMessages returns a thread's messages newest first, cursored
// strictly before beforeID when set.
func (s *Service) ListMessages(ctx context.Context, threadID domain.ThreadID, beforeID domain.MessageID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.messages.ListMessages(ctx, threadID, beforeID, limit)
}

// ListThreads pages through threads, most recently active first.
func (s *Service) ListThreads(ctx context.Context, page, limit int) (*domain.ThreadPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultThreadsLimit
	}
	if limit > maxThreadsLimit {
		limit = maxThreadsLimit
	}
	return s.threads.ListThreads(ctx, page, limit)
}

// RenameThread sets an explicit title on a thread.
func (s *Service) RenameThread(ctx context.Context, threadID domain.ThreadID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Validationf("title is required")
	}
	return s.threads.RenameThread(ctx, threadID, title)
}
