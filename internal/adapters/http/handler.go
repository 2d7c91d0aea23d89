package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/threadline-ai/threadline/internal/app/chat"
	"github.com/threadline-ai/threadline/internal/domain"
	"github.com/threadline-ai/threadline/internal/observability"
)

type Server struct {
	svc *chat.Service
}

// NewServer wires routes and middleware. metrics may be nil.
func NewServer(svc *chat.Service, metrics *observability.Metrics) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	// /threads → list (GET) / create (POST)
	mux.HandleFunc("/threads", s.handleThreads)

	// /threads/{id}          → PUT: rename
	// /threads/{id}/messages → GET: list, POST: post a turn
	mux.HandleFunc("/threads/", s.handleThreadWithID)

	mux.HandleFunc("/health", s.handleHealth)

	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	// Innermost first: logging sees the request ID, CORS short-circuits
	// preflight before anything else runs.
	return chainMiddlewares(mux,
		withLogging,
		withRequestID,
		withMetrics(metrics),
		withCORS,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createThreadRequest struct {
	Title string `json:"title"`
}

type createThreadResponse struct {
	ID string `json:"id"`
}

type threadResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	UpdatedAt     time.Time `json:"updatedAt"`
	MessagesCount int64     `json:"messagesCount"`
}

type listThreadsResponse struct {
	Page         int              `json:"page"`
	Limit        int              `json:"limit"`
	TotalThreads int64            `json:"total_threads"`
	Threads      []threadResponse `json:"threads"`
}

type renameThreadRequest struct {
	Title string `json:"title"`
}

type postMessageRequest struct {
	Role     string         `json:"role,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type assistantResponse struct {
	Content string       `json:"content"`
	Model   string       `json:"model"`
	Usage   domain.Usage `json:"usage"`
}

type postMessageResponse struct {
	ThreadID           string            `json:"thread_id"`
	UserMessageID      string            `json:"user_message_id"`
	AssistantMessageID string            `json:"assistant_message_id"`
	Assistant          assistantResponse `json:"assistant"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

// /threads
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateThread(w, r)
	case http.MethodGet:
		s.handleListThreads(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /threads/{id} or /threads/{id}/messages
func (s *Server) handleThreadWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/threads/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			s.handleRenameThread(w, r, domain.ThreadID(id))
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "messages" {
		switch r.Method {
		case http.MethodPost:
			s.handlePostMessage(w, r, domain.ThreadID(id))
		case http.MethodGet:
			s.handleListMessages(w, r, domain.ThreadID(id))
		default:
			methodNotAllowed(w)
		}
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid JSON body"))
		return
	}

	out, err := s.svc.CreateThread(r.Context(), chat.CreateThreadInput{Title: req.Title})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createThreadResponse{ID: string(out.Thread.ID)})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)

	result, err := s.svc.ListThreads(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	threads := make([]threadResponse, 0, len(result.Threads))
	for _, t := range result.Threads {
		threads = append(threads, threadResponse{
			ID:            string(t.ID),
			Title:         t.Title,
			UpdatedAt:     t.UpdatedAt,
			MessagesCount: t.MessagesCount,
		})
	}

	writeJSON(w, http.StatusOK, listThreadsResponse{
		Page:         result.Page,
		Limit:        result.Limit,
		TotalThreads: result.Total,
		Threads:      threads,
	})
}

func (s *Server) handleRenameThread(w http.ResponseWriter, r *http.Request, id domain.ThreadID) {
	var req renameThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid JSON body"))
		return
	}

	if err := s.svc.RenameThread(r.Context(), id, req.Title); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, id domain.ThreadID) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid JSON body"))
		return
	}

	out, err := s.svc.PostMessage(r.Context(), chat.PostMessageInput{
		ThreadID: id,
		Role:     domain.Role(req.Role),
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, postMessageResponse{
		ThreadID:           string(out.ThreadID),
		UserMessageID:      string(out.UserMessage.ID),
		AssistantMessageID: string(out.AssistantMessage.ID),
		Assistant: assistantResponse{
			Content: out.AssistantMessage.Content,
			Model:   out.AssistantMessage.Model,
			Usage:   out.AssistantMessage.Usage,
		},
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, id domain.ThreadID) {
	beforeID := domain.MessageID(r.URL.Query().Get("before_id"))
	limit := queryInt(r, "limit", 0)

	msgs, err := s.svc.ListMessages(r.Context(), id, beforeID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:        string(m.ID),
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	// More than 9 digits cannot be a sane page or limit and would
	// overflow the accumulator, so treat it like any other bad value.
	if len(raw) > 9 {
		return def
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the domain error taxonomy onto transport statuses.
// Nothing is swallowed: the code tells user-caused from system-caused
// failures apart.
func writeError(w http.ResponseWriter, err error) {
	var (
		valErr *domain.ValidationError
		upErr  *domain.UpstreamError
	)

	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{
			Code:    "validation_error",
			Message: valErr.Msg,
		}})
	case errors.Is(err, domain.ErrInvalidReference):
		writeJSON(w, http.StatusBadRequest, errorBody{errorDetail{
			Code:    "invalid_reference",
			Message: "malformed identifier",
		}})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{errorDetail{
			Code:    "not_found",
			Message: "thread not found",
		}})
	case errors.As(err, &upErr):
		writeJSON(w, http.StatusBadGateway, errorBody{errorDetail{
			Code:    "upstream_error",
			Message: upErr.Error(),
		}})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{errorDetail{
			Code:    "internal_error",
			Message: "internal server error",
		}})
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{errorDetail{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	}})
}
