package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/threadline-ai/threadline/internal/adapters/http"
	"github.com/threadline-ai/threadline/internal/adapters/llm"
	"github.com/threadline-ai/threadline/internal/adapters/storage/memory"
	"github.com/threadline-ai/threadline/internal/app/chat"
	"github.com/threadline-ai/threadline/internal/domain"
	"github.com/threadline-ai/threadline/internal/observability"
)

func newTestServer(t *testing.T, client domain.CompletionClient) http.Handler {
	t.Helper()

	if client == nil {
		client = llm.NewMockClient()
	}
	store := memory.NewStore()
	svc := chat.NewService(client, store, store, chat.HistoryLimits{}, nil)
	return httpadapter.NewServer(svc, observability.NewMetrics())
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func createThread(t *testing.T, srv http.Handler, title string) string {
	t.Helper()

	w := doJSON(t, srv, http.MethodPost, "/threads", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create thread: expected 201, got %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding create thread response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected a thread id")
	}
	return resp.ID
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if !resp["ok"] {
		t.Fatalf("expected ok:true, got %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateThreadAndPostMessage(t *testing.T) {
	srv := newTestServer(t, nil)
	threadID := createThread(t, srv, "Test")

	w := doJSON(t, srv, http.MethodPost, "/threads/"+threadID+"/messages",
		map[string]string{"content": "Hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post message: expected 201, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		ThreadID           string `json:"thread_id"`
		UserMessageID      string `json:"user_message_id"`
		AssistantMessageID string `json:"assistant_message_id"`
		Assistant          struct {
			Content string       `json:"content"`
			Model   string       `json:"model"`
			Usage   domain.Usage `json:"usage"`
		} `json:"assistant"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding turn response: %v", err)
	}
	if resp.ThreadID != threadID {
		t.Fatalf("thread_id = %q, want %q", resp.ThreadID, threadID)
	}
	if resp.UserMessageID == "" || resp.AssistantMessageID == "" {
		t.Fatal("expected both message ids")
	}
	if resp.UserMessageID == resp.AssistantMessageID {
		t.Fatal("user and assistant message ids must differ")
	}
	if resp.Assistant.Content == "" {
		t.Fatal("expected assistant content")
	}

	// welcome + user + assistant, newest first
	lw := doJSON(t, srv, http.MethodGet, "/threads/"+threadID+"/messages", nil)
	if lw.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", lw.Code)
	}
	var msgs []struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(lw.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decoding messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].ID != resp.AssistantMessageID {
		t.Fatal("newest message should be the assistant reply")
	}
}

func TestPostMessageValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	threadID := createThread(t, srv, "Test")

	w := doJSON(t, srv, http.MethodPost, "/threads/"+threadID+"/messages",
		map[string]string{"content": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank content: expected 400, got %d", w.Code)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Code != "validation_error" {
		t.Fatalf("error code = %q", resp.Error.Code)
	}
}

func TestPostMessageUnknownThread(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/threads/no-such-thread/messages",
		map[string]string{"content": "Hello"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", w.Code, w.Body.String())
	}
}

type failingClient struct{}

func (f *failingClient) Generate(ctx context.Context, userInput string, history []domain.HistoryTurn) (*domain.Completion, error) {
	return nil, &domain.UpstreamError{Provider: "test", Code: "503"}
}

func TestUpstreamFailureSurfacesAndKeepsUserMessage(t *testing.T) {
	srv := newTestServer(t, &failingClient{})
	threadID := createThread(t, srv, "Test")

	w := doJSON(t, srv, http.MethodPost, "/threads/"+threadID+"/messages",
		map[string]string{"content": "Hello"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d, body=%s", w.Code, w.Body.String())
	}

	// The user message is still retrievable.
	lw := doJSON(t, srv, http.MethodGet, "/threads/"+threadID+"/messages", nil)
	var msgs []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(lw.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decoding messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected welcome + user message, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello" {
		t.Fatalf("newest message = %+v, want the user message", msgs[0])
	}
}

func TestListThreadsPagination(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 7; i++ {
		createThread(t, srv, fmt.Sprintf("thread-%d", i))
	}

	get := func(page int) (total int64, ids []string) {
		w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/threads?page=%d&limit=5", page), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list threads page %d: expected 200, got %d", page, w.Code)
		}
		var resp struct {
			Page         int   `json:"page"`
			Limit        int   `json:"limit"`
			TotalThreads int64 `json:"total_threads"`
			Threads      []struct {
				ID string `json:"id"`
			} `json:"threads"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding threads page %d: %v", page, err)
		}
		for _, th := range resp.Threads {
			ids = append(ids, th.ID)
		}
		return resp.TotalThreads, ids
	}

	total1, page1 := get(1)
	total2, page2 := get(2)

	if total1 != 7 || total2 != 7 {
		t.Fatalf("totals = %d, %d; want 7", total1, total2)
	}
	if len(page1) != 5 || len(page2) != 2 {
		t.Fatalf("window sizes = %d, %d; want 5 and 2", len(page1), len(page2))
	}

	seen := make(map[string]bool)
	for _, id := range page1 {
		seen[id] = true
	}
	for _, id := range page2 {
		if seen[id] {
			t.Fatalf("thread %s appears on both pages", id)
		}
	}
}

func TestListThreadsIgnoresBadPaginationParams(t *testing.T) {
	srv := newTestServer(t, nil)
	createThread(t, srv, "only thread")

	// Non-numeric, negative-looking and absurdly long values all fall
	// back to defaults instead of wrapping or erroring.
	for _, query := range []string{
		"page=abc&limit=xyz",
		"page=-1&limit=-5",
		"page=1&limit=99999999999999999999",
		"page=99999999999999999999&limit=5",
	} {
		w := doJSON(t, srv, http.MethodGet, "/threads?"+query, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("query %q: expected 200, got %d, body=%s", query, w.Code, w.Body.String())
		}
		var resp struct {
			Page         int   `json:"page"`
			TotalThreads int64 `json:"total_threads"`
			Threads      []struct {
				ID string `json:"id"`
			} `json:"threads"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("query %q: decoding response: %v", query, err)
		}
		if resp.Page < 1 {
			t.Fatalf("query %q: page = %d, want >= 1", query, resp.Page)
		}
		if resp.TotalThreads != 1 {
			t.Fatalf("query %q: total = %d, want 1", query, resp.TotalThreads)
		}
	}
}

func TestRenameThread(t *testing.T) {
	srv := newTestServer(t, nil)
	threadID := createThread(t, srv, "Old title")

	w := doJSON(t, srv, http.MethodPut, "/threads/"+threadID, map[string]string{"title": "New title"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPut, "/threads/absent-thread", map[string]string{"title": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("rename absent thread: expected 404, got %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPut, "/threads/"+threadID, map[string]string{"title": "  "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title: expected 400, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/threads", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS headers")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	threadID := createThread(t, srv, "Test")

	w := doJSON(t, srv, http.MethodDelete, "/threads/"+threadID, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
