package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"kisanmitra/internal/completion"
	"kisanmitra/internal/config"
	"kisanmitra/internal/conversation"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/models"
	"kisanmitra/internal/storage"
	"kisanmitra/internal/suggest"
	"kisanmitra/internal/worker"
)

type mockReplier struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (m *mockReplier) Reply(_ context.Context, message string, ui, user lang.Tag) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, message+"|"+ui.Code()+"|"+user.Code())
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockReplier) Provider() string { return "mock" }

type busyRunner struct{}

func (busyRunner) Do(context.Context, string, func(context.Context)) error {
	return worker.ErrDispatcherBusy
}

type mockTransliterator struct{ out string }

func (m mockTransliterator) Transliterate(context.Context, string, lang.Tag) (string, error) {
	if m.out == "" {
		return "", errors.New("offline")
	}
	return m.out, nil
}

func newTestAudit(t *testing.T) *storage.Audit {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return storage.NewAudit(db)
}

func newTestRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Workers == nil {
		d := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8}, nil)
		t.Cleanup(d.Stop)
		deps.Workers = d
	}
	router := gin.New()
	NewHandler(deps).RegisterRoutes(router)
	return router
}

func doJSONRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) models.ChatResponse {
	t.Helper()
	var resp models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestChatSuccess(t *testing.T) {
	replier := &mockReplier{reply: "Plough deep.\n\nAdd compost."}
	audit := newTestAudit(t)
	router := newTestRouter(t, Deps{Replier: replier, Audit: audit})

	rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message: "how to grow cotton", Language: "en", UILanguage: "te", UserLanguage: "en",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeChat(t, rec)
	if resp.Error || resp.Role != models.RoleAssistant || resp.Content == nil || *resp.Content != "Plough deep.\n\nAdd compost." {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Timestamp == nil {
		t.Fatalf("missing timestamp")
	}
	want := suggest.DefaultsFor(lang.Telugu)
	if len(resp.Suggestions) != len(want) || resp.Suggestions[0] != want[0] {
		t.Fatalf("expected telugu suggestions, got %v", resp.Suggestions)
	}
	if replier.calls[0] != "how to grow cotton|te|en" {
		t.Fatalf("unexpected replier call %q", replier.calls[0])
	}
	if rec.Header().Get(correlationHeader) == "" {
		t.Fatalf("missing correlation id header")
	}

	rows, err := audit.Summary(context.Background(), time.Now().Add(-time.Hour))
	if err != nil || len(rows) != 1 || rows[0].UILanguage != "te" || rows[0].Status != storage.StatusOK {
		t.Fatalf("unexpected audit rows %#v %v", rows, err)
	}
}

func TestChatLanguageFallbacks(t *testing.T) {
	replier := &mockReplier{reply: "ok"}
	router := newTestRouter(t, Deps{Replier: replier})

	cases := []struct {
		req  models.ChatRequest
		want string
	}{
		{models.ChatRequest{Message: "a", Language: "hi"}, "a|hi|en"},
		{models.ChatRequest{Message: "b"}, "b|en|en"},
		{models.ChatRequest{Message: "c", UILanguage: "hi-IN", UserLanguage: "te"}, "c|hi|te"},
		{models.ChatRequest{Message: "d", UILanguage: "fr", UserLanguage: "xx"}, "d|en|en"},
		{models.ChatRequest{Message: "e", UILanguage: "mr", UserLanguage: "sa"}, "e|en|en"},
	}
	for i, tc := range cases {
		rec := doJSONRequest(t, router, http.MethodPost, "/chat", tc.req)
		if rec.Code != http.StatusOK {
			t.Fatalf("case %d: status %d", i, rec.Code)
		}
		if replier.calls[i] != tc.want {
			t.Fatalf("case %d: call %q, want %q", i, replier.calls[i], tc.want)
		}
	}
}

func TestChatAuditKeepsRepeatedCorrelationIDs(t *testing.T) {
	audit := newTestAudit(t)
	router := newTestRouter(t, Deps{Replier: &mockReplier{reply: "ok"}, Audit: audit})

	ids := []string{"same-id", "same-id", "same-id", strings.Repeat("x", 200)}
	for i, id := range ids {
		body, _ := json.Marshal(models.ChatRequest{Message: "rain", UILanguage: "hi"})
		req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(correlationHeader, id)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
		got := rec.Header().Get(correlationHeader)
		if got == "" || len(got) > maxCorrelationID {
			t.Fatalf("request %d: correlation id %q", i, got)
		}
	}

	rows, err := audit.Summary(context.Background(), time.Now().Add(-time.Hour))
	if err != nil || len(rows) != 1 || rows[0].Count != int64(len(ids)) {
		t.Fatalf("expected %d audited requests, got %#v %v", len(ids), rows, err)
	}
}

func TestChatValidation(t *testing.T) {
	replier := &mockReplier{reply: "ok"}
	router := newTestRouter(t, Deps{Replier: replier})

	rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "   "})
	if rec.Code != http.StatusBadRequest || !decodeChat(t, rec).Error {
		t.Fatalf("expected 400 error envelope, got %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	bad := httptest.NewRecorder()
	router.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", bad.Code)
	}
	if len(replier.calls) != 0 {
		t.Fatalf("model must not be called for invalid input")
	}
}

func TestChatModelError(t *testing.T) {
	audit := newTestAudit(t)
	router := newTestRouter(t, Deps{Replier: &mockReplier{err: errors.New("quota exceeded")}, Audit: audit})

	rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "hello", UILanguage: "hi"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeChat(t, rec)
	if !resp.Error || resp.Content == nil || !strings.HasPrefix(*resp.Content, "AI Error: ") ||
		!strings.Contains(*resp.Content, "quota exceeded") {
		t.Fatalf("unexpected error envelope %#v", resp)
	}
	rows, _ := audit.Summary(context.Background(), time.Now().Add(-time.Hour))
	if len(rows) != 1 || rows[0].Status != storage.StatusError {
		t.Fatalf("unexpected audit rows %#v", rows)
	}
}

func TestChatBusy(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{reply: "ok"}, Workers: busyRunner{}})
	rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeChat(t, rec)
	if !resp.Error || *resp.Content != busyMessage {
		t.Fatalf("unexpected busy envelope %#v", resp)
	}
}

func TestChatRateLimit(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{reply: "ok"}, RateLimit: 2})
	for i := 0; i < 2; i++ {
		if rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "hi"}); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "hi"})
	if rec.Code != http.StatusTooManyRequests || !decodeChat(t, rec).Error {
		t.Fatalf("expected 429 error envelope, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIndexHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{}})

	rec := doJSONRequest(t, router, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "KisanMitra") {
		t.Fatalf("unexpected banner %d %q", rec.Code, rec.Body.String())
	}
	rec = doJSONRequest(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("unexpected health %d %q", rec.Code, rec.Body.String())
	}
	rec = doJSONRequest(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kisanmitra_requests_total") {
		t.Fatalf("metrics endpoint missing request counter")
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{}, AllowedOrigins: []string{"http://localhost:5173"}})
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q (status %d)", got, rec.Code)
	}
}

func TestTransliterateEndpoint(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{}, Transliterator: mockTransliterator{out: "मिट्टी"}})

	rec := doJSONRequest(t, router, http.MethodGet, "/transliterate?text=mitti&lang=hi", nil)
	var body transliterateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body.Text != "मिट्टी" || !body.Transliterated {
		t.Fatalf("unexpected response %d %#v", rec.Code, body)
	}

	// Already in a native script: returned unchanged.
	rec = doJSONRequest(t, router, http.MethodGet, "/transliterate?text=%E0%A4%AE", nil)
	body = transliterateResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Transliterated || body.Text != "म" {
		t.Fatalf("native text should pass through, got %#v", body)
	}

	rec = doJSONRequest(t, router, http.MethodGet, "/transliterate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without text, got %d", rec.Code)
	}

	failing := newTestRouter(t, Deps{Replier: &mockReplier{}, Transliterator: mockTransliterator{}})
	rec = doJSONRequest(t, failing, http.MethodGet, "/transliterate?text=mitti", nil)
	body = transliterateResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body.Text != "mitti" || body.Transliterated {
		t.Fatalf("failure should fall back to the input, got %d %#v", rec.Code, body)
	}
}

func TestStats(t *testing.T) {
	router := newTestRouter(t, Deps{Replier: &mockReplier{}})
	if rec := doJSONRequest(t, router, http.MethodGet, "/stats", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without audit, got %d", rec.Code)
	}

	router = newTestRouter(t, Deps{Replier: &mockReplier{reply: "ok"}, Audit: newTestAudit(t)})
	doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "hi", UILanguage: "hi"})
	rec := doJSONRequest(t, router, http.MethodGet, "/stats", nil)
	var body struct {
		Requests []storage.LanguageCount `json:"requests"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(body.Requests) != 1 || body.Requests[0].UILanguage != "hi" || body.Requests[0].Count != 1 {
		t.Fatalf("unexpected stats %#v", body.Requests)
	}
}

// The terminal client's completion.Client talks to the real router.
func TestCompletionClientAgainstRouter(t *testing.T) {
	replier := &mockReplier{reply: "Sow after the first rain."}
	srv := httptest.NewServer(newTestRouter(t, Deps{Replier: replier}))
	defer srv.Close()

	store := conversation.NewStore()
	client := completion.NewClient(srv.URL, store)
	turn, err := client.Send(context.Background(), "how to grow cotton", lang.English, lang.English)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Content != "Sow after the first rain." || len(turn.Suggestions) != 4 {
		t.Fatalf("unexpected turn %#v", turn)
	}
	if replier.calls[0] != "how to grow cotton|en|en" {
		t.Fatalf("unexpected call %q", replier.calls[0])
	}

	replier.err = errors.New("boom")
	turn, _ = client.Send(context.Background(), "again", lang.Hindi, lang.English)
	if !strings.Contains(turn.Content, "AI Error: ") || !strings.Contains(turn.Content, "boom") {
		t.Fatalf("expected service diagnostic, got %q", turn.Content)
	}
	if store.Len() != 2 || client.Loading() {
		t.Fatalf("expected exactly one turn per call and released flag")
	}
}
