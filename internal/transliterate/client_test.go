package transliterate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kisanmitra/internal/lang"
)

const hindiEnvelope = `["SUCCESS",[["mitti kaise taiyar karen",["मिट्टी कैसे तैयार करें"],[],{"candidate_type":[0]}]]]`

func TestParseEnvelope(t *testing.T) {
	got, err := ParseEnvelope([]byte(hindiEnvelope))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "मिट्टी कैसे तैयार करें" {
		t.Fatalf("unexpected candidate %q", got)
	}
}

func TestParseEnvelopeRejectsBadShapes(t *testing.T) {
	bad := map[string]string{
		"not json":        `SUCCESS`,
		"object":          `{"status":"SUCCESS"}`,
		"failure marker":  `["FAILED_TO_PROCESS",[]]`,
		"marker not text": `[1,[["a",["b"]]]]`,
		"missing segment": `["SUCCESS",[]]`,
		"no candidates":   `["SUCCESS",[["a",[]]]]`,
		"blank candidate": `["SUCCESS",[["a",["  "]]]]`,
		"numeric":         `["SUCCESS",[["a",[7]]]]`,
	}
	for name, body := range bad {
		if _, err := ParseEnvelope([]byte(body)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("%s: expected ErrMalformedEnvelope, got %v", name, err)
		}
	}
}

func TestTransliterateRequestsInputMethod(t *testing.T) {
	queries := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		queries <- map[string]string{"text": q.Get("text"), "itc": q.Get("itc"), "num": q.Get("num")}
		_, _ = w.Write([]byte(hindiEnvelope))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Transliterate(context.Background(), "mitti kaise taiyar karen", lang.Hindi)
	if err != nil {
		t.Fatalf("transliterate: %v", err)
	}
	if got != "मिट्टी कैसे तैयार करें" {
		t.Fatalf("unexpected result %q", got)
	}
	gotQuery := <-queries
	if gotQuery["text"] != "mitti kaise taiyar karen" || gotQuery["itc"] != "hi-t-i0-und" || gotQuery["num"] != "1" {
		t.Fatalf("unexpected query %#v", gotQuery)
	}
}

func TestTransliterateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Transliterate(context.Background(), "namaste", lang.Hindi); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
	if _, err := c.Transliterate(context.Background(), "hello", lang.English); !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatalf("expected ErrUnsupportedTarget, got %v", err)
	}
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.sets++
	return nil
}

func TestTransliterateUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`["SUCCESS",[["pani",["పాని"]]]]`))
	}))
	defer srv.Close()

	cache := &memoryCache{data: map[string]string{}}
	c := NewClient(srv.URL, WithCache(cache, time.Minute))
	for i := 0; i < 3; i++ {
		got, err := c.Transliterate(context.Background(), "pani", lang.Telugu)
		if err != nil {
			t.Fatalf("transliterate: %v", err)
		}
		if got != "పాని" {
			t.Fatalf("unexpected result %q", got)
		}
	}
	if hits.Load() != 1 || cache.sets != 1 {
		t.Fatalf("expected one upstream call and one cache write, got %d/%d", hits.Load(), cache.sets)
	}
}
