package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

func chatCompletionBody(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(raw)
}

func newTestSummaryProvider(t *testing.T, handler http.HandlerFunc) SummaryProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	p, err := NewSummaryProvider(log)
	if err != nil {
		t.Fatalf("init summary provider: %v", err)
	}
	return p
}

func TestGenerateDebriefParsesAndOrdersSections(t *testing.T) {
	content := `{"summary":"Team aligned on launch.","sections":[` +
		`{"title":"Risks","content":"none","order_index":2},` +
		`{"title":"Decisions","content":"launch tuesday","order_index":0},` +
		`{"title":"Actions","content":"update runbook","order_index":1}]}`
	p := newTestSummaryProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody(content)))
	})

	result, err := p.GenerateDebrief(context.Background(), "we talked about launch", "meeting", "weekly sync")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Text != "Team aligned on launch." {
		t.Fatalf("unexpected summary %q", result.Text)
	}
	if len(result.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(result.Sections))
	}
	if result.Sections[0].Title != "Decisions" || result.Sections[2].Title != "Risks" {
		t.Fatalf("sections not ordered by order_index: %v", result.Sections)
	}
}

func TestGenerateDebriefStripsCodeFences(t *testing.T) {
	content := "```json\n{\"summary\":\"ok\",\"sections\":[]}\n```"
	p := newTestSummaryProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatCompletionBody(content)))
	})

	result, err := p.GenerateDebrief(context.Background(), "hello", "general", "t")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("unexpected summary %q", result.Text)
	}
}

func TestGenerateDebriefRejectsSchemaViolations(t *testing.T) {
	// "summary" missing entirely.
	content := `{"sections":[{"title":"x","content":"y","order_index":0}]}`
	p := newTestSummaryProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatCompletionBody(content)))
	})

	_, err := p.GenerateDebrief(context.Background(), "hello", "general", "t")
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema validation error, got %v", err)
	}
}

func TestGenerateDebriefRejectsEmptyTranscript(t *testing.T) {
	p := newTestSummaryProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("provider must not be called for empty transcript")
	})
	if _, err := p.GenerateDebrief(context.Background(), "   ", "general", "t"); err == nil {
		t.Fatalf("expected error for empty transcript")
	}
}

func TestGenerateDebriefSurfacesProviderErrors(t *testing.T) {
	p := newTestSummaryProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})
	_, err := p.GenerateDebrief(context.Background(), "hello", "general", "t")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
