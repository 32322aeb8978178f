package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bmhenry/classy-slack-notifier/internal/llm"
)

func testRequest() *llm.Request {
	return &llm.Request{
		Model:        "llama3.2:3b",
		SystemPrompt: "rate the message",
		Source:       "incidents",
		Sender:       "carol",
		Body:         "prod is down",
	}
}

func verdictBody(t *testing.T, content string) string {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"message": map[string]string{"role": "assistant", "content": content},
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestClassify_RequestShape(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(verdictBody(t, `{"urgency": 2, "reason": "routine"}`)))
	}))
	defer srv.Close()

	v, err := New(srv.URL).Classify(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if got.Model != "llama3.2:3b" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Stream {
		t.Error("stream must be disabled")
	}
	if got.Format == nil {
		t.Error("format constraint missing")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "rate the message" {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" {
		t.Errorf("second message role = %q, want user", got.Messages[1].Role)
	}
	if !strings.Contains(got.Messages[1].Content, "prod is down") {
		t.Errorf("user message %q missing body", got.Messages[1].Content)
	}

	if v.Urgency != 2 || v.Explanation != "routine" {
		t.Errorf("verdict = %+v", v)
	}
}

func TestClassify_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Classify(context.Background(), testRequest())
	if err == nil {
		t.Fatal("want error on non-200 status")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status code included", err)
	}
}

func TestClassify_MalformedVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "the message looks urgent"},
		{"missing urgency", `{"reason": "x"}`},
		{"missing reason", `{"urgency": 3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(verdictBody(t, tt.content)))
			}))
			defer srv.Close()

			if _, err := New(srv.URL).Classify(context.Background(), testRequest()); err == nil {
				t.Error("want error for malformed verdict content")
			}
		})
	}
}

func TestClassify_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(srv.URL).Classify(ctx, testRequest()); err == nil {
		t.Error("want error when the context is already cancelled")
	}
}
