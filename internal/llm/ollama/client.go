// Package ollama scores message urgency against an Ollama chat endpoint
// using structured outputs.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bmhenry/classy-slack-notifier/internal/llm"
)

// Client implements llm.Provider against an Ollama server's /api/chat.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the Ollama server at baseURL. Request deadlines
// come from the caller's context, not the client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "ollama" }

// responseFormat constrains the model's reply to the verdict shape.
var responseFormat = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"urgency": map[string]any{"type": "integer"},
		"reason":  map[string]any{"type": "string"},
	},
	"required": []string{"urgency", "reason"},
}

// chatRequest is the payload sent to /api/chat.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   any           `json:"format"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the payload received from /api/chat. Content is itself a
// JSON document thanks to the format constraint.
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

type verdictContent struct {
	Urgency *int    `json:"urgency"`
	Reason  *string `json:"reason"`
}

// Classify sends the message context to the model and parses its structured
// verdict.
func (c *Client) Classify(ctx context.Context, req *llm.Request) (*llm.Verdict, error) {
	body, err := json.Marshal(&chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: llm.UserContent(req)},
		},
		Format: responseFormat,
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var vc verdictContent
	if err := json.Unmarshal([]byte(out.Message.Content), &vc); err != nil {
		return nil, fmt.Errorf("unmarshal verdict: %w", err)
	}
	if vc.Urgency == nil || vc.Reason == nil {
		return nil, fmt.Errorf("verdict missing required fields: %q", out.Message.Content)
	}

	return &llm.Verdict{Urgency: *vc.Urgency, Explanation: *vc.Reason}, nil
}
