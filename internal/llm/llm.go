// Package llm implements chat-completion clients for the supported
// providers: OpenAI (and OpenAI-compatible endpoints such as LM Studio),
// Anthropic, and Ollama. All providers speak the same neutral Request /
// Completion types so the chat loop never sees provider wire formats.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// requestTimeout bounds a single completion request.
const requestTimeout = 60 * time.Second

// Message is one turn of the conversation.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tool
	// invocations.
	ToolCalls []ToolCall

	// ToolCallID and ToolName identify the call a tool-result message
	// answers.
	ToolCallID string
	ToolName   string
}

// Tool describes a callable tool offered to the model. InputSchema is a
// JSON Schema object.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request is a provider-neutral chat request.
type Request struct {
	Messages []Message
	Tools    []Tool
}

// Completion is the model's reply: text, tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, req *Request) (*Completion, error)
}

// New creates the provider selected by name. baseURL overrides the
// provider's default endpoint; API keys come from the environment.
func New(provider, model, baseURL string) (Provider, error) {
	switch provider {
	case "openai":
		return NewOpenAI(model, baseURL)
	case "anthropic":
		return NewAnthropic(model, baseURL)
	case "ollama":
		return NewOllama(model, baseURL)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want openai, anthropic, or ollama)", provider)
	}
}

// doJSON posts a JSON body and decodes a JSON response, failing on
// non-2xx statuses with the response body in the error.
func doJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
