package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama speaks the local /api/chat endpoint with streaming disabled.
// No API key is involved.
type Ollama struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates an Ollama provider.
func NewOllama(model, baseURL string) (*Ollama, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &Ollama{
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// Chat sends the conversation to /api/chat. Ollama does not assign tool
// call IDs, so synthetic ones are generated to keep the loop uniform.
func (o *Ollama) Chat(ctx context.Context, req *Request) (*Completion, error) {
	body := ollamaRequest{
		Model:  o.model,
		Stream: false,
	}

	for _, m := range req.Messages {
		msg := ollamaMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		if m.Role == RoleTool {
			msg.ToolName = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			var call ollamaToolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		body.Messages = append(body.Messages, msg)
	}

	for _, t := range req.Tools {
		tool := openAITool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.InputSchema
		body.Tools = append(body.Tools, tool)
	}

	var resp ollamaResponse
	if err := doJSON(ctx, o.httpClient, o.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	completion := &Completion{Content: resp.Message.Content}
	for i, tc := range resp.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return completion, nil
}
