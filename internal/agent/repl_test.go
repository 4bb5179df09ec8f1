package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/briandowns/spinner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/llm"
)

// scriptedProvider replays canned completions and records the requests it
// received.
type scriptedProvider struct {
	completions []*llm.Completion
	requests    []*llm.Request
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	p.requests = append(p.requests, req)
	if len(p.completions) == 0 {
		return &llm.Completion{Content: "out of script"}, nil
	}
	next := p.completions[0]
	p.completions = p.completions[1:]
	return next, nil
}

// scriptedSession serves one fixed tool and records calls.
type scriptedSession struct {
	calls []string
}

func (s *scriptedSession) LLMTools() []llm.Tool {
	return []llm.Tool{{Name: "alpha_echo", Description: "Echo"}}
}

func (s *scriptedSession) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	s.calls = append(s.calls, name)
	return "echo: hi", nil
}

func newTestREPL(provider llm.Provider, session toolSession, out io.Writer) *REPL {
	logger := NewDevNullLogger()
	logger.SetWriter(out)
	return &REPL{
		session:  session,
		provider: provider,
		logger:   logger,
		spin:     spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(io.Discard)),
		messages: []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

func TestREPL_ChatTurn_PlainAnswer(t *testing.T) {
	provider := &scriptedProvider{completions: []*llm.Completion{
		{Content: "Hello there."},
	}}
	var out bytes.Buffer
	r := newTestREPL(provider, &scriptedSession{}, &out)

	require.NoError(t, r.chatTurn(context.Background(), "hi"))
	assert.Contains(t, out.String(), "Hello there.")

	// system, user, assistant
	require.Len(t, r.messages, 3)
	assert.Equal(t, llm.RoleAssistant, r.messages[2].Role)
}

func TestREPL_ChatTurn_ToolLoop(t *testing.T) {
	provider := &scriptedProvider{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "alpha_echo",
			Arguments: json.RawMessage(`{"text":"hi"}`),
		}}},
		{Content: "The tool said: echo: hi"},
	}}
	session := &scriptedSession{}
	var out bytes.Buffer
	r := newTestREPL(provider, session, &out)

	require.NoError(t, r.chatTurn(context.Background(), "use the tool"))

	assert.Equal(t, []string{"alpha_echo"}, session.calls)
	assert.Contains(t, out.String(), "The tool said: echo: hi")

	// The second request must carry the assistant tool call and its result.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Messages
	require.Len(t, second, 4) // system, user, assistant (tool call), tool result
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	require.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, second[3].Role)
	assert.Equal(t, "call_1", second[3].ToolCallID)
	assert.Equal(t, "echo: hi", second[3].Content)

	// Tools are offered on every round.
	for _, req := range provider.requests {
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "alpha_echo", req.Tools[0].Name)
	}
}

func TestREPL_ChatTurn_RoundLimit(t *testing.T) {
	// A provider that always calls a tool must eventually be cut off.
	completions := make([]*llm.Completion, maxToolRounds+1)
	for i := range completions {
		completions[i] = &llm.Completion{ToolCalls: []llm.ToolCall{{
			ID:   "call_x",
			Name: "alpha_echo",
		}}}
	}
	provider := &scriptedProvider{completions: completions}
	r := newTestREPL(provider, &scriptedSession{}, io.Discard)

	err := r.chatTurn(context.Background(), "loop forever")
	require.Error(t, err)
	assert.Len(t, provider.requests, maxToolRounds)
}

func TestREPL_HandleCommand(t *testing.T) {
	var out bytes.Buffer
	r := newTestREPL(&scriptedProvider{}, &scriptedSession{}, &out)
	r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: "hi"})

	assert.True(t, r.handleCommand("/quit"))
	assert.True(t, r.handleCommand("/exit"))

	assert.False(t, r.handleCommand("/tools"))
	assert.Contains(t, out.String(), "alpha_echo")

	assert.False(t, r.handleCommand("/reset"))
	assert.Len(t, r.messages, 1)

	out.Reset()
	assert.False(t, r.handleCommand("/bogus"))
	assert.Contains(t, out.String(), "Unknown command")
}
