package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"

	"mcpchat/internal/llm"
)

// maxToolRounds caps the tool-call loop per user turn so a model stuck in
// a loop cannot spin forever.
const maxToolRounds = 10

const systemPrompt = "You are mcpchat, a terminal assistant with access to " +
	"tools from connected MCP servers. Use tools when they help answer the " +
	"user; otherwise answer directly."

// toolSession is the slice of Session the REPL needs. Narrowed to an
// interface so the chat loop can be tested against a scripted session.
type toolSession interface {
	LLMTools() []llm.Tool
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// REPL is the interactive chat loop.
type REPL struct {
	session  toolSession
	provider llm.Provider
	logger   *Logger
	rl       *readline.Instance
	spin     *spinner.Spinner
	messages []llm.Message
}

// NewREPL creates the chat loop for a connected session.
func NewREPL(session *Session, provider llm.Provider, logger *Logger) (*REPL, error) {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".mcpchat_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mcpchat> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " thinking..."

	return &REPL{
		session:  session,
		provider: provider,
		logger:   logger,
		rl:       rl,
		spin:     s,
		messages: []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}, nil
}

// Run reads lines until EOF or /quit. Ctrl+C clears the current line;
// a second Ctrl+C on an empty line exits.
func (r *REPL) Run(ctx context.Context) error {
	defer r.rl.Close()

	r.logger.Info("Chatting with %s (%s). Type /help for commands.", r.provider.Model(), r.provider.Name())

	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if r.handleCommand(line) {
				return nil
			}
			continue
		}

		if err := r.chatTurn(ctx, line); err != nil {
			r.logger.Error("%v", err)
		}
	}
}

// handleCommand runs a slash command; it reports whether the REPL should
// exit.
func (r *REPL) handleCommand(line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/help":
		r.logger.OutputLine("Commands:")
		r.logger.OutputLine("  /tools   list available tools")
		r.logger.OutputLine("  /reset   clear the conversation")
		r.logger.OutputLine("  /quit    exit")
	case "/tools":
		tools := r.session.LLMTools()
		if len(tools) == 0 {
			r.logger.OutputLine("No tools available.")
			break
		}
		for _, tool := range tools {
			r.logger.OutputLine("  %s - %s", tool.Name, tool.Description)
		}
	case "/reset":
		r.messages = r.messages[:1]
		r.logger.OutputLine("Conversation cleared.")
	default:
		r.logger.OutputLine("Unknown command %s (try /help)", line)
	}
	return false
}

// chatTurn sends the user line to the provider and resolves any tool calls
// until the model returns a plain answer.
func (r *REPL) chatTurn(ctx context.Context, input string) error {
	r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: input})
	tools := r.session.LLMTools()

	for round := 0; round < maxToolRounds; round++ {
		r.spin.Start()
		completion, err := r.provider.Chat(ctx, &llm.Request{
			Messages: r.messages,
			Tools:    tools,
		})
		r.spin.Stop()
		if err != nil {
			return err
		}

		if len(completion.ToolCalls) == 0 {
			r.messages = append(r.messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: completion.Content,
			})
			r.logger.OutputLine("%s", completion.Content)
			return nil
		}

		r.messages = append(r.messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			r.logger.Debug("Calling %s(%s)", call.Name, string(call.Arguments))
			result, err := r.session.CallTool(ctx, call.Name, call.Arguments)
			if err != nil {
				// The model sees the failure and can recover or explain.
				result = fmt.Sprintf("error: %v", err)
			}
			r.messages = append(r.messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	return errors.New("tool-call limit reached without a final answer")
}
