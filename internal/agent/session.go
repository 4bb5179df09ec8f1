package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/oauth2"

	"mcpchat/internal/config"
	"mcpchat/internal/llm"
	"mcpchat/internal/oauth"
)

// AggregatedTool is one tool of one server, exposed to the model under a
// server-qualified name so tools from different servers never collide.
type AggregatedTool struct {
	Server        string
	QualifiedName string
	Tool          mcp.Tool
}

// Session is the set of connected MCP servers for one chat run.
type Session struct {
	id      string
	logger  *Logger
	clients map[string]*Client
	tools   []AggregatedTool
	byName  map[string]AggregatedTool
}

// Connect obtains a token for every configured server through the OAuth
// boundary, connects, and aggregates the tools. Servers that fail to
// authorize or connect are skipped with a warning; Connect only fails when
// servers were configured and none could be reached.
func Connect(ctx context.Context, cfg *config.Config, store *oauth.TokenStore, logger *Logger) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		logger:  logger,
		clients: make(map[string]*Client),
		byName:  make(map[string]AggregatedTool),
	}

	for _, srv := range cfg.Servers {
		token, ok := oauth.TokenForServer(ctx, srv.Name, srv.URL, flowConfig(srv.OAuth), store)
		if !ok {
			logger.Warn("Skipping %s: no token obtained", srv.Name)
			continue
		}

		// The persisted record carries the token type for the header.
		bearer := &oauth2.Token{AccessToken: token}
		if rec, found := store.Get(srv.Name); found {
			bearer = rec.ToOAuth2Token()
		}

		client := NewClient(srv.Name, srv.URL, bearer, logger)
		if err := client.Connect(ctx); err != nil {
			logger.Warn("Skipping %s: %v", srv.Name, err)
			continue
		}

		tools, err := client.ListTools(ctx)
		if err != nil {
			logger.Warn("Skipping %s: %v", srv.Name, err)
			client.Close()
			continue
		}

		s.clients[srv.Name] = client
		for _, tool := range tools {
			agg := AggregatedTool{
				Server:        srv.Name,
				QualifiedName: fmt.Sprintf("%s_%s", srv.Name, tool.Name),
				Tool:          tool,
			}
			s.tools = append(s.tools, agg)
			s.byName[agg.QualifiedName] = agg
		}
		logger.Success("Connected to %s (%d tools)", srv.Name, len(tools))
	}

	sort.Slice(s.tools, func(i, j int) bool {
		return s.tools[i].QualifiedName < s.tools[j].QualifiedName
	})

	if len(cfg.Servers) > 0 && len(s.clients) == 0 {
		return nil, fmt.Errorf("no MCP servers available")
	}
	return s, nil
}

// flowConfig maps per-server YAML OAuth settings onto the flow configuration.
func flowConfig(cfg *config.OAuthConfig) *oauth.Config {
	if cfg == nil {
		return nil
	}
	return &oauth.Config{
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		RedirectPort: cfg.RedirectPort,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Tools returns all aggregated tools sorted by qualified name.
func (s *Session) Tools() []AggregatedTool {
	return s.tools
}

// Servers returns the names of the connected servers.
func (s *Session) Servers() []string {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LLMTools converts the aggregated tools into provider tool definitions.
func (s *Session) LLMTools() []llm.Tool {
	tools := make([]llm.Tool, 0, len(s.tools))
	for _, agg := range s.tools {
		schema, err := json.Marshal(agg.Tool.InputSchema)
		if err != nil {
			s.logger.Debug("Skipping schema for %s: %v", agg.QualifiedName, err)
			schema = nil
		}
		tools = append(tools, llm.Tool{
			Name:        agg.QualifiedName,
			Description: agg.Tool.Description,
			InputSchema: schema,
		})
	}
	return tools
}

// CallTool dispatches a qualified tool call to the owning server and
// returns the text result.
func (s *Session) CallTool(ctx context.Context, qualifiedName string, args json.RawMessage) (string, error) {
	agg, ok := s.byName[qualifiedName]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", qualifiedName)
	}

	var decoded map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", qualifiedName, err)
		}
	}

	return s.clients[agg.Server].CallToolText(ctx, agg.Tool.Name, decoded)
}

// Close closes every server connection.
func (s *Session) Close() {
	for _, client := range s.clients {
		client.Close()
	}
}
