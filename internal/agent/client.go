package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/oauth2"
)

const clientVersion = "1.0.0"

// Client is a connection to one remote MCP server over streamable HTTP.
type Client struct {
	name     string
	endpoint string
	token    *oauth2.Token
	logger   *Logger

	client    client.MCPClient
	toolCache []mcp.Tool
	mu        sync.RWMutex
	timeout   time.Duration
}

// NewClient creates a client for the named server. token carries the
// access token and token type for the Authorization header; it may be nil
// for servers that accept unauthenticated requests.
func NewClient(name, endpoint string, token *oauth2.Token, logger *Logger) *Client {
	return &Client{
		name:     name,
		endpoint: endpoint,
		token:    token,
		logger:   logger,
		timeout:  30 * time.Second,
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Connect establishes the transport and performs the protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	var opts []transport.StreamableHTTPCOption
	if c.token != nil && c.token.AccessToken != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": c.token.Type() + " " + c.token.AccessToken,
		}))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.endpoint, opts...)
	if err != nil {
		return fmt.Errorf("failed to create streamable-http client for %s: %w", c.name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start streamable-http client for %s: %w", c.name, err)
	}

	c.client = mcpClient

	if err := c.initialize(ctx); err != nil {
		c.client.Close()
		c.client = nil
		return fmt.Errorf("initialization failed for %s: %w", c.name, err)
	}

	return nil
}

// initialize performs the MCP protocol handshake.
func (c *Client) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "mcpchat",
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.Initialize(timeoutCtx, req)
	if err != nil {
		return err
	}

	c.logger.Debug("Connected to %s (server: %s %s)",
		c.name, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}

// ListTools fetches the server's tools and refreshes the cache.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.ListTools(timeoutCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tool listing failed for %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.toolCache = result.Tools
	c.mu.Unlock()

	return result.Tools, nil
}

// Tools returns the cached tool list from the last ListTools call.
func (c *Client) Tools() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.toolCache
}

// CallTool executes a tool and returns the raw result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	return result, nil
}

// CallToolText executes a tool and returns the joined text content. A
// result flagged as an error comes back as a Go error carrying the text.
func (c *Client) CallToolText(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}

	var texts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if result.IsError {
		return "", fmt.Errorf("tool error: %s", joined)
	}
	return joined, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}
