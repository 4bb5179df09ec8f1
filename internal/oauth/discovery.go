package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// wellKnownPath is the RFC 8414 authorization server metadata path.
const wellKnownPath = "/.well-known/oauth-authorization-server"

// DiscoveryDocument is the subset of RFC 8414 authorization server
// metadata the flow consumes. It is fetched per flow and never persisted.
type DiscoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
}

// Endpoints holds the resolved endpoint URLs for one server.
// RegistrationURL is empty when the server offers no dynamic registration.
type Endpoints struct {
	AuthURL         string
	TokenURL        string
	RegistrationURL string
}

// Resolver determines OAuth endpoints for a server, preferring explicit
// configuration, then the server's well-known metadata, then the
// /oauth/authorize and /oauth/token convention.
//
// Successful discovery documents are cached per base URL for the lifetime
// of the resolver; concurrent fetches for the same base are deduplicated.
type Resolver struct {
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]*DiscoveryDocument
	group singleflight.Group
}

// NewResolver creates a resolver using the given HTTP client. The client's
// timeout bounds the discovery request; callers should keep it short.
func NewResolver(httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DiscoveryTimeout}
	}
	return &Resolver{
		httpClient: httpClient,
		cache:      make(map[string]*DiscoveryDocument),
	}
}

// Discover fetches the well-known metadata document for a server base URL.
// Any failure (timeout, non-200, parse error) yields nil; discovery is
// best-effort and never an error for the caller.
func (r *Resolver) Discover(ctx context.Context, baseURL string) *DiscoveryDocument {
	base := strings.TrimSuffix(baseURL, "/")

	r.mu.RLock()
	doc, ok := r.cache[base]
	r.mu.RUnlock()
	if ok {
		return doc
	}

	result, err, _ := r.group.Do(base, func() (interface{}, error) {
		return r.fetch(ctx, base+wellKnownPath)
	})
	if err != nil {
		slog.Debug("OAuth discovery unavailable, will use fallback endpoints",
			"base_url", base,
			"error", err.Error(),
		)
		return nil
	}

	doc = result.(*DiscoveryDocument)
	r.mu.Lock()
	r.cache[base] = doc
	r.mu.Unlock()

	slog.Debug("discovered OAuth endpoints",
		"base_url", base,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint,
		"registration_endpoint", doc.RegistrationEndpoint,
	)
	return doc
}

// fetch retrieves and parses one metadata document.
func (r *Resolver) fetch(ctx context.Context, metadataURL string) (*DiscoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &doc, nil
}

// Resolve determines the endpoints for a server. Each endpoint is resolved
// independently: an explicit value in cfg always wins, then the discovery
// document, then the fixed convention for the authorization and token
// endpoints. Registration has no convention fallback; an empty
// RegistrationURL means dynamic registration is skipped.
func (r *Resolver) Resolve(ctx context.Context, baseURL string, cfg *Config) Endpoints {
	base := strings.TrimSuffix(baseURL, "/")

	var ep Endpoints
	if cfg != nil {
		ep.AuthURL = cfg.AuthURL
		ep.TokenURL = cfg.TokenURL
	}

	if ep.AuthURL == "" || ep.TokenURL == "" || ep.RegistrationURL == "" {
		if doc := r.Discover(ctx, base); doc != nil {
			if ep.AuthURL == "" {
				ep.AuthURL = doc.AuthorizationEndpoint
			}
			if ep.TokenURL == "" {
				ep.TokenURL = doc.TokenEndpoint
			}
			ep.RegistrationURL = doc.RegistrationEndpoint
		}
	}

	if ep.AuthURL == "" {
		ep.AuthURL = base + "/oauth/authorize"
	}
	if ep.TokenURL == "" {
		ep.TokenURL = base + "/oauth/token"
	}

	return ep
}
