package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DiscoveryTimeout bounds the well-known metadata request.
	DiscoveryTimeout = 5 * time.Second

	// RequestTimeout bounds registration, token exchange, and refresh
	// requests.
	RequestTimeout = 30 * time.Second

	// maxResponseSize caps response bodies read from the provider.
	maxResponseSize = 1 << 20
)

// Config is the caller-supplied OAuth configuration for one server.
// Explicit values always override discovery. The zero value requests full
// auto-discovery with the default callback port.
type Config struct {
	// AuthURL and TokenURL override endpoint discovery when set.
	AuthURL  string
	TokenURL string

	// ClientID and ClientSecret are pre-shared client credentials. When
	// ClientID is empty the flow tries stored credentials, then dynamic
	// registration.
	ClientID     string
	ClientSecret string

	// Scopes requested during authorization (space-joined on the wire).
	Scopes []string

	// RedirectPort is the local callback listener port (default 8080).
	RedirectPort int
}

// Flow runs the authorization sequence for a single server: stored-token
// check, refresh attempt, then the interactive browser flow. A Flow is
// single-use per Authorize call but safe to call repeatedly; each call
// generates a fresh PKCE pair.
//
// Flows are strictly sequential within a process: the callback listener
// binds one fixed port, so two interactive flows at once would collide.
type Flow struct {
	serverName  string
	serverURL   string
	cfg         *Config
	store       *TokenStore
	resolver    *Resolver
	httpClient  *http.Client
	openBrowser func(string) error
	onAuthURL   func(string)
}

// FlowConfig configures a Flow.
type FlowConfig struct {
	// ServerName keys the token store entry.
	ServerName string

	// ServerURL is the server base URL used for endpoint discovery and
	// convention fallbacks.
	ServerURL string

	// OAuth is the caller-supplied configuration; nil means full
	// auto-discovery.
	OAuth *Config

	// Store persists tokens and client credentials. Required.
	Store *TokenStore

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Resolver is an optional shared endpoint resolver; one is created
	// from HTTPClient when nil.
	Resolver *Resolver

	// OpenBrowser overrides browser launching (used in tests).
	OpenBrowser func(string) error

	// OnAuthURL, when set, receives the authorization URL before the
	// browser is opened so callers can show it to the user.
	OnAuthURL func(string)
}

// NewFlow creates a Flow for one server.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	oauthCfg := cfg.OAuth
	if oauthCfg == nil {
		oauthCfg = &Config{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(httpClient)
	}

	openBrowser := cfg.OpenBrowser
	if openBrowser == nil {
		openBrowser = OpenBrowser
	}

	return &Flow{
		serverName:  cfg.ServerName,
		serverURL:   strings.TrimSuffix(cfg.ServerURL, "/"),
		cfg:         oauthCfg,
		store:       cfg.Store,
		resolver:    resolver,
		httpClient:  httpClient,
		openBrowser: openBrowser,
		onAuthURL:   cfg.OnAuthURL,
	}, nil
}

// Authorize obtains a bearer token for the server. It returns the stored
// token if still valid, refreshes when possible, and otherwise runs the
// interactive browser flow. Errors are typed (see errors.go); callers that
// must never fail use TokenForServer instead.
func (f *Flow) Authorize(ctx context.Context) (string, error) {
	rec, haveRecord := f.store.Get(f.serverName)
	if haveRecord && rec.HasValidAccessToken() {
		slog.Debug("using stored token",
			"server", f.serverName,
		)
		return rec.AccessToken, nil
	}

	ep := f.resolver.Resolve(ctx, f.serverURL, f.cfg)
	clientID, clientSecret := f.clientCredentials(rec)

	if haveRecord && rec.RefreshToken != "" {
		token, err := f.refreshToken(ctx, ep.TokenURL, rec.RefreshToken, clientID, clientSecret)
		if err != nil {
			// Refresh failure never fails the whole flow.
			slog.Warn("token refresh failed, falling back to interactive flow",
				"server", f.serverName,
				"error", err.Error(),
			)
		} else {
			if err := f.persistToken(token); err != nil {
				return "", err
			}
			slog.Info("refreshed access token",
				"server", f.serverName,
			)
			return token.AccessToken, nil
		}
	}

	if clientID == "" && ep.RegistrationURL != "" {
		redirectURI := fmt.Sprintf("http://localhost:%d/callback", f.redirectPort())
		reg, err := registerClient(ctx, f.httpClient, ep.RegistrationURL, redirectURI)
		if err != nil {
			// Many providers accept unauthenticated public clients, so
			// proceed without credentials.
			slog.Warn("dynamic client registration failed, proceeding without client credentials",
				"server", f.serverName,
				"error", err.Error(),
			)
		} else {
			clientID = reg.ClientID
			clientSecret = reg.ClientSecret
			err := f.store.Update(f.serverName, func(r *ServerRecord) {
				r.ClientID = reg.ClientID
				if reg.ClientSecret != "" {
					r.ClientSecret = reg.ClientSecret
				}
			})
			if err != nil {
				return "", err
			}
		}
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return "", err
	}

	callback := NewCallbackServer(f.redirectPort())
	redirectURI, err := callback.Start()
	if err != nil {
		return "", err
	}
	defer callback.Stop()

	authURL, err := buildAuthorizationURL(ep.AuthURL, redirectURI, clientID, f.cfg.Scopes, pkce)
	if err != nil {
		return "", err
	}

	if f.onAuthURL != nil {
		f.onAuthURL(authURL)
	}
	if err := f.openBrowser(authURL); err != nil {
		slog.Warn("failed to open browser, open the authorization URL manually",
			"server", f.serverName,
			"error", err.Error(),
		)
	}

	waitCtx, cancel := context.WithTimeout(ctx, CallbackTimeout)
	defer cancel()

	result, err := callback.WaitForResult(waitCtx)
	if err != nil {
		return "", err
	}
	if result.IsError() {
		return "", &CallbackError{Code: result.Error, Description: result.ErrorDescription}
	}

	token, err := f.exchangeCode(ctx, ep.TokenURL, result.Code, redirectURI, pkce.CodeVerifier, clientID, clientSecret)
	if err != nil {
		return "", err
	}

	if err := f.persistToken(token); err != nil {
		return "", err
	}

	slog.Info("authorization successful",
		"server", f.serverName,
	)
	return token.AccessToken, nil
}

// redirectPort returns the configured callback port or the default.
func (f *Flow) redirectPort() int {
	if f.cfg.RedirectPort != 0 {
		return f.cfg.RedirectPort
	}
	return DefaultCallbackPort
}

// clientCredentials resolves client credentials: explicit configuration
// wins, then credentials from a previous dynamic registration.
func (f *Flow) clientCredentials(rec *ServerRecord) (clientID, clientSecret string) {
	if f.cfg.ClientID != "" {
		return f.cfg.ClientID, f.cfg.ClientSecret
	}
	if rec != nil && rec.ClientID != "" {
		return rec.ClientID, rec.ClientSecret
	}
	return "", ""
}

// tokenResponse is the token endpoint response for both the code exchange
// and the refresh grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// exchangeCode exchanges an authorization code for tokens.
func (f *Flow) exchangeCode(ctx context.Context, tokenURL, code, redirectURI, codeVerifier, clientID, clientSecret string) (*tokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	if clientID != "" {
		data.Set("client_id", clientID)
	}
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	token, err := f.doTokenRequest(ctx, tokenURL, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// refreshToken obtains a new access token using a refresh token.
func (f *Flow) refreshToken(ctx context.Context, tokenURL, refreshToken, clientID, clientSecret string) (*tokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if clientID != "" {
		data.Set("client_id", clientID)
	}
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	token, err := f.doTokenRequest(ctx, tokenURL, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return token, nil
}

// doTokenRequest performs a form-encoded token endpoint request.
func (f *Flow) doTokenRequest(ctx context.Context, tokenURL string, data url.Values) (*tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &token, nil
}

// persistToken merges a token response into the server's stored record.
// Client credentials already in the record are preserved; expires_at is
// recomputed from expires_in, or cleared when the provider reported no
// lifetime.
func (f *Flow) persistToken(token *tokenResponse) error {
	now := time.Now()
	return f.store.Update(f.serverName, func(rec *ServerRecord) {
		rec.AccessToken = token.AccessToken
		if token.TokenType != "" {
			rec.TokenType = token.TokenType
		}
		if token.RefreshToken != "" {
			rec.RefreshToken = token.RefreshToken
		}
		if token.ExpiresIn > 0 {
			rec.ExpiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second)
		} else {
			rec.ExpiresAt = time.Time{}
		}
	})
}

// buildAuthorizationURL constructs the authorization request URL.
// The PKCE challenge rides along; the verifier does not.
func buildAuthorizationURL(authEndpoint, redirectURI, clientID string, scopes []string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("code_challenge", pkce.CodeChallenge)
	query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	if clientID != "" {
		query.Set("client_id", clientID)
	}
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// TokenForServer is the boundary used by the tool-discovery layer: it runs
// the full flow and converts every failure into an absent token. Callers
// must treat an absent token as "skip this server".
func TokenForServer(ctx context.Context, serverName, serverURL string, cfg *Config, store *TokenStore) (string, bool) {
	flow, err := NewFlow(FlowConfig{
		ServerName: serverName,
		ServerURL:  serverURL,
		OAuth:      cfg,
		Store:      store,
	})
	if err != nil {
		slog.Warn("invalid OAuth flow configuration",
			"server", serverName,
			"error", err.Error(),
		)
		return "", false
	}

	token, err := flow.Authorize(ctx)
	if err != nil {
		slog.Warn("authorization failed, server will be skipped",
			"server", serverName,
			"error", err.Error(),
		)
		return "", false
	}
	return token, true
}
