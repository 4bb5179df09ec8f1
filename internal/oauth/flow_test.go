package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider is a complete OAuth provider for flow tests: discovery,
// dynamic registration, and the token endpoint, each individually
// switchable. Counters are atomic so handlers can run concurrently with
// assertions.
type fakeProvider struct {
	srv *httptest.Server

	serveRegistration bool
	failRefresh       bool
	expiresIn         int
	refreshToken      string

	discoveryCalls    atomic.Int64
	registrationCalls atomic.Int64
	exchangeCalls     atomic.Int64
	refreshCalls      atomic.Int64

	lastExchange url.Values
	lastRefresh  url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		serveRegistration: true,
		expiresIn:         3600,
		refreshToken:      "refresh-1",
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case wellKnownPath:
		p.discoveryCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"authorization_endpoint": p.srv.URL + "/authorize",
			"token_endpoint":         p.srv.URL + "/token",
			"registration_endpoint":  p.srv.URL + "/register",
		})
	case "/register":
		p.registrationCalls.Add(1)
		if !p.serveRegistration {
			http.Error(w, "registration disabled", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"client_id":     "registered-client",
			"client_secret": "registered-secret",
		})
	case "/token":
		r.ParseForm()
		var accessToken string
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			p.exchangeCalls.Add(1)
			p.lastExchange = r.PostForm
			accessToken = "tok-exchange"
		case "refresh_token":
			p.refreshCalls.Add(1)
			p.lastRefresh = r.PostForm
			if p.failRefresh {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			accessToken = "tok-refresh"
		default:
			http.Error(w, "unsupported_grant_type", http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
		}
		if p.expiresIn > 0 {
			resp["expires_in"] = p.expiresIn
		}
		if p.refreshToken != "" {
			resp["refresh_token"] = p.refreshToken
		}
		json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

// approveInBrowser stands in for the user: it parses the authorization URL
// and immediately hits the redirect URI with a code.
func approveInBrowser(t *testing.T, code string) func(string) error {
	t.Helper()
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		if redirect == "" {
			return fmt.Errorf("authorization URL missing redirect_uri: %s", authURL)
		}
		go func() {
			resp, err := http.Get(redirect + "?code=" + code)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

// denyInBrowser simulates the user declining consent.
func denyInBrowser(t *testing.T) func(string) error {
	t.Helper()
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirect + "?error=access_denied&error_description=User+denied+access")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestFlow_InteractiveAuthorization(t *testing.T) {
	provider := newFakeProvider(t)
	store := tempStore(t)

	var sawAuthURL string
	flow, err := NewFlow(FlowConfig{
		ServerName: "acme",
		ServerURL:  provider.srv.URL,
		OAuth:      &Config{RedirectPort: 18480},
		Store:      store,
		OpenBrowser: approveInBrowser(t, "code-1"),
		OnAuthURL:  func(u string) { sawAuthURL = u },
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-exchange" {
		t.Errorf("token = %q, want tok-exchange", token)
	}

	u, err := url.Parse(sawAuthURL)
	if err != nil {
		t.Fatalf("authorization URL did not parse: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("code_challenge") == "" {
		t.Error("authorization URL missing code_challenge")
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}
	if q.Get("client_id") != "registered-client" {
		t.Errorf("client_id = %q, want the registered client", q.Get("client_id"))
	}

	// The exchange must carry the code, the verifier, and the redirect URI.
	if got := provider.lastExchange.Get("code"); got != "code-1" {
		t.Errorf("exchanged code = %q", got)
	}
	if provider.lastExchange.Get("code_verifier") == "" {
		t.Error("exchange missing code_verifier")
	}
	if got := provider.lastExchange.Get("redirect_uri"); got != "http://localhost:18480/callback" {
		t.Errorf("exchange redirect_uri = %q", got)
	}

	rec, ok := store.Get("acme")
	if !ok {
		t.Fatal("no record persisted")
	}
	if rec.AccessToken != "tok-exchange" || rec.RefreshToken != "refresh-1" {
		t.Errorf("persisted record = %+v", rec)
	}
	if rec.ClientID != "registered-client" || rec.ClientSecret != "registered-secret" {
		t.Errorf("registration credentials not persisted: %+v", rec)
	}
	if rec.ExpiresAt.IsZero() {
		t.Error("expires_at not set from expires_in")
	}
}

func TestFlow_ConventionEndpointsWithoutDiscovery(t *testing.T) {
	// No well-known document: the flow must fall back to <base>/oauth/*
	// and skip registration entirely.
	var tokenPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenPath.Store(r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok-conv",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := tempStore(t)
	flow, err := NewFlow(FlowConfig{
		ServerName:  "plain",
		ServerURL:   srv.URL,
		OAuth:       &Config{RedirectPort: 18481},
		Store:       store,
		OpenBrowser: approveInBrowser(t, "code-2"),
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-conv" {
		t.Errorf("token = %q, want tok-conv", token)
	}
	if got := tokenPath.Load(); got != "/oauth/token" {
		t.Errorf("token endpoint path = %v, want /oauth/token", got)
	}

	rec, _ := store.Get("plain")
	if rec.ClientID != "" {
		t.Errorf("unexpected client registration without a registration endpoint: %+v", rec)
	}
}

func TestFlow_ValidStoredTokenShortCircuits(t *testing.T) {
	store := tempStore(t)
	err := store.Update("acme", func(rec *ServerRecord) {
		rec.AccessToken = "tok-stored"
		rec.ExpiresAt = time.Now().Add(time.Hour)
	})
	if err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	var networkCalls atomic.Int64
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			networkCalls.Add(1)
			return nil, errors.New("no network expected")
		}),
	}

	flow, err := NewFlow(FlowConfig{
		ServerName: "acme",
		ServerURL:  "https://acme.example.com",
		Store:      store,
		HTTPClient: client,
		OpenBrowser: func(string) error {
			t.Error("browser opened for a valid stored token")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-stored" {
		t.Errorf("token = %q, want tok-stored", token)
	}
	if n := networkCalls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFlow_RefreshesExpiredToken(t *testing.T) {
	provider := newFakeProvider(t)
	provider.refreshToken = "" // provider does not rotate the refresh token

	store := tempStore(t)
	err := store.Update("acme", func(rec *ServerRecord) {
		rec.AccessToken = "tok-old"
		rec.RefreshToken = "refresh-old"
		rec.ClientID = "stored-client"
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	})
	if err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	flow, err := NewFlow(FlowConfig{
		ServerName: "acme",
		ServerURL:  provider.srv.URL,
		Store:      store,
		OpenBrowser: func(string) error {
			t.Error("browser opened when a refresh token was available")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	before := time.Now()
	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-refresh" {
		t.Errorf("token = %q, want tok-refresh", token)
	}
	if n := provider.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if got := provider.lastRefresh.Get("refresh_token"); got != "refresh-old" {
		t.Errorf("refresh sent refresh_token = %q", got)
	}
	if got := provider.lastRefresh.Get("client_id"); got != "stored-client" {
		t.Errorf("refresh sent client_id = %q", got)
	}

	rec, _ := store.Get("acme")
	if rec.AccessToken != "tok-refresh" {
		t.Errorf("persisted access token = %q", rec.AccessToken)
	}
	// The old refresh token survives when the response omits a new one.
	if rec.RefreshToken != "refresh-old" {
		t.Errorf("persisted refresh token = %q, want refresh-old", rec.RefreshToken)
	}
	wantExpiry := before.Add(3600 * time.Second)
	if rec.ExpiresAt.Before(wantExpiry.Add(-10*time.Second)) || rec.ExpiresAt.After(wantExpiry.Add(10*time.Second)) {
		t.Errorf("expires_at = %v, want about %v", rec.ExpiresAt, wantExpiry)
	}
}

func TestFlow_RefreshFailureFallsBackToInteractive(t *testing.T) {
	provider := newFakeProvider(t)

	store := tempStore(t)
	err := store.Update("acme", func(rec *ServerRecord) {
		rec.AccessToken = "tok-old"
		rec.RefreshToken = "bogus"
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	})
	if err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	provider.failRefresh = true

	flow, err := NewFlow(FlowConfig{
		ServerName:  "acme",
		ServerURL:   provider.srv.URL,
		OAuth:       &Config{RedirectPort: 18482},
		Store:       store,
		OpenBrowser: approveInBrowser(t, "code-3"),
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-exchange" {
		t.Errorf("token = %q, want tok-exchange from the interactive flow", token)
	}

	// The rejected grant itself carries the typed error.
	_, err = flow.refreshToken(context.Background(), provider.srv.URL+"/token", "bogus", "client-1", "")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("refreshToken error = %v, want ErrRefreshFailed", err)
	}
}

func TestFlow_UserDeniesConsent(t *testing.T) {
	provider := newFakeProvider(t)
	store := tempStore(t)

	flow, err := NewFlow(FlowConfig{
		ServerName:  "acme",
		ServerURL:   provider.srv.URL,
		OAuth:       &Config{RedirectPort: 18483},
		Store:       store,
		OpenBrowser: denyInBrowser(t),
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	_, err = flow.Authorize(context.Background())
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Authorize() error = %v, want *CallbackError", err)
	}
	if cbErr.Code != "access_denied" {
		t.Errorf("Code = %q", cbErr.Code)
	}
	if n := provider.exchangeCalls.Load(); n != 0 {
		t.Errorf("token exchange attempted after denial: %d calls", n)
	}
	if rec, ok := store.Get("acme"); ok && rec.AccessToken != "" {
		t.Errorf("token persisted after denial: %+v", rec)
	}
}

func TestFlow_ExplicitClientSkipsRegistration(t *testing.T) {
	provider := newFakeProvider(t)
	store := tempStore(t)

	flow, err := NewFlow(FlowConfig{
		ServerName: "acme",
		ServerURL:  provider.srv.URL,
		OAuth: &Config{
			ClientID:     "explicit-client",
			RedirectPort: 18484,
		},
		Store:       store,
		OpenBrowser: approveInBrowser(t, "code-4"),
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	if _, err := flow.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if n := provider.registrationCalls.Load(); n != 0 {
		t.Errorf("registration calls = %d, want 0 with an explicit client_id", n)
	}
	if got := provider.lastExchange.Get("client_id"); got != "explicit-client" {
		t.Errorf("exchange client_id = %q", got)
	}
}

func TestFlow_RegistrationFailureIsNonFatal(t *testing.T) {
	provider := newFakeProvider(t)
	provider.serveRegistration = false
	store := tempStore(t)

	flow, err := NewFlow(FlowConfig{
		ServerName:  "acme",
		ServerURL:   provider.srv.URL,
		OAuth:       &Config{RedirectPort: 18485},
		Store:       store,
		OpenBrowser: approveInBrowser(t, "code-5"),
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}

	token, err := flow.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if token != "tok-exchange" {
		t.Errorf("token = %q", token)
	}
	if got := provider.lastExchange.Get("client_id"); got != "" {
		t.Errorf("exchange sent client_id = %q, want none", got)
	}
}

func TestFlow_ScopesOnAuthorizationURL(t *testing.T) {
	provider := newFakeProvider(t)
	store := tempStore(t)

	var sawAuthURL string
	flow, err := NewFlow(FlowConfig{
		ServerName: "acme",
		ServerURL:  provider.srv.URL,
		OAuth: &Config{
			Scopes:       []string{"read", "write"},
			RedirectPort: 18486,
		},
		Store:       store,
		OpenBrowser: approveInBrowser(t, "code-6"),
		OnAuthURL:   func(u string) { sawAuthURL = u },
	})
	if err != nil {
		t.Fatalf("NewFlow() failed: %v", err)
	}
	if _, err := flow.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}

	u, _ := url.Parse(sawAuthURL)
	if got := u.Query().Get("scope"); got != "read write" {
		t.Errorf("scope = %q, want %q", got, "read write")
	}
}

func TestTokenForServer(t *testing.T) {
	t.Run("valid stored token", func(t *testing.T) {
		store := tempStore(t)
		err := store.Update("acme", func(rec *ServerRecord) {
			rec.AccessToken = "tok-stored"
		})
		if err != nil {
			t.Fatalf("seeding store failed: %v", err)
		}

		token, ok := TokenForServer(context.Background(), "acme", "https://acme.example.com", nil, store)
		if !ok {
			t.Fatal("TokenForServer() reported no token")
		}
		if token != "tok-stored" {
			t.Errorf("token = %q", token)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		token, ok := TokenForServer(context.Background(), "", "https://acme.example.com", nil, tempStore(t))
		if ok || token != "" {
			t.Errorf("TokenForServer() = (%q, %v), want absent", token, ok)
		}
	})
}
