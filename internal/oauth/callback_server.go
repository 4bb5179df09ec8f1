package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultCallbackPort is the default port for the local OAuth callback
// listener.
const DefaultCallbackPort = 8080

// CallbackTimeout is how long the flow waits for the authorization
// redirect before giving up.
const CallbackTimeout = 300 * time.Second

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackResult is the outcome of one authorization redirect: either an
// authorization code or a provider error.
type CallbackResult struct {
	// Code is the authorization code from the OAuth provider.
	Code string

	// Error is the error code if the authorization failed.
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// IsError returns true if the callback result represents an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a single-purpose local HTTP listener that captures one
// OAuth authorization redirect on /callback and then stops. It is closed
// by the orchestrator (via Stop or the wait context), never by itself.
type CallbackServer struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server on the specified port.
// A zero port selects DefaultCallbackPort.
func NewCallbackServer(port int) *CallbackServer {
	if port == 0 {
		port = DefaultCallbackPort
	}
	return &CallbackServer{
		port:     port,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start binds the loopback listener and begins serving. It must be called
// before the browser is opened so the redirect cannot race the bind.
// Returns the redirect URI to use in the authorization request.
func (s *CallbackServer) Start() (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/", s.handleInvalid)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Tokens and codes transit this server; keep them out of logs.
		ErrorLog: log.New(io.Discard, "", 0),
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	return s.RedirectURI(), nil
}

// WaitForResult blocks until a callback result arrives, the server fails,
// or the context is done. A context deadline surfaces as ErrCallbackTimeout.
func (s *CallbackServer) WaitForResult(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrCallbackTimeout
		}
		return nil, ctx.Err()
	}
}

// handleCallback handles GET /callback.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Get("code") != "":
		s.deliver(&CallbackResult{Code: query.Get("code")})
		s.renderSuccess(w)

	case query.Get("error") != "":
		result := &CallbackResult{
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}
		s.deliver(result)
		s.renderError(w, result)

	default:
		s.handleInvalid(w, r)
	}
}

// handleInvalid answers anything that is not a well-formed callback.
func (s *CallbackServer) handleInvalid(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprint(w, "Invalid callback request")
}

// deliver publishes the result exactly once; later callbacks are dropped.
func (s *CallbackServer) deliver(result *CallbackResult) {
	s.once.Do(func() {
		s.resultCh <- result
	})
}

func (s *CallbackServer) renderSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, callbackSuccessHTML)
}

func (s *CallbackServer) renderError(w http.ResponseWriter, result *CallbackResult) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadRequest)

	tmpl := template.Must(template.New("error").Parse(callbackErrorHTML))
	data := map[string]string{
		"Error":       result.Error,
		"Description": result.ErrorDescription,
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Stop shuts the server down and releases the port.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// RedirectURI returns the redirect URI the provider should send the user
// back to.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", s.port)
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	return s.port
}
