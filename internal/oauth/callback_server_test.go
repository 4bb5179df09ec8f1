package oauth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startCallbackServer(t *testing.T, port int) *CallbackServer {
	t.Helper()
	srv := NewCallbackServer(port)
	if _, err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func TestCallbackServer_Code(t *testing.T) {
	srv := startCallbackServer(t, 18473)

	resp, err := http.Get(srv.RedirectURI() + "?code=abc123")
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Authentication Successful") {
		t.Errorf("success page missing, got: %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	if err != nil {
		t.Fatalf("WaitForResult() failed: %v", err)
	}
	if result.Code != "abc123" {
		t.Errorf("Code = %q, want abc123", result.Code)
	}
	if result.IsError() {
		t.Error("result unexpectedly marked as error")
	}
}

func TestCallbackServer_Error(t *testing.T) {
	srv := startCallbackServer(t, 18474)

	resp, err := http.Get(srv.RedirectURI() + "?error=access_denied&error_description=User+declined")
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("error page missing error code, got: %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	if err != nil {
		t.Fatalf("WaitForResult() failed: %v", err)
	}
	if !result.IsError() {
		t.Fatal("result not marked as error")
	}
	if result.Error != "access_denied" {
		t.Errorf("Error = %q", result.Error)
	}
	if result.ErrorDescription != "User declined" {
		t.Errorf("ErrorDescription = %q", result.ErrorDescription)
	}
}

func TestCallbackServer_InvalidRequests(t *testing.T) {
	_ = startCallbackServer(t, 18475)

	for _, path := range []string{"/callback", "/callback?state=only", "/other", "/"} {
		resp, err := http.Get("http://localhost:18475" + path)
		if err != nil {
			t.Fatalf("request to %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestCallbackServer_FirstResultWins(t *testing.T) {
	srv := startCallbackServer(t, 18476)

	for _, code := range []string{"first", "second"} {
		resp, err := http.Get(srv.RedirectURI() + "?code=" + code)
		if err != nil {
			t.Fatalf("callback request failed: %v", err)
		}
		resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := srv.WaitForResult(ctx)
	if err != nil {
		t.Fatalf("WaitForResult() failed: %v", err)
	}
	if result.Code != "first" {
		t.Errorf("Code = %q, want the first delivery", result.Code)
	}
}

func TestCallbackServer_Timeout(t *testing.T) {
	srv := startCallbackServer(t, 18477)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := srv.WaitForResult(ctx)
	if err != ErrCallbackTimeout {
		t.Errorf("WaitForResult() error = %v, want ErrCallbackTimeout", err)
	}
}

func TestCallbackServer_PortReleasedAfterStop(t *testing.T) {
	srv := NewCallbackServer(18478)
	if _, err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	srv.Stop()

	// The port must be immediately reusable for the next attempt.
	again := NewCallbackServer(18478)
	if _, err := again.Start(); err != nil {
		t.Fatalf("port not released after Stop(): %v", err)
	}
	again.Stop()
}

func TestCallbackServer_DefaultPort(t *testing.T) {
	srv := NewCallbackServer(0)
	if srv.Port() != DefaultCallbackPort {
		t.Errorf("Port() = %d, want %d", srv.Port(), DefaultCallbackPort)
	}
	if srv.RedirectURI() != "http://localhost:8080/callback" {
		t.Errorf("RedirectURI() = %q", srv.RedirectURI())
	}
}
