// Package oauth implements the OAuth 2.0 authorization-code flow with PKCE
// used to obtain bearer tokens for remote MCP servers.
//
// The flow is browser-based: a short-lived HTTP listener on localhost
// receives the authorization redirect, the code is exchanged for tokens,
// and the result is persisted per server name in a single JSON token file.
//
// # Flow
//
// For a given server the orchestrator tries, in order:
//
//  1. A stored, non-expired access token (no network traffic).
//  2. A refresh grant using the stored refresh token.
//  3. The full interactive flow: endpoint discovery via
//     /.well-known/oauth-authorization-server (with /oauth/authorize and
//     /oauth/token as fallback conventions), RFC 7591 dynamic client
//     registration when the server offers it, browser launch, callback
//     wait, and code exchange.
//
// Discovery, registration, and refresh failures are non-fatal: the flow
// degrades to the next step. Callback timeout, a provider error redirect,
// and a failed code exchange abort the attempt.
//
// # Boundary
//
// Callers that only need a token use TokenForServer, which never returns
// an error: failures are logged and reported as an absent token, which
// callers must treat as "skip this server".
//
//	store := oauth.NewTokenStore("")
//	token, ok := oauth.TokenForServer(ctx, "acme", "https://mcp.acme.example", cfg, store)
//	if ok {
//	    headers["Authorization"] = "Bearer " + token
//	}
//
// The finer-grained Flow type is used by the auth CLI commands, which want
// typed errors and control over user messaging.
package oauth
