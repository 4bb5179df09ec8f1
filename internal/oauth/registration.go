package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// clientName is the client_name sent during dynamic client registration.
const clientName = "mcpchat"

// registrationRequest is the RFC 7591 registration request body. The flow
// registers as a public client: PKCE secures the code exchange, so no
// token endpoint authentication is requested.
type registrationRequest struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// registrationResponse is the subset of the RFC 7591 response the flow
// consumes.
type registrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// registerClient performs RFC 7591 dynamic client registration against the
// given endpoint and returns the issued credentials.
func registerClient(ctx context.Context, httpClient *http.Client, registrationURL, redirectURI string) (*registrationResponse, error) {
	reqBody := registrationRequest{
		ClientName:              clientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRegistrationFailed, err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRegistrationFailed, resp.StatusCode, string(body))
	}

	var regResp registrationResponse
	if err := json.Unmarshal(body, &regResp); err != nil {
		return nil, fmt.Errorf("%w: unparseable response: %v", ErrRegistrationFailed, err)
	}
	if regResp.ClientID == "" {
		return nil, fmt.Errorf("%w: response missing client_id", ErrRegistrationFailed)
	}

	slog.Info("registered OAuth client dynamically",
		"registration_url", registrationURL,
		"client_id", regResp.ClientID,
		"has_client_secret", regResp.ClientSecret != "",
	)

	return &regResp, nil
}
