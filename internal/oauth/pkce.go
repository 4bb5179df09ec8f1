package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// pkceVerifierBytes is the number of random bytes for the PKCE code verifier.
// 32 bytes provides 256 bits of entropy; base64url-encoded this yields a
// 43-character verifier, the RFC 7636 minimum length.
const pkceVerifierBytes = 32

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) pair.
// A fresh pair is generated per authorization attempt and held only in
// memory; the verifier is sent with the token exchange, never with the
// authorization request.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random secret, base64url-encoded.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier (base64url-encoded).
	// This is the value sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The code verifier is 32 random bytes (256 bits), base64url-encoded
// without padding. The challenge is the S256 (SHA256) hash of the
// verifier's ASCII bytes, encoded the same way.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}
