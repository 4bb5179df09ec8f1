package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultStorePath is the default token storage file, relative to the
// working directory.
const DefaultStorePath = ".mcpchat_tokens.json"

// tokenExpiryMargin is the margin applied when checking token validity.
// Tokens expiring within the margin are treated as expired to account for
// clock skew and in-flight request latency.
const tokenExpiryMargin = 30 * time.Second

// ServerRecord holds the stored OAuth state for one server name.
//
// A record carrying only client credentials (no access token) represents a
// registered-but-not-yet-authorized client; HasValidAccessToken reports
// false for it.
type ServerRecord struct {
	// AccessToken is the bearer token presented to the server.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is used to obtain new access tokens without user
	// interaction (if the provider issued one).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt is when the access token expires. Zero means the provider
	// did not report a lifetime; such tokens are treated as non-expiring.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// ClientID and ClientSecret are the dynamically registered client
	// credentials for this server, kept across re-authorizations.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// HasValidAccessToken reports whether the record holds an access token that
// is not expired (with a safety margin for clock skew). A token expiring
// exactly now counts as expired.
func (r *ServerRecord) HasValidAccessToken() bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	if r.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(tokenExpiryMargin).Before(r.ExpiresAt)
}

// ToOAuth2Token converts the record to an oauth2.Token for use with
// transports that consume golang.org/x/oauth2 token sources.
func (r *ServerRecord) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.ExpiresAt,
	}
}

// TokenStore persists ServerRecords in a single JSON file mapping server
// name to record. The file is rewritten with 0600 permissions after every
// update. An unparseable file is treated as an empty store and overwritten
// on the next successful write.
//
// Reads and writes are serialized within the process; concurrent processes
// sharing one token file must serialize externally.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a token store backed by the given file path.
// An empty path selects DefaultStorePath.
func NewTokenStore(path string) *TokenStore {
	if path == "" {
		path = DefaultStorePath
	}
	return &TokenStore{path: path}
}

// Path returns the token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Get returns the stored record for a server name, or false when none exists.
func (s *TokenStore) Get(name string) (*ServerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	rec, ok := records[name]
	if !ok {
		return nil, false
	}
	return rec, true
}

// Update applies mutate to the record for the given server name (creating
// an empty record first if none exists) and writes the store through to
// disk. Existing fields the mutation does not touch are preserved, so
// registration results and token results can be merged independently.
func (s *TokenStore) Update(name string, mutate func(*ServerRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	rec, ok := records[name]
	if !ok {
		rec = &ServerRecord{}
		records[name] = rec
	}
	mutate(rec)

	return s.save(records)
}

// Delete removes the record for a server name. Deleting an absent record
// is not an error.
func (s *TokenStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	if _, ok := records[name]; !ok {
		return nil
	}
	delete(records, name)
	return s.save(records)
}

// Names returns the server names present in the store, sorted.
func (s *TokenStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// load reads the store file. Requires s.mu held.
func (s *TokenStore) load() map[string]*ServerRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read token store, treating as empty",
				"path", s.path,
				"error", err.Error(),
			)
		}
		return make(map[string]*ServerRecord)
	}

	var records map[string]*ServerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("token store is corrupt, treating as empty",
			"path", s.path,
			"error", err.Error(),
		)
		return make(map[string]*ServerRecord)
	}
	if records == nil {
		records = make(map[string]*ServerRecord)
	}
	return records
}

// save writes the store file with owner-only permissions. Requires s.mu held.
func (s *TokenStore) save(records map[string]*ServerRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token store: %w", err)
	}

	// WriteFile only applies the mode on create; restrict pre-existing files too.
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("failed to restrict token store permissions: %w", err)
	}

	return nil
}
