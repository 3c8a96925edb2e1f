package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuth user credentials are the alternative to a service account for
// spreadsheets owned by a personal account. The token is produced once by
// cmd/txinsight-oauth-init.
const (
	envOAuthClientJSON = "GOOGLE_OAUTH_CLIENT_JSON"
	envOAuthClientFile = "GOOGLE_OAUTH_CLIENT_FILE"
	envOAuthTokenJSON  = "GOOGLE_OAUTH_TOKEN_JSON"
	envOAuthTokenFile  = "GOOGLE_OAUTH_TOKEN_FILE"

	DefaultTokenFile = "token.json"
)

var (
	ErrNoOAuthClient = errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	ErrNoOAuthToken  = errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE, or run txinsight-oauth-init)")
)

// oauthConfigured reports whether an OAuth client is configured, which
// selects user credentials over a service account.
func oauthConfigured() bool {
	return strings.TrimSpace(os.Getenv(envOAuthClientJSON)) != "" ||
		strings.TrimSpace(os.Getenv(envOAuthClientFile)) != ""
}

// OAuthConfigFromEnv builds the OAuth client config for the Sheets scope.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	data, err := readInlineOrFile(envOAuthClientJSON, envOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if data == nil {
		return nil, ErrNoOAuthClient
	}
	cfg, err := googleoauth.ConfigFromJSON(data, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// LoadToken reads the stored OAuth token.
func LoadToken() (*oauth2.Token, error) {
	data, err := readInlineOrFile(envOAuthTokenJSON, envOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if data == nil {
		return nil, ErrNoOAuthToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("oauth token has neither access nor refresh token")
	}
	return &tok, nil
}

// TokenFilePath is where txinsight-oauth-init writes the token.
func TokenFilePath() string {
	if p := strings.TrimSpace(os.Getenv(envOAuthTokenFile)); p != "" {
		return p
	}
	return DefaultTokenFile
}

// SaveToken writes tok to path readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// readInlineOrFile returns the inline value of jsonKey, else the contents of
// the file named by fileKey, else nil.
func readInlineOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	if p := strings.TrimSpace(os.Getenv(fileKey)); p != "" {
		return os.ReadFile(p)
	}
	return nil, nil
}
