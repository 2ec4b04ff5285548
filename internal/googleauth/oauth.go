// Package googleauth loads Google OAuth client secrets and cached tokens
// shared by the Drive and Gmail integrations.
package googleauth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ClientConfig parses an OAuth client secrets file for the given scopes.
func ClientConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return cfg, nil
}

// HTTPClient returns an authorized client using the cached token. It fails
// when no token has been saved yet.
func HTTPClient(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (*http.Client, error) {
	cfg, err := ClientConfig(credentialsFile, scopes...)
	if err != nil {
		return nil, err
	}
	tok, err := TokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no auth token found at %s - run 'chatrelay auth' first: %w", tokenFile, err)
	}
	return cfg.Client(ctx, tok), nil
}

// Authorize runs the manual authorization code flow: it prints the consent
// URL to out and reads the pasted code from in.
func Authorize(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then paste the authorization code:\n%v\n", authURL)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// TokenFromFile reads a cached token.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken caches a token with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
