package googleauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testSecrets = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "drive-token.json")
	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "def", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, SaveToken(path, tok))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := TokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "def", got.RefreshToken)
}

func TestClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(testSecrets), 0o600))

	cfg, err := ClientConfig(path, "https://www.googleapis.com/auth/drive.file")
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)

	_, err = ClientConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestHTTPClientRequiresToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(testSecrets), 0o600))

	_, err := HTTPClient(t.Context(), path, filepath.Join(dir, "token.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no auth token")
}

func TestAuthorizeRejectsEmptyCode(t *testing.T) {
	var out strings.Builder
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{AuthURL: "https://example.com/auth"}}
	_, err := Authorize(t.Context(), cfg, strings.NewReader("\n"), &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "https://example.com/auth")
}
