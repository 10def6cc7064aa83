package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"sbd-checker/internal/config"
)

const testEnv = "SOME_ENV_VARIABLE_3837"

// unsetEnv clears testEnv for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	t.Setenv(testEnv, "")
	require.NoError(t, os.Unsetenv(testEnv))
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadJSONFileOrContent_NoSuchCredential(t *testing.T) {
	unsetEnv(t)
	_, err := LoadJSONFileOrContent(testEnv, filepath.Join(t.TempDir(), "no-such-file.json"))
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestLoadJSONFileOrContent_DefaultFile(t *testing.T) {
	unsetEnv(t)
	path := writeFile(t, "cred.json", `{"key": "value1"}`)

	content, err := LoadJSONFileOrContent(testEnv, path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "value1"}, content)
}

func TestLoadJSONFileOrContent_EnvContentWins(t *testing.T) {
	path := writeFile(t, "cred.json", `{"key": "value1"}`)
	t.Setenv(testEnv, `{"key": "value2"}`)

	content, err := LoadJSONFileOrContent(testEnv, path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "value2"}, content)
}

func TestLoadJSONFileOrContent_EnvPath(t *testing.T) {
	path := writeFile(t, "cred.json", `{"key": "value3"}`)
	t.Setenv(testEnv, path)

	content, err := LoadJSONFileOrContent(testEnv, "no-such-file.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "value3"}, content)
}

func TestLoadJSONFileOrContent_InvalidFileContent(t *testing.T) {
	path := writeFile(t, "cred.json", `not json`)
	t.Setenv(testEnv, path)

	_, err := LoadJSONFileOrContent(testEnv, "")
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestLoadJSONFileOrContent_EmptyEnv(t *testing.T) {
	t.Setenv(testEnv, "")
	_, err := LoadJSONFileOrContent(testEnv, writeFile(t, "cred.json", `{}`))
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestServiceAccount_Missing(t *testing.T) {
	cfg := config.CredentialsConfig{ServiceAccountEnv: testEnv, ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json")}
	unsetEnv(t)
	_, err := ServiceAccount(context.Background(), cfg, ScopeDriveReadonly)
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestServiceAccount_FromEnvContent(t *testing.T) {
	t.Setenv(testEnv, `{
		"type": "service_account",
		"project_id": "argo-canada",
		"private_key_id": "abc",
		"private_key": "unused",
		"client_email": "checker@argo-canada.iam.gserviceaccount.com",
		"client_id": "123",
		"token_uri": "https://oauth2.googleapis.com/token"
	}`)
	cfg := config.CredentialsConfig{ServiceAccountEnv: testEnv, ServiceAccountFile: "missing.json"}

	creds, err := ServiceAccount(context.Background(), cfg, ScopeDriveReadonly)
	require.NoError(t, err)
	assert.Equal(t, "argo-canada", creds.ProjectID)
}

func gmailConfig(t *testing.T, tokenFile string) config.CredentialsConfig {
	unsetEnv(t)
	return config.CredentialsConfig{
		GmailTokenEnv:  testEnv,
		GmailTokenFile: tokenFile,
	}
}

func TestGmailAuthorizedUser_Missing(t *testing.T) {
	cfg := gmailConfig(t, filepath.Join(t.TempDir(), "token.json"))
	_, err := GmailAuthorizedUser(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestGmailAuthorizedUser_ValidToken(t *testing.T) {
	user := AuthorizedUser{
		Type:         "authorized_user",
		Token:        "access",
		ClientID:     "id",
		ClientSecret: "secret",
		Expiry:       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(user)
	require.NoError(t, err)
	cfg := gmailConfig(t, writeFile(t, "token.json", string(body)))

	ts, err := GmailAuthorizedUser(context.Background(), cfg)
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
}

func TestGmailAuthorizedUser_ExpiredWithoutRefresh(t *testing.T) {
	user := AuthorizedUser{
		Token:    "stale",
		ClientID: "id",
		Expiry:   "2020-01-01T00:00:00",
	}
	body, err := json.Marshal(user)
	require.NoError(t, err)
	cfg := gmailConfig(t, writeFile(t, "token.json", string(body)))

	_, err = GmailAuthorizedUser(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoSuchCredential)
}

func TestGmailAuthorizedUser_RefreshesExpiredToken(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	user := AuthorizedUser{
		Token:        "stale",
		RefreshToken: "refresh",
		TokenURI:     srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Expiry:       "2020-01-01T00:00:00.000000Z",
	}
	body, err := json.Marshal(user)
	require.NoError(t, err)

	tokenFile := filepath.Join(t.TempDir(), "token.json")
	cfg := gmailConfig(t, tokenFile)
	t.Setenv(testEnv, string(body))

	ts, err := GmailAuthorizedUser(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshes)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, 1, refreshes)

	// non-interactive refreshes are never written back
	_, err = os.Stat(tokenFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAuthorizedUser_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	conf := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: "https://oauth2.googleapis.com/token"},
		Scopes:       []string{ScopeGmailReadonly},
	}
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, SaveAuthorizedUser(path, conf, &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var user AuthorizedUser
	require.NoError(t, json.Unmarshal(data, &user))
	assert.Equal(t, "authorized_user", user.Type)
	assert.Equal(t, "r", user.RefreshToken)
	assert.Equal(t, expiry, user.token().Expiry)
}

func TestOffer_DoesNotBlockWhenFull(t *testing.T) {
	ch := make(chan error, 1)
	first := errors.New("first")

	assert.True(t, offer(ch, first))
	assert.False(t, offer(ch, errors.New("second")))
	assert.Equal(t, first, <-ch)
}
