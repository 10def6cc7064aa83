package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"sbd-checker/internal/config"
)

// AuthorizedUser is the on-disk form of a user-delegated token. The field
// names match the authorized_user JSON written by Google's client libraries.
type AuthorizedUser struct {
	Type         string   `json:"type,omitempty"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

func (u *AuthorizedUser) config(scopes []string) *oauth2.Config {
	endpoint := google.Endpoint
	if u.TokenURI != "" {
		endpoint.TokenURL = u.TokenURI
	}
	return &oauth2.Config{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

func (u *AuthorizedUser) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  u.Token,
		RefreshToken: u.RefreshToken,
		TokenType:    "Bearer",
	}
	if u.Expiry != "" {
		// Python clients write the expiry without a zone designator.
		expiry := strings.TrimSuffix(u.Expiry, "Z")
		if t, err := time.Parse("2006-01-02T15:04:05", expiry); err == nil {
			tok.Expiry = t
		} else if t, err := time.Parse(time.RFC3339Nano, u.Expiry); err == nil {
			tok.Expiry = t
		}
	}
	return tok
}

func authorizedUserFrom(conf *oauth2.Config, tok *oauth2.Token) *AuthorizedUser {
	u := &AuthorizedUser{
		Type:         "authorized_user",
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		Scopes:       conf.Scopes,
	}
	if !tok.Expiry.IsZero() {
		u.Expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}
	return u
}

// SaveAuthorizedUser writes the token to path, readable only by the owner.
func SaveAuthorizedUser(path string, conf *oauth2.Config, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(authorizedUserFrom(conf, tok))
}

// GmailAuthorizedUser returns a token source for the mailbox the stored
// token was issued for. A valid token is used as is. An expired token with a
// refresh token is refreshed immediately. Otherwise, when interactive is set,
// a browser authorization is started and the result is written to the token
// file; non-interactive callers get ErrNoSuchCredential.
func GmailAuthorizedUser(ctx context.Context, cfg config.CredentialsConfig) (oauth2.TokenSource, error) {
	scopes := []string{ScopeGmailReadonly}

	var (
		conf *oauth2.Config
		tok  *oauth2.Token
	)
	data, err := LoadJSON(cfg.GmailTokenEnv, cfg.GmailTokenFile)
	switch {
	case err == nil:
		var user AuthorizedUser
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoSuchCredential, cfg.GmailTokenEnv, err)
		}
		conf = user.config(scopes)
		tok = user.token()
	case !errors.Is(err, ErrNoSuchCredential):
		return nil, err
	}

	if tok != nil && tok.Valid() {
		return conf.TokenSource(ctx, tok), nil
	}

	switch {
	case tok != nil && tok.RefreshToken != "":
		ts := conf.TokenSource(ctx, tok)
		if tok, err = ts.Token(); err != nil {
			return nil, fmt.Errorf("unable to refresh gmail token: %w", err)
		}
		log.Info().Time("expiry", tok.Expiry).Msg("Refreshed gmail token")
	case cfg.Interactive:
		if conf, tok, err = AuthorizeInteractive(ctx, cfg.GmailClientSecret, cfg.RedirectPort, scopes...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s has no valid gmail token", ErrNoSuchCredential, cfg.GmailTokenEnv)
	}

	// only persist interactively; there is no secure place to keep a
	// refreshed token otherwise
	if cfg.Interactive {
		if err := SaveAuthorizedUser(cfg.GmailTokenFile, conf, tok); err != nil {
			return nil, fmt.Errorf("unable to save token: %w", err)
		}
		log.Info().Str("path", cfg.GmailTokenFile).Msg("Saved gmail token")
	}

	return conf.TokenSource(ctx, tok), nil
}

// GmailOption is GmailAuthorizedUser wrapped as a client option.
func GmailOption(ctx context.Context, cfg config.CredentialsConfig) (option.ClientOption, error) {
	ts, err := GmailAuthorizedUser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return option.WithTokenSource(ts), nil
}

// AuthorizeInteractive runs the installed-app OAuth flow: it prints an
// authorization URL, waits for the browser redirect on localhost:port and
// exchanges the code for a token. The redirect URL must be registered for the
// client in clientSecretPath.
func AuthorizeInteractive(ctx context.Context, clientSecretPath string, port int, scopes ...string) (*oauth2.Config, *oauth2.Token, error) {
	credBytes, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	conf, err := google.ConfigFromJSON(credBytes, scopes...)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	conf.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to listen for redirect: %w", err)
	}

	state := uuid.NewString()
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			offer(errChan, fmt.Errorf("no code in callback: %s", q.Get("error")))
			http.Error(w, "authorization failed", http.StatusBadRequest)
			return
		}
		offer(codeChan, code)
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(ln); err != http.ErrServerClosed {
			offer(errChan, err)
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL in your browser to authorize:\n\n%s\n\n", authURL)
	fmt.Println("Waiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, nil, err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}
	return conf, token, nil
}

// offer sends v unless ch is full. Only the first callback result matters.
func offer[T any](ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
