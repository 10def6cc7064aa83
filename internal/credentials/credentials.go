// Package credentials resolves Google credentials from environment variables
// or local files. An environment variable may hold either a path to a JSON
// file or the JSON itself, which lets the same binary run from a developer
// checkout (files on disk) or from CI (secrets in the environment).
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"sbd-checker/internal/config"
)

const (
	ScopeDriveReadonly = "https://www.googleapis.com/auth/drive.readonly"
	ScopeGmailReadonly = "https://www.googleapis.com/auth/gmail.readonly"
)

// ErrNoSuchCredential is returned when neither the environment variable nor
// the default file yields valid JSON.
var ErrNoSuchCredential = errors.New("no such credential")

// LoadJSON returns the raw JSON credential named by envVar, falling back to
// defaultFile when the variable is unset. The value is first tried as a file
// path and then as inline JSON.
func LoadJSON(envVar, defaultFile string) ([]byte, error) {
	fileOrContent, ok := os.LookupEnv(envVar)
	if !ok {
		fileOrContent = defaultFile
	}

	data, err := os.ReadFile(fileOrContent)
	if err != nil {
		data = []byte(fileOrContent)
	}
	if !json.Valid(data) {
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoSuchCredential, envVar, err)
		}
		return nil, fmt.Errorf("%w: %s: invalid JSON", ErrNoSuchCredential, envVar)
	}
	return data, nil
}

// LoadJSONFileOrContent is LoadJSON decoded into a generic map.
func LoadJSONFileOrContent(envVar, defaultFile string) (map[string]any, error) {
	data, err := LoadJSON(envVar, defaultFile)
	if err != nil {
		return nil, err
	}
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoSuchCredential, envVar, err)
	}
	return content, nil
}

// ServiceAccount loads a non-interactive service account credential.
func ServiceAccount(ctx context.Context, cfg config.CredentialsConfig, scopes ...string) (*google.Credentials, error) {
	data, err := LoadJSON(cfg.ServiceAccountEnv, cfg.ServiceAccountFile)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}
	log.Debug().Str("project", creds.ProjectID).Msg("Loaded service account credentials")
	return creds, nil
}

// ServiceAccountOption is ServiceAccount wrapped as a client option for the
// Google API constructors.
func ServiceAccountOption(ctx context.Context, cfg config.CredentialsConfig, scopes ...string) (option.ClientOption, error) {
	creds, err := ServiceAccount(ctx, cfg, scopes...)
	if err != nil {
		return nil, err
	}
	return option.WithCredentials(creds), nil
}
