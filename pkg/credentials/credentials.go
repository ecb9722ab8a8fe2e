// Package credentials resolves the Google credentials the warehouse
// client authenticates with. Resolution only touches the local
// filesystem, never the network, so a missing credential surfaces
// before the first API call.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
)

// EnvVar points at a service account key file, like the Google SDKs
// expect.
const EnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

// ErrNoCredentials is returned when no credential source can be
// found.
var ErrNoCredentials = errors.New("no credentials found")

// EnvProvider resolves credentials from, in order: an explicitly
// configured key file, the GOOGLE_APPLICATION_CREDENTIALS variable,
// and the gcloud application-default credentials file.
type EnvProvider struct {
	file string
	log  zerolog.Logger
}

func NewEnvProvider(file string, log zerolog.Logger) *EnvProvider {
	return &EnvProvider{
		file: file,
		log:  log,
	}
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

func (p *EnvProvider) Resolve(ctx context.Context) (*google.Credentials, error) {
	path := p.file
	if path == "" {
		path = os.Getenv(EnvVar)
	}

	if path != "" {
		return p.fromFile(ctx, path)
	}

	wellKnown := wellKnownFile()
	if wellKnown != "" {
		if _, err := os.Stat(wellKnown); err == nil {
			return p.fromFile(ctx, wellKnown)
		}
	}

	return nil, fmt.Errorf("%w: set %s to a service account key file or run 'gcloud auth application-default login'", ErrNoCredentials, EnvVar)
}

func (p *EnvProvider) fromFile(ctx context.Context, path string) (*google.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %s: %w", path, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, bigquery.Scope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}

	// Surface the identity for debugging, the way a service account
	// key names it.
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err == nil && key.ClientEmail != "" {
		p.log.Debug().
			Str("client_email", key.ClientEmail).
			Str("project", key.ProjectID).
			Msg("resolved service account credentials")
	}

	return creds, nil
}

func wellKnownFile() string {
	if dir := os.Getenv("CLOUDSDK_CONFIG"); dir != "" {
		return filepath.Join(dir, "application_default_credentials.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")
}

// Static returns fixed credentials, or a fixed error, for tests that
// substitute the provider.
type Static struct {
	Credentials *google.Credentials
	Err         error
}

func (s *Static) Resolve(_ context.Context) (*google.Credentials, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	return s.Credentials, nil
}
