package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var bigQueryScopes = []string{
	"https://www.googleapis.com/auth/bigquery",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Credentials is an authenticated session: a token source and the project
// the credentials belong to, if they name one.
type Credentials struct {
	TokenSource oauth2.TokenSource
	ProjectID   string
}

type credentialOptions struct {
	Token           string
	CredentialsFile string
}

// newCredentials resolves credentials in order: a static access token, a
// credentials file (flag or GOOGLE_APPLICATION_CREDENTIALS), then the
// application default credentials. The token is fetched once so a broken
// setup fails at startup.
func newCredentials(ctx context.Context, opts credentialOptions, logger *logrus.Logger) (*Credentials, error) {
	creds, err := findCredentials(ctx, opts, logger)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, &AuthError{Err: err}
	}
	return creds, nil
}

func findCredentials(ctx context.Context, opts credentialOptions, logger *logrus.Logger) (*Credentials, error) {
	if opts.Token != "" {
		logger.Debug("Using static access token")
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
		return &Credentials{TokenSource: ts}, nil
	}

	file := opts.CredentialsFile
	if file == "" {
		file = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if file != "" {
		logger.WithField("file", file).Debug("Using credentials file")
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		c, err := google.CredentialsFromJSON(ctx, data, bigQueryScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}
		return &Credentials{TokenSource: c.TokenSource, ProjectID: c.ProjectID}, nil
	}

	logger.Debug("Using application default credentials")
	c, err := google.FindDefaultCredentials(ctx, bigQueryScopes...)
	if err != nil {
		return nil, errors.New("no credentials found: pass --credentials-file, --token or set up application default credentials")
	}
	return &Credentials{TokenSource: c.TokenSource, ProjectID: c.ProjectID}, nil
}
