// Package gcp builds Google API client options from service account
// settings.
package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"

	"finsight/internal/log"
)

// Credentials selects a service account. With neither field set, the
// client falls back to GOOGLE_APPLICATION_CREDENTIALS and then to
// Application Default Credentials.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) resolve() ([]byte, string, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), "inline", nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, "", fmt.Errorf("read service account file: %w", err)
		}
		return b, "file", nil
	}
	if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read GOOGLE_APPLICATION_CREDENTIALS: %w", err)
		}
		return b, "env", nil
	}
	return nil, "adc", nil
}

// ClientOptions returns the options for a Google API service with the given
// scopes, using a pooled HTTP transport.
func ClientOptions(ctx context.Context, creds Credentials, logger *log.Logger, scopes ...string) ([]option.ClientOption, error) {
	if logger == nil {
		logger = log.Discard()
	}
	raw, source, err := creds.resolve()
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Resolved Google credentials", "source", source, "scopes", strings.Join(scopes, ","))

	opts := []option.ClientOption{option.WithScopes(scopes...)}
	if raw != nil {
		opts = append(opts, option.WithCredentialsJSON(raw))
	}
	return opts, nil
}
