package gcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsResolve(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"type":"service_account"}`), 0o600))

	tests := []struct {
		name    string
		creds   Credentials
		env     string
		source  string
		wantErr bool
	}{
		{"inline wins", Credentials{JSON: `{"inline":true}`, File: file}, "", "inline", false},
		{"file", Credentials{File: file}, "", "file", false},
		{"missing file", Credentials{File: filepath.Join(dir, "nope.json")}, "", "", true},
		{"env fallback", Credentials{}, file, "env", false},
		{"application default", Credentials{}, "", "adc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", tt.env)
			raw, source, err := tt.creds.resolve()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.source, source)
			if source == "adc" {
				assert.Nil(t, raw)
			} else {
				assert.NotEmpty(t, raw)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	opts, err := ClientOptions(context.Background(), Credentials{JSON: `{"type":"service_account"}`}, nil, "scope-a")
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	opts, err = ClientOptions(context.Background(), Credentials{}, nil, "scope-a")
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}
