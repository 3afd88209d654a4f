// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/secrets"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value; the service is always "wren"
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", wrenerr.Errorf(wrenerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return wrenerr.Errorf(wrenerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func useSecretStore(t *testing.T, store secrets.Store) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = orig })
}

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		stdin   string
		wantKey string
		wantErr bool
	}{
		{name: "provider shorthand", arg: "google", stdin: "AIza-test\n", wantKey: "google-api-key"},
		{name: "full name", arg: "cartesia-api-key", stdin: "  sk_car \n", wantKey: "cartesia-api-key"},
		{name: "no trailing newline", arg: "openai", stdin: "sk-open", wantKey: "openai-api-key"},
		{name: "empty value", arg: "google", stdin: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockSecretStore()
			useSecretStore(t, mock)

			root := NewRootCmd()
			var out strings.Builder
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetIn(strings.NewReader(tt.stdin))
			root.SetArgs([]string{"secret", "set", tt.arg})

			err := root.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, wrenerr.HasCode(err, wrenerr.CodeCLIInputInvalid))
				assert.Empty(t, mock.data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.stdin), mock.data[tt.wantKey])
			assert.Contains(t, out.String(), "keyring://wren/"+tt.wantKey)
		})
	}
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{name: "empty store", want: "No secrets stored.\n"},
		{name: "single key", keys: []string{"google-api-key"}, want: "google-api-key\n"},
		{name: "sorted output", keys: []string{"openai-api-key", "anthropic-api-key"}, want: "anthropic-api-key\nopenai-api-key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, err := execute(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		deleteKey  string
		wantOutput string
		wantCode   wrenerr.Code
	}{
		{
			name:       "delete existing key",
			keys:       []string{"anthropic-api-key"},
			deleteKey:  "anthropic-api-key",
			wantOutput: "Deleted secret: anthropic-api-key\n",
		},
		{
			name:       "provider shorthand",
			keys:       []string{"google-api-key"},
			deleteKey:  "google",
			wantOutput: "Deleted secret: google-api-key\n",
		},
		{
			name:      "missing key",
			deleteKey: "missing-key",
			wantCode:  wrenerr.CodeSecretNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, err := execute(t, "secret", "delete", tt.deleteKey)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, wrenerr.HasCode(err, tt.wantCode), "expected %s, got: %v", tt.wantCode, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutput, out)
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSecretCheck(t *testing.T) {
	orig := keyCheckClient
	keyCheckClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		status := http.StatusOK
		if r.Header.Get("x-goog-api-key") != "AIza-good" {
			status = http.StatusForbidden
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("{}")), Request: r}, nil
	})}
	t.Cleanup(func() { keyCheckClient = orig })

	store := newMockSecretStore()
	useSecretStore(t, store)

	_, err := execute(t, "secret", "check", "google")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeSecretNotFound), "got: %v", err)

	store.data["google-api-key"] = "AIza-good"
	out, err := execute(t, "secret", "check", "google")
	require.NoError(t, err)
	assert.Contains(t, out, "google key accepted")

	store.data["google-api-key"] = "AIza-revoked"
	_, err = execute(t, "secret", "check", "google")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderKeyInvalid), "got: %v", err)
}
