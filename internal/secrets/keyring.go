// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// KeyringStore is a Store on the OS keyring: Keychain on macOS, Secret
// Service on Linux, Credential Manager on Windows.
//
// The keyring cannot enumerate entries, so each service also carries an
// index entry, "<service>::index", holding its key names as JSON.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore { return &KeyringStore{} }

func (s *KeyringStore) Store(service, key, value string) error {
	ref, err := newRef("store", service, key)
	if err != nil {
		return err
	}
	if value == "" {
		return wrenerr.New(wrenerr.CodeSecretInvalidInput, "secret store: value must not be empty",
			wrenerr.Field("service", service), wrenerr.Field("key", key))
	}
	if err := keyring.Set(ref.Service, ref.Key, value); err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeSecretStoreFailure, "storing secret %s", ref)
	}
	return editIndex(ref.Service, func(keys []string) []string { return append(keys, ref.Key) })
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	ref, err := newRef("retrieve", service, key)
	if err != nil {
		return "", err
	}
	val, err := keyring.Get(ref.Service, ref.Key)
	if err != nil {
		return "", keyringErr(err, wrenerr.CodeSecretStoreFailure, "retrieving", ref)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	ref, err := newRef("delete", service, key)
	if err != nil {
		return err
	}
	if err := keyring.Delete(ref.Service, ref.Key); err != nil {
		return keyringErr(err, wrenerr.CodeSecretDeleteFailure, "deleting", ref)
	}
	return editIndex(ref.Service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == ref.Key })
	})
}

func (s *KeyringStore) List(service string) ([]string, error) {
	return readIndex(service)
}

func newRef(op, service, key string) (Ref, error) {
	switch {
	case service == "":
		return Ref{}, wrenerr.New(wrenerr.CodeSecretInvalidInput, "secret "+op+": service must not be empty")
	case key == "":
		return Ref{}, wrenerr.New(wrenerr.CodeSecretInvalidInput, "secret "+op+": key must not be empty")
	}
	return Ref{Service: service, Key: key}, nil
}

// keyringErr maps keyring.ErrNotFound to CodeSecretNotFound and anything
// else to code.
func keyringErr(err error, code wrenerr.Code, verb string, ref Ref) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return wrenerr.Errorf(wrenerr.CodeSecretNotFound, "secret %s not found", ref)
	}
	return wrenerr.Wrapf(err, code, "%s secret %s", verb, ref)
}

func indexRef(service string) Ref { return Ref{Service: service, Key: service + "::index"} }

func readIndex(service string) ([]string, error) {
	idx := indexRef(service)
	raw, err := keyring.Get(idx.Service, idx.Key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeSecretListFailure, "loading key index for %s", service)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

// editIndex rewrites the index of service through edit, keeping it sorted
// and free of duplicates. An empty index is removed.
func editIndex(service string, edit func([]string) []string) error {
	keys, err := readIndex(service)
	if err != nil {
		return err
	}
	keys = edit(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	idx := indexRef(service)
	if len(keys) == 0 {
		if err := keyring.Delete(idx.Service, idx.Key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(idx.Service, idx.Key, string(data)); err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}
