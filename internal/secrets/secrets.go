// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider and speech API keys out of wren.yaml. A
// config value may name its secret instead of holding it:
//
//	keyring://wren/google-api-key   OS keyring entry
//	env://WREN_GOOGLE_KEY           environment variable
//
// Both forms are resolved once, when the config is loaded.
package secrets

// DefaultService is the keyring service wren stores its own keys under.
const DefaultService = "wren"

// Store is a keyring-like secret store. Values are addressed by service
// and key.
type Store interface {
	// Store replaces the value under service/key.
	Store(service, key, value string) error
	// Retrieve fails with CodeSecretNotFound when service/key is unset.
	Retrieve(service, key string) (string, error)
	// Delete fails with CodeSecretNotFound when service/key is unset.
	Delete(service, key string) error
	// List returns the key names under service in sorted order.
	List(service string) ([]string, error)
}

// Ref addresses one keyring entry.
type Ref struct {
	Service string
	Key     string
}

// URI is the keyring:// form of r, as written in wren.yaml.
func (r Ref) URI() string { return keyringScheme + r.Service + "/" + r.Key }

func (r Ref) String() string { return r.Service + "/" + r.Key }

// ProviderKeyName is the key a vendor's API key is stored under, e.g.
// "google-api-key".
func ProviderKeyName(provider string) string {
	return provider + "-api-key"
}

// ProviderRef is the keyring entry holding provider's API key.
func ProviderRef(provider string) Ref {
	return Ref{Service: DefaultService, Key: ProviderKeyName(provider)}
}

// ProviderKeyURI is ProviderRef(provider).URI().
func ProviderKeyURI(provider string) string {
	return ProviderRef(provider).URI()
}
