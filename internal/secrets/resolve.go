// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	keyringScheme = "keyring://"
	envScheme     = "env://"
)

// IsReference reports whether value names a secret rather than holding one.
func IsReference(value string) bool {
	return strings.HasPrefix(value, keyringScheme) || strings.HasPrefix(value, envScheme)
}

// ParseRef parses keyring://service/key. Slashes after the service belong
// to the key.
func ParseRef(uri string) (Ref, error) {
	rest, ok := strings.CutPrefix(uri, keyringScheme)
	if !ok {
		return Ref{}, wrenerr.Errorf(wrenerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(rest, "/")
	if !ok || service == "" || key == "" {
		return Ref{}, wrenerr.Errorf(wrenerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return Ref{Service: service, Key: key}, nil
}

// Resolve returns the secret value names. Values that are not references
// come back unchanged.
func Resolve(store Store, value string) (string, error) {
	if name, ok := strings.CutPrefix(value, envScheme); ok {
		return resolveEnv(value, name)
	}
	if !strings.HasPrefix(value, keyringScheme) {
		return value, nil
	}

	ref, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Retrieve(ref.Service, ref.Key)
	if err != nil {
		return "", wrenerr.Reclassify(err, wrenerr.CodeSecretResolveFailure, "resolving "+value)
	}
	return secret, nil
}

func resolveEnv(value, name string) (string, error) {
	if name == "" {
		return "", wrenerr.Errorf(wrenerr.CodeSecretInvalidInput, "invalid env URI %q: expected env://NAME", value)
	}
	secret, ok := os.LookupEnv(name)
	if !ok || secret == "" {
		return "", wrenerr.Errorf(wrenerr.CodeSecretResolveFailure, "resolving %s: variable is unset or empty", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every secret reference in v. Each key is
// tried; the failures come back joined, each naming its config key.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsReference(val) {
			continue
		}
		secret, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, wrenerr.Wrapf(err, wrenerr.CodeSecretResolveFailure, "config key %s", key))
			continue
		}
		v.Set(key, secret)
	}
	if len(errs) == 0 {
		return nil
	}
	return wrenerr.Wrap(errors.Join(errs...), wrenerr.CodeSecretResolveFailure, "resolving config secrets")
}
