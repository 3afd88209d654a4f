// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audio stores raw and synthesized audio blobs. Blobs are write-once:
// every Put returns a fresh random locator and nothing ever overwrites it.
package audio

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Locator is an opaque reference to a stored blob, of the form
// "<scheme>:<uuid><ext>".
type Locator string

// Hint describes the blob being stored.
type Hint struct {
	MIMEType string
}

// Blob is stored audio and its media type.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Store persists audio blobs. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, data []byte, hint Hint) (Locator, error)
	Get(ctx context.Context, loc Locator) (*Blob, error)
}

var extensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
	"audio/flac":  ".flac",
	"audio/mp4":   ".m4a",
	"audio/pcm":   ".pcm",
}

var mimeTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".pcm":  "audio/pcm",
	".bin":  "application/octet-stream",
}

// ExtensionFor maps a MIME type to the file extension used in locators.
// Parameters such as "; codecs=opus" are ignored.
func ExtensionFor(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	if ext, ok := extensions[strings.TrimSpace(base)]; ok {
		return ext
	}
	return ".bin"
}

// MIMETypeFor maps a locator extension back to a MIME type.
func MIMETypeFor(ext string) string {
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// NewLocator mints a random locator for a blob of the given MIME type.
func NewLocator(scheme, mimeType string) Locator {
	return Locator(scheme + ":" + uuid.NewString() + ExtensionFor(mimeType))
}

// Parse splits a locator into its scheme and object name, rejecting names
// that are not a uuid plus a known extension.
func (l Locator) Parse() (scheme, name string, err error) {
	scheme, name, ok := strings.Cut(string(l), ":")
	if !ok || scheme == "" || name == "" {
		return "", "", wrenerr.Errorf(wrenerr.CodeAudioLocatorInvalid, "malformed audio locator %q", l)
	}

	ext := path.Ext(name)
	if _, known := mimeTypes[ext]; !known {
		return "", "", wrenerr.Errorf(wrenerr.CodeAudioLocatorInvalid, "audio locator %q has unknown extension", l)
	}
	if _, err := uuid.Parse(strings.TrimSuffix(name, ext)); err != nil {
		return "", "", wrenerr.Errorf(wrenerr.CodeAudioLocatorInvalid, "audio locator %q has invalid id", l)
	}
	return scheme, name, nil
}

// Scheme returns the backend prefix of the locator, or "" when malformed.
func (l Locator) Scheme() string {
	scheme, _, err := l.Parse()
	if err != nil {
		return ""
	}
	return scheme
}

func (l Locator) String() string { return string(l) }

// CheckPut validates the arguments every backend's Put shares.
func CheckPut(data []byte) error {
	if len(data) == 0 {
		return wrenerr.New(wrenerr.CodeAudioPutInvalidInput, "audio data is empty")
	}
	return nil
}

// ParseFor parses loc and verifies it belongs to the backend scheme.
func ParseFor(loc Locator, scheme string) (string, error) {
	got, name, err := loc.Parse()
	if err != nil {
		return "", err
	}
	if got != scheme {
		return "", wrenerr.Errorf(wrenerr.CodeAudioLocatorInvalid, "audio locator %q does not belong to %s store", loc, scheme)
	}
	return name, nil
}

// NotFound builds the error backends return for a missing blob.
func NotFound(loc Locator) error {
	return wrenerr.New(wrenerr.CodeAudioGetNotFound, "audio blob not found", wrenerr.Field("locator", string(loc)))
}
