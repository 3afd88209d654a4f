// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := wrenerr.New(
		wrenerr.CodeConfigValidateInvalidValue,
		"invalid model configuration",
		wrenerr.FieldSessionID("sess-123"),
		wrenerr.Field("provider", "openai"),
	)

	require.Error(t, err)
	assert.Equal(t, wrenerr.CodeConfigValidateInvalidValue, wrenerr.CodeOf(err))
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeConfigValidateInvalidValue))

	fields := wrenerr.FieldsOf(err)
	assert.Equal(t, "sess-123", fields["session_id"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := wrenerr.Errorf(wrenerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, wrenerr.CodeStoreDatabaseFailure, wrenerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := wrenerr.Wrap(root, wrenerr.CodeStoreSessionGetNotFound, "loading session",
		wrenerr.FieldSessionID("sess-42"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, wrenerr.IsNotFound(err))
	assert.Equal(t, "sess-42", wrenerr.FieldsOf(err)["session_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, wrenerr.Wrap(nil, wrenerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, wrenerr.Wrapf(nil, wrenerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, wrenerr.Reclassify(nil, wrenerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, wrenerr.With(nil, wrenerr.FieldOwnerID("x")))
}

func TestWrapReturnsInnermostCode(t *testing.T) {
	inner := wrenerr.New(wrenerr.CodeProviderUpstreamFailure, "503 from upstream")
	outer := wrenerr.Wrap(inner, wrenerr.CodeServiceGenerateUpstreamFailure, "generating reply")

	assert.Equal(t, wrenerr.CodeProviderUpstreamFailure, wrenerr.CodeOf(outer))
	assert.False(t, wrenerr.IsGenerationError(outer))
}

func TestReclassifyOverridesInnerCode(t *testing.T) {
	inner := wrenerr.New(wrenerr.CodeProviderUpstreamFailure, "503 from upstream")
	err := wrenerr.Reclassify(inner, wrenerr.CodeServiceGenerateUpstreamFailure, "generating reply",
		wrenerr.FieldMessageID("m-1"))

	assert.Equal(t, wrenerr.CodeServiceGenerateUpstreamFailure, wrenerr.CodeOf(err))
	assert.True(t, wrenerr.IsGenerationError(err))
	assert.True(t, wrenerr.IsServiceError(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "503 from upstream")
	assert.Equal(t, "m-1", wrenerr.FieldsOf(err)["message_id"])
}

func TestReclassifyKeepsContextCancellation(t *testing.T) {
	cause := fmt.Errorf("stt request: %w", context.Canceled)
	err := wrenerr.Reclassify(cause, wrenerr.CodeServiceTranscribeUpstreamFailure, "transcribing audio")

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, wrenerr.IsTranscriptionError(err))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := wrenerr.With(stderrors.New("something broke"), wrenerr.FieldOwnerID("u-1"))

	require.Error(t, enriched)
	assert.Equal(t, wrenerr.CodeServerInternalFailure, wrenerr.CodeOf(enriched))
	assert.Equal(t, "u-1", wrenerr.FieldsOf(enriched)["owner_id"])
}

func TestCodeOfAndFieldsOfOnPlainErrors(t *testing.T) {
	assert.Equal(t, wrenerr.Code(""), wrenerr.CodeOf(nil))
	assert.Equal(t, wrenerr.Code(""), wrenerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, wrenerr.FieldsOf(nil))
	assert.Nil(t, wrenerr.FieldsOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := wrenerr.New(wrenerr.CodeStoreDatabaseFailure, "db",
		wrenerr.Field("", "dropped"),
		wrenerr.FieldJournalID("kept"),
	)
	fields := wrenerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["journal_id"])
	assert.NotContains(t, fields, "")
}

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   wrenerr.Code
		status int
		check  func(error) bool
	}{
		{name: "session not found", code: wrenerr.CodeSessionGetNotFound, status: 404, check: wrenerr.IsNotFound},
		{name: "audio not found", code: wrenerr.CodeAudioGetNotFound, status: 404, check: wrenerr.IsNotFound},
		{name: "inactive session", code: wrenerr.CodeSessionTurnInactive, status: 409, check: wrenerr.IsInactive},
		{name: "end conflict", code: wrenerr.CodeStoreSessionEndConflict, status: 409, check: wrenerr.IsConflict},
		{name: "start invalid", code: wrenerr.CodeSessionStartInvalidInput, status: 400, check: wrenerr.IsInvalidInput},
		{name: "locator invalid", code: wrenerr.CodeAudioLocatorInvalid, status: 400, check: wrenerr.IsInvalidInput},
		{name: "rate limited", code: wrenerr.CodeServerRateLimited, status: 429, check: wrenerr.IsBudgetExceeded},
		{name: "transcription", code: wrenerr.CodeServiceTranscribeUpstreamFailure, status: 502, check: wrenerr.IsTranscriptionError},
		{name: "generation", code: wrenerr.CodeServiceGenerateUpstreamFailure, status: 502, check: wrenerr.IsGenerationError},
		{name: "synthesis", code: wrenerr.CodeServiceSynthesizeUpstreamFailure, status: 502, check: wrenerr.IsServiceError},
		{name: "provider upstream", code: wrenerr.CodeProviderUpstreamFailure, status: 502, check: wrenerr.IsUpstreamFailure},
		{name: "internal", code: wrenerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !wrenerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrenerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, wrenerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestServiceErrorFamily(t *testing.T) {
	provider := wrenerr.New(wrenerr.CodeProviderUpstreamFailure, "boom")
	assert.True(t, wrenerr.IsUpstreamFailure(provider))
	assert.False(t, wrenerr.IsServiceError(provider))

	transcribe := wrenerr.New(wrenerr.CodeServiceTranscribeUpstreamFailure, "boom")
	assert.True(t, wrenerr.IsServiceError(transcribe))
	assert.False(t, wrenerr.IsGenerationError(transcribe))

	invalid := wrenerr.New(wrenerr.CodeServiceRequestInvalid, "empty text")
	assert.False(t, wrenerr.IsServiceError(invalid))
}

func TestHTTPStatusDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, wrenerr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, wrenerr.HTTPStatus(stderrors.New("plain")))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := wrenerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, wrenerr.CodeServerInternalFailure, wrenerr.CodeOf(joined))
}
