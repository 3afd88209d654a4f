// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreSessionGetNotFound    Code = "store.session.get.not_found"
	CodeStoreSessionEndConflict    Code = "store.session.end.conflict"
	CodeStoreMessageGetNotFound    Code = "store.message.get.not_found"
	CodeStoreMessageAppendInvalid  Code = "store.message.append.invalid_input"
	CodeStoreJournalGetNotFound    Code = "store.journal.get.not_found"
	CodeStoreEndRecordGetNotFound  Code = "store.end_record.get.not_found"
	CodeStoreDatabaseFailure       Code = "store.database.failure"
	CodeStoreMigrateFailure        Code = "store.migrate.failure"
	CodeStoreBackendUnsupported    Code = "store.backend.unsupported"
	CodeStoreConflict              Code = "store.conflict"
	CodeStoreInvalidInput          Code = "store.invalid_input"
	CodeStoreEntityNotFound        Code = "store.entity.get.not_found"
	CodeAudioGetNotFound           Code = "audio.blob.get.not_found"
	CodeAudioPutInvalidInput       Code = "audio.blob.put.invalid_input"
	CodeAudioPutConflict           Code = "audio.blob.put.conflict"
	CodeAudioLocatorInvalid        Code = "audio.locator.parse.invalid_format"
	CodeAudioStoreFailure          Code = "audio.store.failure"
	CodeAudioBackendUnsupported    Code = "audio.backend.unsupported"
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProviderRequestInvalid  Code = "provider.request.invalid"
	CodeProviderResponseInvalid Code = "provider.response.invalid"
	CodeProviderUpstreamFailure Code = "provider.upstream.failure"
	CodeProviderNotFound        Code = "provider.registry.not_found"
	CodeProviderAllUnavailable  Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault       Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyInvalid      Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed  Code = "provider.key.check.upstream.failure"

	// Service codes classify failures of the external speech and language
	// services. Transcribe and generate failures are hard, synthesize and
	// summarize failures degrade the result.
	CodeServiceTranscribeUpstreamFailure Code = "service.transcribe.upstream.failure"
	CodeServiceGenerateUpstreamFailure   Code = "service.generate.upstream.failure"
	CodeServiceSynthesizeUpstreamFailure Code = "service.synthesize.upstream.failure"
	CodeServiceSummarizeUpstreamFailure  Code = "service.summarize.upstream.failure"
	CodeServiceRequestInvalid            Code = "service.request.invalid"

	CodeSessionStartInvalidInput Code = "agent.session.start.invalid_input"
	CodeSessionTurnInvalidInput  Code = "agent.session.turn.invalid_input"
	CodeSessionGetNotFound       Code = "agent.session.get.not_found"
	CodeSessionTurnInactive      Code = "agent.session.turn.inactive"
	CodeJournalGetNotFound       Code = "agent.journal.get.not_found"
	CodeJournalInvalidInput      Code = "agent.journal.write.invalid_input"
	CodeMessageGetNotFound       Code = "agent.message.get.not_found"
	CodeMessageEditInvalidInput  Code = "agent.message.edit.invalid_input"
	CodeAgentLaneClosed          Code = "agent.lane.closed.failure"
	CodeAgentLanePanic           Code = "agent.lane.panic.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerRateLimited     Code = "server.request.budget_exceeded"

	CodeSecretInvalidInput    Code = "secret.input.invalid_input"
	CodeSecretNotFound        Code = "secret.keyring.not_found"
	CodeSecretStoreFailure    Code = "secret.keyring.store.failure"
	CodeSecretDeleteFailure   Code = "secret.keyring.delete.failure"
	CodeSecretResolveFailure  Code = "secret.resolve.failure"
	CodeSecretListFailure     Code = "secret.keyring.list.failure"
	CodeTelemetrySetupFailure Code = "telemetry.setup.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLIServerDown   Code = "cli.server.unavailable"
	CodeCLIRequest      Code = "cli.request.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldOwnerID(value string) Attr {
	return Field("owner_id", value)
}

func FieldJournalID(value string) Attr {
	return Field("journal_id", value)
}

func FieldMessageID(value string) Attr {
	return Field("message_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// Reclassify wraps err under code. Unlike Wrap, the codes carried by err are
// hidden from CodeOf, so the returned error classifies as code. errors.Is
// still matches err and anything it wraps (context.Canceled for example).
func Reclassify(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(detached{cause: err}, "%s", msg)
}

// detached carries the cause's text and errors.Is identity but exposes no
// Unwrap, which keeps oops from descending into the cause's codes.
type detached struct {
	cause error
}

func (d detached) Error() string { return d.cause.Error() }

func (d detached) Is(target error) bool { return stderrors.Is(d.cause, target) }

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsInactive reports whether err rejects an operation on an ended session.
func IsInactive(err error) bool {
	return reason(CodeOf(err)) == "inactive"
}

func IsBudgetExceeded(err error) bool {
	r := reason(CodeOf(err))
	return r == "exceeded" || r == "budget_exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// IsServiceError reports whether err is a failure of an external speech or
// language service.
func IsServiceError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "service.") && IsUpstreamFailure(err)
}

func IsTranscriptionError(err error) bool {
	return HasCode(err, CodeServiceTranscribeUpstreamFailure)
}

func IsGenerationError(err error) bool {
	return HasCode(err, CodeServiceGenerateUpstreamFailure)
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err), IsInactive(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
