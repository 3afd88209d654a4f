// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telemetry

import (
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// FilterConfig declares how sensitive values are masked before they are
// attached to spans.
type FilterConfig struct {
	Mask     string
	Patterns []string
}

// Filter masks credential-looking substrings.
type Filter struct {
	mask     string
	patterns []*regexp.Regexp
}

var defaultPatterns = []string{
	`(?i)sk-[a-z0-9_\-]{6,}`,
	`(?i)(api[_-]?key|token|secret|bearer)[\s:=]+[a-z0-9\-_.]{8,}`,
	`AIza[0-9A-Za-z\-_]{20,}`,
}

// NewFilter compiles the default patterns plus cfg.Patterns.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	mask := strings.TrimSpace(cfg.Mask)
	if mask == "" {
		mask = "[redacted]"
	}

	seen := map[string]struct{}{}
	compiled := make([]*regexp.Regexp, 0, len(defaultPatterns)+len(cfg.Patterns))
	for _, raw := range append(append([]string{}, defaultPatterns...), cfg.Patterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, wrenerr.Wrapf(err, wrenerr.CodeTelemetrySetupFailure, "compile filter %q", raw)
		}
		compiled = append(compiled, re)
		seen[raw] = struct{}{}
	}
	return &Filter{mask: mask, patterns: compiled}, nil
}

// MaskText replaces every matching segment of value.
func (f *Filter) MaskText(value string) string {
	if f == nil || value == "" {
		return value
	}
	for _, re := range f.patterns {
		value = re.ReplaceAllString(value, f.mask)
	}
	return value
}

// MaskAttributes returns a sanitized copy of attrs.
func (f *Filter) MaskAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	if f == nil || len(attrs) == 0 {
		return attrs
	}
	clean := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		switch attr.Value.Type() {
		case attribute.STRING:
			clean[i] = attribute.String(string(attr.Key), f.MaskText(attr.Value.AsString()))
		case attribute.STRINGSLICE:
			values := attr.Value.AsStringSlice()
			masked := make([]string, len(values))
			for j, v := range values {
				masked[j] = f.MaskText(v)
			}
			clean[i] = attribute.StringSlice(string(attr.Key), masked)
		default:
			clean[i] = attr
		}
	}
	return clean
}
