// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

// WarnInsecurePermissions never reports anything on Windows. Access there
// is governed by ACLs, which mode bits do not reflect.
func WarnInsecurePermissions(...string) []string { return nil }
