// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import "errors"

var (
	// ErrBackendUnavailable is returned when no backend is configured.
	ErrBackendUnavailable = errors.New("answer backend unavailable")

	// ErrEmptyAnswer is returned when a backend produced no text.
	ErrEmptyAnswer = errors.New("backend returned an empty answer")
)

// BackendError wraps a failure of a Backend operation.
type BackendError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *BackendError) Error() string {
	return e.Backend + " " + e.Op + ": " + e.Cause.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}
