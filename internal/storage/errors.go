// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// ErrNotFound is returned when a referenced record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StoreError{Message: "not found"}

// ErrInvalidFeedback is returned when feedback fails validation.
var ErrInvalidFeedback = &StoreError{Message: "invalid feedback"}

// ErrInvalidMessage is returned when a message fails validation.
var ErrInvalidMessage = &StoreError{Message: "invalid message"}

// StoreError represents a storage error category. Errors wrapping a
// StoreError match it with errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
