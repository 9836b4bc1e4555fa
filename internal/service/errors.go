// Package service provides the user-facing mutation entry points: validate,
// reserve, persist, then dispatch the asynchronous worker.
package service

import "errors"

// ErrInvalidInput indicates an empty, whitespace-only or oversized prompt, or
// an unsupported resolution. Rejected synchronously with no side effects.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotOwner indicates a record that exists but belongs to another user.
var ErrNotOwner = errors.New("not owner")
