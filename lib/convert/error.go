// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the service's error taxonomy. Kinds are wire values: they
// appear verbatim in the JSON error payload and are part of the API.
type Kind string

const (
	// KindInvalidInput: missing, empty, or oversized upload, or a
	// declared filename that is not a DWG. Rejected before the
	// engine is ever invoked.
	KindInvalidInput Kind = "InvalidInput"

	// KindResourceExhausted: workspace allocation failed (no space,
	// no unique name).
	KindResourceExhausted Kind = "ResourceExhausted"

	// KindEngineFailure: the engine ran and reported or implied
	// failure.
	KindEngineFailure Kind = "EngineFailure"

	// KindTimedOut: the engine exceeded the per-conversion time
	// budget and was killed.
	KindTimedOut Kind = "TimedOut"

	// KindOverloaded: admission was rejected because the concurrency
	// limit and wait queue are both full.
	KindOverloaded Kind = "Overloaded"

	// KindCancelled: the client disconnected or the service is
	// shutting down. Not a client-visible error — the response is
	// simply aborted.
	KindCancelled Kind = "Cancelled"

	// KindInternal: an unexpected fault. The client gets a generic
	// message; detail stays in the logs.
	KindInternal Kind = "InternalError"
)

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindResourceExhausted:
		return http.StatusInsufficientStorage
	case KindEngineFailure:
		return http.StatusBadGateway
	case KindTimedOut:
		return http.StatusGatewayTimeout
	case KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified conversion failure. Message is safe to return
// to the client: it never contains filesystem paths, raw signals, or
// stack traces. The wrapped cause, when present, is for logs only.
type Error struct {
	Kind    Kind
	Message string

	// ExitCode is the engine's exit code for KindEngineFailure, -1
	// otherwise.
	ExitCode int

	cause error
}

// NewError creates an Error with a client-safe message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, ExitCode: -1}
}

// WrapError creates an Error that records cause for logging while
// presenting only message to the client.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, ExitCode: -1, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// ErrInputTooLarge marks a body read that exceeded the configured
// upload limit. The HTTP layer wraps the request body so that an
// overflow surfaces as this sentinel; the orchestrator classifies it
// as KindInvalidInput without needing to know about HTTP.
var ErrInputTooLarge = errors.New("input exceeds the configured size limit")

// Classify coerces any error into an *Error. Errors that are already
// classified pass through; everything else downgrades to KindInternal
// with a generic message, so unexpected faults never leak detail past
// the orchestrator boundary.
func Classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return WrapError(KindInternal, "internal error", err)
}
