// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apperr defines the typed error taxonomy shared by every
// stepflow component. Handlers never let a raw panic or an unadorned
// error cross the tool/resource boundary — they convert to this type and
// the transport renders it as a structured {success:false, error} or
// {error} envelope.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the categories the orchestrator's
// callers can reason about and recover from.
type Kind string

const (
	// KindInput covers malformed arguments, missing required fields, and
	// unknown workflow/agent/resource references supplied by the caller.
	KindInput Kind = "input"
	// KindState covers illegal state-machine transitions and step-status
	// mismatches: InvalidTransition, ExecutionNotFound,
	// DuplicateExecutionId, InvalidStepStatus.
	KindState Kind = "state"
	// KindToken covers continuation-token decode/validation failures:
	// Malformed, Schema, Expired, FutureIssued, TokenStepMismatch.
	KindToken Kind = "token"
	// KindStore covers migration failures, constraint violations, and
	// other storage I/O errors.
	KindStore Kind = "store"
	// KindContent covers a missing or unparseable workflow/agent
	// definition from the ContentProvider.
	KindContent Kind = "content"
	// KindInternal covers any other unanticipated failure.
	KindInternal Kind = "internal"
)

// Reason enumerates the specific, stable failure reasons tests and callers
// match on. Not every Kind needs a Reason; Reason is most useful for the
// token and state taxonomies where §7/§8 name exact identifiers.
type Reason string

const (
	ReasonMalformed             Reason = "malformed"
	ReasonSchema                Reason = "schema"
	ReasonExpired               Reason = "expired"
	ReasonFutureIssued          Reason = "future_issued"
	ReasonTokenStepMismatch     Reason = "token_step_mismatch"
	ReasonInvalidTransition     Reason = "invalid_transition"
	ReasonExecutionNotFound     Reason = "execution_not_found"
	ReasonDuplicateExecutionID  Reason = "duplicate_execution_id"
	ReasonInvalidStepStatus     Reason = "invalid_step_status"
	ReasonDuplicateStep         Reason = "duplicate_step"
	ReasonDuplicateProjectPath  Reason = "duplicate_project_path"
	ReasonNone                  Reason = ""
)

// Error is the structured error type propagated out of every stepflow
// component. It always carries a Kind and a human-readable Message, and
// optionally a Reason and a wrapped cause for %w unwrapping.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with no specific reason.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithReason attaches a stable Reason to an Error, returning it for
// chaining: apperr.New(apperr.KindToken, "token expired").WithReason(apperr.ReasonExpired).
func (e *Error) WithReason(reason Reason) *Error {
	e.Reason = reason
	return e
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// ReasonOf extracts the Reason carried by err, or ReasonNone if err is not
// a tagged *Error.
func ReasonOf(err error) Reason {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ReasonNone
}

// Envelope is the JSON shape every tool/resource handler emits on failure.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// ToEnvelope converts any error into the wire-level failure envelope
// described in spec §7 ("Tool handlers catch every error and emit
// {success:false, error: message}"). Errors that are not *Error are
// reported with Kind internal implicitly (the envelope omits Reason).
func ToEnvelope(err error) Envelope {
	env := Envelope{Success: false, Error: err.Error()}
	if reason := ReasonOf(err); reason != ReasonNone {
		env.Reason = string(reason)
	}
	return env
}
