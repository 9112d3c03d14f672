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

// Package token implements the continuation-token codec (C1): opaque,
// single-use tokens that bind a specific execution to a specific pending
// step. A token is not a MAC in the plain Codec — unforgeability is
// provided structurally by the step executor's current-step cross-check.
// Callers that need a keyed variant use NewHMACCodec, which implements
// the same Codec interface with an additional signature field.
package token

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// DefaultTTL is the token lifetime mandated by the continuation-token
// contract: tokens older than this are rejected irrespective of Store
// state.
const DefaultTTL = 24 * time.Hour

// Payload is the decoded content of a continuation token.
type Payload struct {
	ExecutionID string    `json:"execution_id"`
	StepName    string    `json:"step_name"`
	IssuedAt    time.Time `json:"issued_at"`
	Nonce       string    `json:"nonce"`
}

// Codec generates and validates continuation tokens.
type Codec interface {
	// Generate produces an opaque token binding executionID to stepName.
	// Both arguments must be non-empty.
	Generate(executionID, stepName string) (string, error)
	// Validate decodes and checks token, returning its Payload on success
	// or an *apperr.Error of KindToken with the specific Reason on
	// failure (Malformed, Schema, FutureIssued, Expired).
	Validate(token string) (Payload, error)
}

// Clock abstracts time.Now so tests can control issued_at/expiry math.
type Clock func() time.Time

// codec is the plain (unsigned) implementation of the Codec interface.
// It is the default per the token contract: the codec is not a MAC in
// this revision.
type codec struct {
	ttl       time.Duration
	clockSkew time.Duration
	now       Clock
}

// Option configures a codec constructed by New.
type Option func(*codec)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *codec) { c.ttl = ttl }
}

// WithClockSkew sets the tolerance applied before rejecting a token
// whose issued_at appears to be in the future. Defaults to 0 per §4.1.
func WithClockSkew(skew time.Duration) Option {
	return func(c *codec) { c.clockSkew = skew }
}

// WithClock overrides the time source; used by tests.
func WithClock(now Clock) Option {
	return func(c *codec) { c.now = now }
}

// New constructs the plain opaque token Codec.
func New(opts ...Option) Codec {
	c := &codec{ttl: DefaultTTL, clockSkew: 0, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *codec) Generate(executionID, stepName string) (string, error) {
	if executionID == "" || stepName == "" {
		return "", apperr.New(apperr.KindInput, "token: execution_id and step_name are required").WithReason(apperr.ReasonMalformed)
	}

	payload := Payload{
		ExecutionID: executionID,
		StepName:    stepName,
		IssuedAt:    c.now().UTC(),
		Nonce:       uuid.New().String(),
	}
	return encode(payload)
}

func (c *codec) Validate(raw string) (Payload, error) {
	payload, err := decode(raw)
	if err != nil {
		return Payload{}, err
	}

	if payload.ExecutionID == "" || payload.StepName == "" || payload.IssuedAt.IsZero() || payload.Nonce == "" {
		return Payload{}, apperr.New(apperr.KindToken, "token: missing required field").WithReason(apperr.ReasonSchema)
	}

	now := c.now().UTC()
	if payload.IssuedAt.After(now.Add(c.clockSkew)) {
		return Payload{}, apperr.New(apperr.KindToken, "token: issued_at is in the future").WithReason(apperr.ReasonFutureIssued)
	}
	if now.Sub(payload.IssuedAt) > c.ttl {
		return Payload{}, apperr.New(apperr.KindToken, "token: expired").WithReason(apperr.ReasonExpired)
	}

	return payload, nil
}

func encode(payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "token: encoding payload")
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decode(raw string) (Payload, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.KindToken, err, "token: base64url decode failed").WithReason(apperr.ReasonMalformed)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, apperr.Wrap(apperr.KindToken, err, "token: JSON decode failed").WithReason(apperr.ReasonMalformed)
	}
	return payload, nil
}
