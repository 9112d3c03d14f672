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

package token

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

// hmacCodec is the §9-noted upgrade path: a keyed-MAC token variant
// behind the same Codec interface as the plain codec. It carries the
// same payload fields as JWT claims and signs them with HS256, so a
// token cannot be forged even without the Store's current-step
// cross-check.
type hmacCodec struct {
	secret    []byte
	ttl       time.Duration
	clockSkew time.Duration
	now       Clock
}

// NewHMACCodec constructs a Codec that signs tokens with HS256 using
// secret. Use this instead of New when the deployment wants tokens to
// be unforgeable independent of the Store's current-step cross-check.
func NewHMACCodec(secret string, opts ...Option) Codec {
	c := &codec{ttl: DefaultTTL, clockSkew: 0, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return &hmacCodec{
		secret:    []byte(secret),
		ttl:       c.ttl,
		clockSkew: c.clockSkew,
		now:       c.now,
	}
}

func (c *hmacCodec) Generate(executionID, stepName string) (string, error) {
	if executionID == "" || stepName == "" {
		return "", apperr.New(apperr.KindInput, "token: execution_id and step_name are required").WithReason(apperr.ReasonMalformed)
	}

	issuedAt := c.now().UTC()
	token, err := jwt.NewBuilder().
		Claim("execution_id", executionID).
		Claim("step_name", stepName).
		Claim("nonce", uuid.New().String()).
		IssuedAt(issuedAt).
		Expiration(issuedAt.Add(c.ttl)).
		Build()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "token: building jwt")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, c.secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "token: signing jwt")
	}
	return string(signed), nil
}

func (c *hmacCodec) Validate(raw string) (Payload, error) {
	now := c.now().UTC()
	parsed, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKey(jwa.HS256, c.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(c.clockSkew),
	)
	if err != nil {
		return Payload{}, classifyJWTError(err)
	}

	executionID, _ := parsed.Get("execution_id")
	stepName, _ := parsed.Get("step_name")
	nonce, _ := parsed.Get("nonce")

	execIDStr, _ := executionID.(string)
	stepNameStr, _ := stepName.(string)
	nonceStr, _ := nonce.(string)

	if execIDStr == "" || stepNameStr == "" || nonceStr == "" {
		return Payload{}, apperr.New(apperr.KindToken, "token: missing required claim").WithReason(apperr.ReasonSchema)
	}

	return Payload{
		ExecutionID: execIDStr,
		StepName:    stepNameStr,
		IssuedAt:    parsed.IssuedAt(),
		Nonce:       nonceStr,
	}, nil
}

// classifyJWTError maps jwx's parse/validate errors onto the §4.1 token
// reason taxonomy. jwx does not export sentinel errors for every case, so
// this inspects the error text; callers outside this package only ever
// see the resulting *apperr.Error and its Reason.
func classifyJWTError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "exp not satisfied") || strings.Contains(msg, "is expired"):
		return apperr.Wrap(apperr.KindToken, err, "token: expired").WithReason(apperr.ReasonExpired)
	case strings.Contains(msg, "iat not satisfied") || strings.Contains(msg, "before the "):
		return apperr.Wrap(apperr.KindToken, err, "token: issued_at is in the future").WithReason(apperr.ReasonFutureIssued)
	case strings.Contains(msg, "failed to parse") || strings.Contains(msg, "failed to verify") || strings.Contains(msg, "could not verify"):
		return apperr.Wrap(apperr.KindToken, err, "token: signature or encoding invalid").WithReason(apperr.ReasonMalformed)
	default:
		return apperr.Wrap(apperr.KindToken, err, "token: invalid").WithReason(apperr.ReasonSchema)
	}
}
