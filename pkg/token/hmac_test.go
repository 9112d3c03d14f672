package token

import (
	"testing"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
)

func TestHMACCodec_GenerateAndValidate(t *testing.T) {
	c := NewHMACCodec("super-secret-test-key")

	tok, err := c.Generate("exec-1", "plan")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	payload, err := c.Validate(tok)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if payload.ExecutionID != "exec-1" || payload.StepName != "plan" {
		t.Errorf("Validate() payload = %+v, want execution_id=exec-1 step_name=plan", payload)
	}
}

func TestHMACCodec_RejectsWrongKey(t *testing.T) {
	signed := NewHMACCodec("key-a")
	tok, err := signed.Generate("exec-1", "plan")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	verifier := NewHMACCodec("key-b")
	if _, err := verifier.Validate(tok); err == nil {
		t.Error("Validate() error = nil, want signature verification failure with the wrong key")
	}
}

func TestHMACCodec_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-25 * time.Hour)
	c := NewHMACCodec("super-secret-test-key", WithClock(func() time.Time { return issuedAt }))

	tok, err := c.Generate("exec-1", "plan")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	verifier := NewHMACCodec("super-secret-test-key")
	_, err = verifier.Validate(tok)
	if apperr.ReasonOf(err) != apperr.ReasonExpired {
		t.Errorf("Validate(expired) reason = %v, want Expired", apperr.ReasonOf(err))
	}
}
