package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type credentialRejectedError struct{ msg string }

func (e *credentialRejectedError) Error() string { return e.msg }

type portalRateLimitError struct{}

func (e *portalRateLimitError) Error() string { return "too many requests" }

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestClassify_TypedErrorTagWins(t *testing.T) {
	kind, code := Classify(Permanent("AUTH_001", "login rejected"))
	assert.Equal(t, ErrorPermanent, kind)
	assert.Equal(t, "AUTH_001", code)

	kind, code = Classify(Transient("", "blip"))
	assert.Equal(t, ErrorTransient, kind)
	assert.NotEmpty(t, code)

	// Tag survives wrapping.
	wrapped := fmt.Errorf("run handler: %w", NewRateLimitError("cooldown"))
	kind, code = Classify(wrapped)
	assert.Equal(t, ErrorRetriable, kind)
	assert.Equal(t, "RATE_LIMIT", code)
}

func TestClassify_Timeouts(t *testing.T) {
	kind, code := Classify(context.DeadlineExceeded)
	assert.Equal(t, ErrorTransient, kind)
	assert.Equal(t, "TIMEOUT", code)

	kind, code = Classify(fakeTimeoutError{})
	assert.Equal(t, ErrorTransient, kind)
	assert.Equal(t, "TIMEOUT", code)
}

func TestClassify_StaleElementPatterns(t *testing.T) {
	for _, msg := range []string{
		"stale element reference: element is not attached to the page document",
		"the Element Reference Is Stale",
		"element is not attached",
	} {
		kind, code := Classify(errors.New(msg))
		assert.Equal(t, ErrorTransient, kind, msg)
		assert.Equal(t, "STALE_ELEMENT", code, msg)
	}
}

type noSuchElementError struct{}

func (noSuchElementError) Error() string { return "no such element: #btn_cotizar" }

func TestClassify_NotFoundLookupsAreTransient(t *testing.T) {
	kind, code := Classify(noSuchElementError{})
	assert.Equal(t, ErrorTransient, kind)
	assert.Equal(t, "NO_SUCH_ELEMENT", code)

	// Message-only signals work for bare errors too.
	kind, _ = Classify(errors.New("selector '#frm' not found on page"))
	assert.Equal(t, ErrorTransient, kind)
}

func TestClassify_NameHeuristics(t *testing.T) {
	kind, code := Classify(&credentialRejectedError{msg: "bad password"})
	assert.Equal(t, ErrorPermanent, kind)
	assert.Equal(t, "CREDENTIAL_REJECTED", code)

	kind, code = Classify(&portalRateLimitError{})
	assert.Equal(t, ErrorRetriable, kind)
	assert.Equal(t, "PORTAL_RATE_LIMIT", code)
}

func TestClassify_UnknownDefaultsToRetriable(t *testing.T) {
	kind, code := Classify(errors.New("something odd happened"))
	assert.Equal(t, ErrorRetriable, kind)
	assert.Equal(t, "UNKNOWN", code)
}

func TestCodeFromError_StripsErrorSuffix(t *testing.T) {
	_, code := Classify(&credentialRejectedError{msg: "x"})
	// CamelCase converts to UPPER_SNAKE and the Error suffix is dropped.
	assert.Equal(t, "CREDENTIAL_REJECTED", code)
}
