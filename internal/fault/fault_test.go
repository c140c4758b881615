package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/llm"
)

func TestKindCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		code int
		name string
	}{
		{KindInvalidInput, 400, "invalid_input"},
		{KindUnavailable, 503, "unavailable"},
		{KindTimeout, 504, "timeout"},
		{KindProvider, 502, "provider_error"},
		{KindInternal, 500, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.kind.Code())
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
}

func TestClassifyTypedFault(t *testing.T) {
	err := New(KindInvalidInput, "message is required")
	assert.Equal(t, KindInvalidInput, Classify(err))

	// survives wrapping
	wrapped := fmt.Errorf("handling chat.send: %w", err)
	assert.Equal(t, KindInvalidInput, Classify(wrapped))
}

func TestClassifyProviderError(t *testing.T) {
	err := &llm.ProviderError{Provider: "openai", Message: "overloaded", Code: 529}
	assert.Equal(t, KindProvider, Classify(err))

	wrapped := fmt.Errorf("answering: %w", err)
	assert.Equal(t, KindProvider, Classify(wrapped))
}

func TestClassifyContextErrors(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnavailable, Classify(context.Canceled))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, KindInternal, Classify(errors.New("boom")))
	assert.Equal(t, KindInternal, Classify(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindUnavailable, "vector store unreachable", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Contains(t, err.Error(), "vector store unreachable")
}

func TestSafeMessage(t *testing.T) {
	assert.Equal(t, "message is required", SafeMessage(Invalid("message is required")))

	// internal detail never leaks through the generic messages
	leaky := errors.New("password=hunter2 failed")
	msg := SafeMessage(leaky)
	assert.NotContains(t, msg, "hunter2")
	assert.Equal(t, "internal error", msg)

	provider := &llm.ProviderError{Provider: "openai", Message: "401 unauthorized", Code: 401}
	assert.Equal(t, "generation provider failed", SafeMessage(provider))
}
