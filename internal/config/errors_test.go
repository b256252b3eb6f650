package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewKernelError(KindAdapter, "gateway.getCandles", cause)

	assert.True(t, errors.Is(err, cause))
	assert.ErrorContains(t, err, "gateway.getCandles")
	assert.ErrorContains(t, err, "adapter")
}

func TestIsKind_MatchesWrappedKernelError(t *testing.T) {
	base := NewKernelError(KindContract, "lifecycle.validate", errors.New("missing symbol"))
	wrapped := fmt.Errorf("tick failed: %w", base)

	assert.True(t, IsKind(wrapped, KindContract))
	assert.False(t, IsKind(wrapped, KindFatal))
}

func TestIsKind_FalseForPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("plain"), KindRuntime))
}
