package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesExistingCode(t *testing.T) {
	inner := New(CodeAlreadyRevoked, "credential already revoked")
	wrapped := Wrap(inner, CodeInternal, "revoke failed")

	assert.True(t, HasCode(wrapped, CodeAlreadyRevoked))
	assert.False(t, HasCode(wrapped, CodeInternal))
}

func TestWrap_AssignsCodeToPlainError(t *testing.T) {
	plain := errors.New("connection refused")
	wrapped := Wrap(plain, CodeUnavailable, "node unreachable")

	assert.True(t, HasCode(wrapped, CodeUnavailable))
	assert.ErrorIs(t, wrapped, plain)
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "token 42 not minted"))
	assert.ErrorIs(t, err, New(CodeNotFound, ""))
	assert.NotErrorIs(t, err, New(CodeTxReverted, ""))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeTxPending, CodeOf(New(CodeTxPending, "awaiting confirmation")))
	require.Equal(t, CodeInternal, CodeOf(errors.New("anything")))
	require.Equal(t, CodeInternal, CodeOf(nil))
}

func TestError_MessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeLengthMismatch}
	assert.Equal(t, "length_mismatch", err.Error())
}
