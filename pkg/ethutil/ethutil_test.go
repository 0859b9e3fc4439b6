package ethutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

func TestParseAddress_Valid(t *testing.T) {
	addr, err := ParseAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", addr.Hex())
}

func TestParseAddress_Rejected(t *testing.T) {
	cases := []string{
		"",
		"0x",
		"52908400098527886E0F7030069857D2E4169EE7",     // missing prefix
		"0x5290840009852788",                           // too short
		"0x52908400098527886E0F7030069857D2E4169EE7aa", // too long
		"0xZZ908400098527886E0F7030069857D2E4169EE7",   // non-hex
		"0x52908400098527886E0F7030069857D2E4169EE7 ",  // trailing space
	}
	for _, in := range cases {
		_, err := ParseAddress(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "input %q", in)
	}
}

func TestParseTxHash_Valid(t *testing.T) {
	raw := "0x" + strings.Repeat("ab", 32)
	h, err := ParseTxHash(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, h.Hex())
}

func TestParseTxHash_Rejected(t *testing.T) {
	cases := []string{
		"",
		strings.Repeat("ab", 32),        // missing prefix
		"0x" + strings.Repeat("ab", 31), // 62 chars
		"0x" + strings.Repeat("ab", 33), // 66 chars
		"0x" + strings.Repeat("zz", 32), // non-hex
	}
	for _, in := range cases {
		_, err := ParseTxHash(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "input %q", in)
	}
}

func TestIsZeroAddress(t *testing.T) {
	zero, err := ParseAddress("0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, IsZeroAddress(zero))

	nonzero, err := ParseAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, IsZeroAddress(nonzero))
}
