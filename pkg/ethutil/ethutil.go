// Package ethutil validates and parses wire-level chain identifiers before
// they reach any contract or node call. Malformed input is rejected here with
// a validation error rather than forwarded to the chain.
package ethutil

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

const txHashHexLen = 64

// ParseAddress parses a 0x-prefixed, 40-hex-character address. The prefix is
// mandatory; common.IsHexAddress alone would accept bare hex.
func ParseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("invalid address %q: want 0x-prefixed 40 hex characters", s))
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("invalid address %q: want 0x-prefixed 40 hex characters", s))
	}
	return common.HexToAddress(s), nil
}

// ParseTxHash parses a 0x-prefixed, 64-hex-character transaction hash.
func ParseTxHash(s string) (common.Hash, error) {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok {
		hex, ok = strings.CutPrefix(s, "0X")
	}
	if !ok || len(hex) != txHashHexLen || !isHex(hex) {
		return common.Hash{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("invalid transaction hash %q: want 0x-prefixed 64 hex characters", s))
	}
	return common.HexToHash(s), nil
}

// IsZeroAddress reports whether addr is the zero address, which contracts
// treat as invalid input.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
