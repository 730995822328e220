package keys

import (
	"math/big"
	"strings"
)

// Base36 renders b as a lowercase base-36 number. Each leading zero
// byte becomes one leading '0' so distinct keys never collide.
func Base36(b []byte) string {
	zeros := 0
	for zeros < len(b) && b[zeros] == 0 {
		zeros++
	}
	prefix := strings.Repeat("0", zeros)
	if zeros == len(b) {
		return prefix
	}
	return prefix + new(big.Int).SetBytes(b[zeros:]).Text(36)
}
