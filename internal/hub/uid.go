package hub

import (
	"fmt"
	"math/bits"
	"strings"
)

// base58Alphabet is the digit set used for device UIDs (no 0, I, O or l).
const base58Alphabet = "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// ParseUID decodes a Base58 device UID such as "dXC".
//
// UIDs that decode to more than 32 bits are folded into the 32-bit
// identifier the hub uses on the wire.
func ParseUID(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidUID)
	}

	var value uint64
	for _, r := range s {
		digit := strings.IndexRune(base58Alphabet, r)
		if digit < 0 {
			return 0, fmt.Errorf("%w: %q contains %q", ErrInvalidUID, s, r)
		}
		hi, lo := bits.Mul64(value, 58)
		if hi != 0 {
			return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidUID, s)
		}
		sum, carry := bits.Add64(lo, uint64(digit), 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidUID, s)
		}
		value = sum
	}

	if value > 0xFFFFFFFF {
		value = foldUID(value)
	}
	return uint32(value), nil
}

// foldUID maps a 64-bit UID onto its 32-bit wire form.
func foldUID(uid uint64) uint64 {
	v1 := uid & 0xFFFFFFFF
	v2 := (uid >> 32) & 0xFFFFFFFF

	out := v1 & 0x00000FFF
	out |= (v1 & 0x0F000000) >> 12
	out |= (v2 & 0x0000003F) << 16
	out |= (v2 & 0x000F0000) << 6
	out |= (v2 & 0x3F000000) << 2
	return out
}

// FormatUID encodes a 32-bit UID as Base58 for logs and diagnostics.
func FormatUID(uid uint32) string {
	if uid == 0 {
		return string(base58Alphabet[0])
	}
	var buf [8]byte
	i := len(buf)
	for v := uint64(uid); v > 0; v /= 58 {
		i--
		buf[i] = base58Alphabet[v%58]
	}
	return string(buf[i:])
}
