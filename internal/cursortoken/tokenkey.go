// Package cursortoken implements Cursor JWT credential parsing and the
// refcounted intern pool described in §4.1.
package cursortoken

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// keyAlphabet is the non-standard 64-character alphabet TokenKey.String
// uses; it is NOT the URL-safe base64 alphabet. Preserved exactly per
// spec §9.
const keyAlphabet = "-AaBbCcDdEeFfGgHhIiJjKkLlMmNnOoPpQqRrSsTtUuVvWwXxYyZz1032547698_"

var keyEnc = base64.NewEncoding(keyAlphabet).WithPadding(base64.NoPadding)

// TokenKey is the stable (user_id, randomness) identity used for interning,
// hashing, and log/bundle cross-reference.
type TokenKey struct {
	UserID     [16]byte
	Randomness [8]byte
}

// bytes24 returns the 24-byte concatenation of UserID and Randomness.
func (k TokenKey) bytes24() [24]byte {
	var b [24]byte
	copy(b[:16], k.UserID[:])
	copy(b[16:], k.Randomness[:])
	return b
}

// String renders the key as 32 characters of the custom base64 alphabet
// over its 24 raw bytes.
func (k TokenKey) String() string {
	b := k.bytes24()
	return keyEnc.EncodeToString(b[:])
}

// DashString renders the alternate "<uid_decimal>-<rand_decimal>" form.
func (k TokenKey) DashString() string {
	uid := new(big.Int).SetBytes(k.UserID[:])
	rnd := new(big.Int).SetBytes(k.Randomness[:])
	return uid.String() + "-" + rnd.String()
}

// ParseTokenKey accepts either serialization form produced by String or
// DashString.
func ParseTokenKey(s string) (TokenKey, error) {
	if len(s) == 32 {
		if b, err := keyEnc.DecodeString(s); err == nil && len(b) == 24 {
			var k TokenKey
			copy(k.UserID[:], b[:16])
			copy(k.Randomness[:], b[16:])
			return k, nil
		}
	}
	if i := strings.LastIndexByte(s, '-'); i > 0 && i < len(s)-1 {
		uidPart, rndPart := s[:i], s[i+1:]
		uid, ok1 := new(big.Int).SetString(uidPart, 10)
		rnd, ok2 := new(big.Int).SetString(rndPart, 10)
		if ok1 && ok2 {
			var k TokenKey
			putBigEndian(k.UserID[:], uid)
			putBigEndian(k.Randomness[:], rnd)
			return k, nil
		}
	}
	return TokenKey{}, fmt.Errorf("cursortoken: invalid TokenKey %q", s)
}

// putBigEndian right-aligns n's big-endian bytes into dst, zero-padding on
// the left; n is assumed to fit (callers derive dst's width from the field
// width a JWT's randomness/user_id is defined over).
func putBigEndian(dst []byte, n *big.Int) {
	b := n.Bytes()
	if len(b) > len(dst) {
		b = b[len(b)-len(dst):]
	}
	copy(dst[len(dst)-len(b):], b)
}
