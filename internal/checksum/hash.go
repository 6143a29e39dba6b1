// Package checksum manufactures the obfuscated timestamp header and the
// dual-hash checksum string Cursor expects on every upstream call (§4.2).
package checksum

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// safeHash gates whether Hash.Random passes its 32 random bytes through
// SHA-256 before use. The source's two call sites disagree on the default
// (true vs false); per spec §9 the most recent model-state-initialization
// default (true) is authoritative.
var safeHash atomic.Bool

func init() { safeHash.Store(true) }

// SetSafeHash configures the SAFE_HASH behavior at process startup.
func SetSafeHash(v bool) { safeHash.Store(v) }

// Hash is a 32-byte value, printed as 64 lowercase hex characters.
type Hash [32]byte

// NilHash is the all-zero hash.
var NilHash Hash

// IsNil reports whether h is the all-zero hash.
func (h Hash) IsNil() bool { return h == NilHash }

// RandomHash returns 32 random bytes, optionally re-hashed through SHA-256
// when SAFE_HASH is enabled.
func RandomHash() Hash {
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		panic(fmt.Sprintf("checksum: crypto/rand failed: %v", err))
	}
	if safeHash.Load() {
		h = Hash(sha256.Sum256(h[:]))
	}
	return h
}

// String renders the hash as 64 lowercase hex characters.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ParseHash decodes exactly 64 hex characters into a Hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != 64 {
		return Hash{}, fmt.Errorf("checksum: invalid hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("checksum: invalid hash hex: %w", err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// obfuscate applies the fixed XOR-chain + positional-increment transform
// used by both the timestamp header and (historically) the Rust source's
// standalone generate_checksum helper. prev seeds at 0xA5 (165).
func obfuscate(b []byte) {
	prev := byte(0xA5)
	for i := range b {
		old := b[i]
		b[i] = (old ^ prev) + byte(i%256)
		prev = b[i]
	}
}

func deobfuscate(b []byte) {
	prev := byte(0xA5)
	for i := range b {
		tmp := b[i]
		b[i] = (b[i] - byte(i%256)) ^ prev
		prev = tmp
	}
}

// kiloSecondBytes builds the canonical 6-byte pattern [h2,l2,h4,h3,h2,l2]
// for a kilo-second counter k: the high/low bytes of the 16-bit truncation,
// followed by all four bytes of the 32-bit truncation, high to low.
func kiloSecondBytes(k uint64) [6]byte {
	return [6]byte{
		byte((k >> 8) & 0xFF),
		byte(k & 0xFF),
		byte((k >> 24) & 0xFF),
		byte((k >> 16) & 0xFF),
		byte((k >> 8) & 0xFF),
		byte(k & 0xFF),
	}
}
