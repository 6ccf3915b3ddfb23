package identity

import (
	"encoding/base64"

	"lukechampine.com/blake3"
)

// HashSize is the digest length used for node/edge signature hashing and
// daily-log bucket hashes (§3.3, §3.6).
const HashSize = 32

// Hash returns the blake3-256 digest of the concatenated inputs. Callers
// pass each logical field as a separate slice; Hash does not add framing
// between fields, so field boundaries must be fixed-width or otherwise
// unambiguous at the call site (see graph.signingMessage).
func Hash(parts ...[]byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RollingHasher incrementally folds an ordered sequence of rows into a
// single digest, used by the daily-log recompute (§4.6) to hash a bucket's
// rows without materialising them all in memory at once.
type RollingHasher struct {
	h *blake3.Hasher
}

// NewRollingHasher returns a fresh incremental hasher.
func NewRollingHasher() *RollingHasher {
	return &RollingHasher{h: blake3.New(HashSize, nil)}
}

// Write folds another row's bytes into the running digest. Order matters:
// callers must feed rows in the canonical (mdate, id) order for the result
// to be reproducible across peers.
func (r *RollingHasher) Write(p []byte) {
	r.h.Write(p)
}

// Sum returns the current digest without finalising the hasher.
func (r *RollingHasher) Sum() [HashSize]byte {
	var out [HashSize]byte
	copy(out[:], r.h.Sum(nil))
	return out
}

// ShortHashB16 returns the first 16 bytes of the blake3 digest of data,
// base64url-unpadded — the `hash()` SQL aggregate UDF's emission format (§6.3).
func ShortHashB16(data []byte) string {
	sum := blake3.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
