// Package identity implements Discret's cryptographic primitives: Ed25519
// signing, x25519 key exchange, blake3 hashing and base64url encoding (C1).
package identity

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"encoding/base64"
	"errors"
)

// SignatureSize is the fixed length of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// VerifyingKeySize is the fixed length of an Ed25519 public key — the peer identity.
const VerifyingKeySize = ed25519.PublicKeySize

// VerifyingKey is a peer's Ed25519 public key.
type VerifyingKey [VerifyingKeySize]byte

// SigningKey is an Ed25519 private key held only by its owning peer.
type SigningKey struct {
	priv ed25519.PrivateKey
	pub  VerifyingKey
}

// ErrInvalidKeyMaterial is returned when key material is the wrong length.
var ErrInvalidKeyMaterial = errors.New("identity: invalid key material")

// GenerateSigningKey creates a fresh Ed25519 key pair from the system CSPRNG.
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, err
	}
	sk := &SigningKey{priv: priv}
	copy(sk.pub[:], pub)
	return sk, nil
}

// SigningKeyFromSeed derives a deterministic Ed25519 key pair from 32 bytes
// of key material, as supplied by the embedder at Discret::new (§6.1).
func SigningKeyFromSeed(seed []byte) (*SigningKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeyMaterial
	}
	priv := ed25519.NewKeyFromSeed(seed)
	sk := &SigningKey{priv: priv}
	copy(sk.pub[:], priv.Public().(ed25519.PublicKey))
	return sk, nil
}

// Public returns the signing key's verifying key (peer identity).
func (sk *SigningKey) Public() VerifyingKey {
	return sk.pub
}

// Sign produces a 64-byte signature over msg.
func (sk *SigningKey) Sign(msg []byte) [SignatureSize]byte {
	var sig [SignatureSize]byte
	copy(sig[:], ed25519.Sign(sk.priv, msg))
	return sig
}

// Verify reports whether sig is a valid Ed25519 signature over msg by vk.
func Verify(vk VerifyingKey, msg []byte, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(vk[:]), msg, sig)
}

// String renders the verifying key as base64url, matching handle.verifying_key() (§6.1).
func (vk VerifyingKey) String() string {
	return base64.RawURLEncoding.EncodeToString(vk[:])
}

// ParseVerifyingKey decodes a base64url-encoded verifying key.
func ParseVerifyingKey(s string) (VerifyingKey, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return VerifyingKey{}, err
	}
	if len(b) != VerifyingKeySize {
		return VerifyingKey{}, ErrInvalidKeyMaterial
	}
	var vk VerifyingKey
	copy(vk[:], b)
	return vk, nil
}

// IsZero reports whether vk is the zero value (no identity set).
func (vk VerifyingKey) IsZero() bool {
	return vk == VerifyingKey{}
}
