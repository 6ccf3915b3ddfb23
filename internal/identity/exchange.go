package identity

import (
	cryptorand "crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// ExchangeKeySize is the byte length of an x25519 public or private key.
const ExchangeKeySize = 32

// ExchangeKeyPair is an x25519 key pair used to derive a shared secret with
// a remote peer during invite acceptance and hardware-fingerprint exchange.
type ExchangeKeyPair struct {
	Private [ExchangeKeySize]byte
	Public  [ExchangeKeySize]byte
}

// GenerateExchangeKeyPair creates a fresh x25519 key pair.
func GenerateExchangeKeyPair() (*ExchangeKeyPair, error) {
	var kp ExchangeKeyPair
	if _, err := cryptorand.Read(kp.Private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// SharedSecret computes the x25519 shared secret between this key pair's
// private half and a remote public key.
func (kp *ExchangeKeyPair) SharedSecret(remotePublic [ExchangeKeySize]byte) ([]byte, error) {
	return curve25519.X25519(kp.Private[:], remotePublic[:])
}
