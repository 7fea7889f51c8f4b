// Package crypto wraps Ed25519 key handling for the attested log: keypair
// generation, base64url public-key encoding, signing and verification.
// Private key bytes are held unexported inside KeyPair; callers sign
// through KeyPair.Sign. The one accessor that returns them is
// PrivateKeyBytes, which the keyring uses to persist keys.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid Ed25519 public key")
	ErrInvalidPrivateKey = errors.New("invalid Ed25519 private key")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// PublicKeyB64Len is the length of an unpadded base64url encoding of a
// 32-byte Ed25519 public key.
const PublicKeyB64Len = 43

// KeyPair holds an Ed25519 key pair. The private key is unexported; the
// only operations on it are Sign and PrivateKeyBytes (used by the keyring
// to persist keys it created).
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateKeyPair creates a new key pair from crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate Ed25519 key pair: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// KeyPairFromSeed derives a key pair deterministically from a 32-byte seed.
// Used for reproducible fixtures; production keys come from GenerateKeyPair.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidPrivateKey, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// KeyPairFromPrivateKey reconstructs a key pair from a stored 64-byte
// private key (Go's format, public key suffix included).
func KeyPairFromPrivateKey(priv ed25519.PrivateKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPrivateKey, ed25519.PrivateKeySize, len(priv))
	}
	cp := make(ed25519.PrivateKey, len(priv))
	copy(cp, priv)
	return &KeyPair{priv: cp, pub: cp.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the 64-byte Ed25519 signature over msg. Ed25519 signing is
// deterministic per RFC 8032.
func (kp *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(kp.priv, msg)
}

// PublicKey returns the 32-byte public key.
func (kp *KeyPair) PublicKey() ed25519.PublicKey {
	return kp.pub
}

// PublicKeyB64URL returns the unpadded base64url encoding of the public
// key (43 characters).
func (kp *KeyPair) PublicKeyB64URL() string {
	return base64.RawURLEncoding.EncodeToString(kp.pub)
}

// PrivateKeyBytes exposes the raw private key for persistence by the
// keyring. Callers outside key storage should never need this.
func (kp *KeyPair) PrivateKeyBytes() ed25519.PrivateKey {
	cp := make(ed25519.PrivateKey, len(kp.priv))
	copy(cp, kp.priv)
	return cp
}

// DecodePublicKey parses an unpadded base64url public key and checks that
// it decodes to a point on the edwards25519 curve. Length or encoding
// problems and bytes that are not a curve point fail with
// ErrInvalidPublicKey. Non-canonical encodings of valid points are
// accepted.
func DecodePublicKey(pubB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64url encoding", ErrInvalidPublicKey)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}
	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return nil, fmt.Errorf("%w: not a valid curve point", ErrInvalidPublicKey)
	}
	return ed25519.PublicKey(decoded), nil
}

// EncodePublicKey returns the unpadded base64url encoding of a raw public key.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pub)
}

// Verify checks an Ed25519 signature. Malformed keys or signatures return
// false rather than panicking.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// DecodeSignature parses an unpadded base64url Ed25519 signature.
func DecodeSignature(sigB64 string) ([]byte, error) {
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64url encoding", ErrInvalidSignature)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidSignature, ed25519.SignatureSize, len(sig))
	}
	return sig, nil
}

// EncodeSignature returns the unpadded base64url encoding of a signature.
func EncodeSignature(sig []byte) string {
	return base64.RawURLEncoding.EncodeToString(sig)
}
