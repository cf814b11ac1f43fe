// Package jwk models JSON Web Keys for the identity key material used across
// the signature and encryption envelope codecs.
package jwk

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// Key types and curves supported by the protocol.
const (
	KtyOKP = "OKP"
	KtyEC  = "EC"

	CrvEd25519 = "Ed25519"
	CrvX25519  = "X25519"
	CrvP256    = "P-256"
)

// ErrKeyTypeMismatch is returned when a key's kty/crv does not match the
// operation requested for it.
var ErrKeyTypeMismatch = errors.New("key type mismatch")

// JWK is a JSON Web Key. Key material is base64url (unpadded). The kid is a
// UUID assigned at generation time, distinct from any DID-scoped
// verification-method id built from it.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// KeyPair holds the two halves of a generated key. The private half never
// leaves the owning process.
type KeyPair struct {
	Public  JWK `json:"public"`
	Private JWK `json:"private"`
}

// Public strips the private material from a JWK.
func (k JWK) Public() JWK {
	pub := k
	pub.D = ""
	return pub
}

// IsPrivate reports whether the key carries private material.
func (k JWK) IsPrivate() bool {
	return k.D != ""
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Ed25519PublicKey converts the JWK to an ed25519 public key.
func (k JWK) Ed25519PublicKey() (ed25519.PublicKey, error) {
	if k.Kty != KtyOKP || k.Crv != CrvEd25519 {
		return nil, fmt.Errorf("%w: expected OKP/Ed25519, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	x, err := decodeSegment(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	if len(x) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key length: %d", len(x))
	}
	return ed25519.PublicKey(x), nil
}

// Ed25519PrivateKey converts the JWK to an ed25519 private key. The d
// parameter carries the seed, per RFC 8037.
func (k JWK) Ed25519PrivateKey() (ed25519.PrivateKey, error) {
	if k.Kty != KtyOKP || k.Crv != CrvEd25519 {
		return nil, fmt.Errorf("%w: expected OKP/Ed25519, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	d, err := decodeSegment(k.D)
	if err != nil {
		return nil, fmt.Errorf("failed to decode d: %w", err)
	}
	if len(d) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid Ed25519 seed length: %d", len(d))
	}
	return ed25519.NewKeyFromSeed(d), nil
}

// ECDSAPublicKey converts a P-256 JWK to an ECDSA public key for ES256.
func (k JWK) ECDSAPublicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != KtyEC || k.Crv != CrvP256 {
		return nil, fmt.Errorf("%w: expected EC/P-256, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	x, err := decodeSegment(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	y, err := decodeSegment(k.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// ECDSAPrivateKey converts a P-256 JWK to an ECDSA private key for ES256.
func (k JWK) ECDSAPrivateKey() (*ecdsa.PrivateKey, error) {
	pub, err := k.ECDSAPublicKey()
	if err != nil {
		return nil, err
	}
	d, err := decodeSegment(k.D)
	if err != nil {
		return nil, fmt.Errorf("failed to decode d: %w", err)
	}
	return &ecdsa.PrivateKey{
		PublicKey: *pub,
		D:         new(big.Int).SetBytes(d),
	}, nil
}

// ECDHPublicKey converts a P-256 key-agreement JWK to an ecdh public key.
func (k JWK) ECDHPublicKey() (*ecdh.PublicKey, error) {
	if k.Kty != KtyEC || k.Crv != CrvP256 {
		return nil, fmt.Errorf("%w: expected EC/P-256, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	x, err := decodeSegment(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	y, err := decodeSegment(k.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}
	// Uncompressed point encoding: 0x04 || X || Y, coordinates padded to 32 bytes.
	point := make([]byte, 0, 65)
	point = append(point, 0x04)
	point = append(point, leftPad(x, 32)...)
	point = append(point, leftPad(y, 32)...)
	pub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("invalid P-256 point: %w", err)
	}
	return pub, nil
}

// ECDHPrivateKey converts a P-256 key-agreement JWK to an ecdh private key.
func (k JWK) ECDHPrivateKey() (*ecdh.PrivateKey, error) {
	if k.Kty != KtyEC || k.Crv != CrvP256 {
		return nil, fmt.Errorf("%w: expected EC/P-256, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	d, err := decodeSegment(k.D)
	if err != nil {
		return nil, fmt.Errorf("failed to decode d: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(leftPad(d, 32))
	if err != nil {
		return nil, fmt.Errorf("invalid P-256 scalar: %w", err)
	}
	return priv, nil
}

// X25519PublicKeyBytes returns the raw 32-byte X25519 public key.
func (k JWK) X25519PublicKeyBytes() ([]byte, error) {
	if k.Kty != KtyOKP || k.Crv != CrvX25519 {
		return nil, fmt.Errorf("%w: expected OKP/X25519, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	x, err := decodeSegment(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	if len(x) != 32 {
		return nil, fmt.Errorf("invalid X25519 public key length: %d", len(x))
	}
	return x, nil
}

// X25519PrivateKeyBytes returns the raw 32-byte X25519 scalar.
func (k JWK) X25519PrivateKeyBytes() ([]byte, error) {
	if k.Kty != KtyOKP || k.Crv != CrvX25519 {
		return nil, fmt.Errorf("%w: expected OKP/X25519, got %s/%s", ErrKeyTypeMismatch, k.Kty, k.Crv)
	}
	d, err := decodeSegment(k.D)
	if err != nil {
		return nil, fmt.Errorf("failed to decode d: %w", err)
	}
	if len(d) != 32 {
		return nil, fmt.Errorf("invalid X25519 private key length: %d", len(d))
	}
	return d, nil
}

// SamePublicKey reports whether two JWKs carry the same public key material,
// compared by the (x, crv, kty) triple.
func SamePublicKey(a, b JWK) bool {
	return a.Kty == b.Kty && a.Crv == b.Crv && a.X == b.X && a.Y == b.Y
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}
