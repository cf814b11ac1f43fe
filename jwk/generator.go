package jwk

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// KeyPairGenerator produces a fresh key pair for one purpose (signing or
// encryption). Implementations may back onto any crypto provider; the core
// logic stays backend-agnostic.
type KeyPairGenerator interface {
	Generate() (KeyPair, error)
}

// GeneratorFunc adapts a plain function to the KeyPairGenerator interface.
type GeneratorFunc func() (KeyPair, error)

// Generate implements KeyPairGenerator.
func (f GeneratorFunc) Generate() (KeyPair, error) {
	return f()
}

// Ed25519Generator generates Ed25519 signing key pairs.
type Ed25519Generator struct{}

// Generate implements KeyPairGenerator.
func (Ed25519Generator) Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}

	kid := uuid.NewString()
	private := JWK{
		Kty: KtyOKP,
		Crv: CrvEd25519,
		X:   encodeSegment(pub),
		D:   encodeSegment(priv.Seed()),
		Kid: kid,
	}

	return KeyPair{Public: private.Public(), Private: private}, nil
}

// X25519Generator generates X25519 key-agreement key pairs.
type X25519Generator struct{}

// Generate implements KeyPairGenerator.
func (X25519Generator) Generate() (KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate X25519 key: %w", err)
	}

	kid := uuid.NewString()
	private := JWK{
		Kty: KtyOKP,
		Crv: CrvX25519,
		X:   encodeSegment(priv.PublicKey().Bytes()),
		D:   encodeSegment(priv.Bytes()),
		Kid: kid,
	}

	return KeyPair{Public: private.Public(), Private: private}, nil
}

// P256Generator generates P-256 key pairs usable for either ES256 signing or
// ECDH-ES key agreement.
type P256Generator struct{}

// Generate implements KeyPairGenerator.
func (P256Generator) Generate() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate P-256 key: %w", err)
	}

	// Uncompressed point: 0x04 || X || Y.
	point := priv.PublicKey().Bytes()
	kid := uuid.NewString()
	private := JWK{
		Kty: KtyEC,
		Crv: CrvP256,
		X:   encodeSegment(point[1:33]),
		Y:   encodeSegment(point[33:65]),
		D:   encodeSegment(priv.Bytes()),
		Kid: kid,
	}

	return KeyPair{Public: private.Public(), Private: private}, nil
}
