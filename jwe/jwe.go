// Package jwe encrypts and decrypts compact JWE envelopes using ECDH-ES key
// agreement (X25519 or P-256) with a concat-KDF derived AES-256-GCM content
// key. The ephemeral public key in the protected header is the sender's
// static encryption key, which is what lets a recipient authenticate the
// sender against their published key-agreement methods.
package jwe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/decentrl/decentrl-go/jwk"
)

// Envelope algorithm identifiers.
const (
	AlgECDHES  = "ECDH-ES"
	EncA256GCM = "A256GCM"
)

const gcmTagSize = 16

var (
	// ErrMalformedEnvelope is returned when the compact serialization cannot
	// be parsed.
	ErrMalformedEnvelope = errors.New("malformed compact envelope")

	// ErrDecryptionFailed is returned when the content cannot be decrypted
	// with the derived key.
	ErrDecryptionFailed = errors.New("envelope decryption failed")
)

// ProtectedHeader is the integrity-protected envelope header. Kid is a
// call-site contract: contract-secret envelopes carry the recipient's
// key-agreement method id, mediator command and event envelopes carry the
// sender's so the receiving party can resolve who encrypted.
type ProtectedHeader struct {
	Alg string  `json:"alg"`
	Enc string  `json:"enc"`
	Kid string  `json:"kid"`
	Epk jwk.JWK `json:"epk"`
}

// Decryption is the result of opening an envelope.
type Decryption struct {
	Plaintext []byte
	Header    ProtectedHeader
}

// Encrypt seals plaintext for the recipient's public key-agreement key and
// returns the five-segment compact serialization. Both keys must be on the
// same curve; the encrypted-key segment is empty (direct key agreement).
func Encrypt(plaintext []byte, senderPrivateKey, recipientPublicKey jwk.JWK, keyID string) (string, error) {
	cek, err := agreeKey(senderPrivateKey, recipientPublicKey)
	if err != nil {
		return "", err
	}

	epk := senderPrivateKey.Public()
	epk.Kid = ""

	header := ProtectedHeader{
		Alg: AlgECDHES,
		Enc: EncA256GCM,
		Kid: keyID,
		Epk: epk,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal protected header: %w", err)
	}
	protected := base64.RawURLEncoding.EncodeToString(headerJSON)

	block, err := aes.NewCipher(cek)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to init GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	// The protected segment is the additional authenticated data.
	sealed := gcm.Seal(nil, iv, plaintext, []byte(protected))
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	segments := []string{
		protected,
		"", // no encrypted key for ECDH-ES direct agreement
		base64.RawURLEncoding.EncodeToString(iv),
		base64.RawURLEncoding.EncodeToString(ciphertext),
		base64.RawURLEncoding.EncodeToString(tag),
	}
	return strings.Join(segments, "."), nil
}

// Decrypt opens a compact envelope with the recipient's private key-agreement
// key. Sender authenticity is NOT checked here; use DecryptAndVerifySender
// when the envelope's origin matters.
func Decrypt(envelope string, ownPrivateKey jwk.JWK) (*Decryption, error) {
	parts := strings.Split(envelope, ".")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: expected 5 segments, got %d", ErrMalformedEnvelope, len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad header segment: %v", ErrMalformedEnvelope, err)
	}
	var header ProtectedHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: bad header JSON: %v", ErrMalformedEnvelope, err)
	}
	if header.Alg != AlgECDHES || header.Enc != EncA256GCM {
		return nil, fmt.Errorf("%w: unsupported alg/enc %s/%s", ErrMalformedEnvelope, header.Alg, header.Enc)
	}

	iv, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv segment: %v", ErrMalformedEnvelope, err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext segment: %v", ErrMalformedEnvelope, err)
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag segment: %v", ErrMalformedEnvelope, err)
	}

	cek, err := agreeKey(ownPrivateKey, header.Epk)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	// gcm.Open panics on a wrong-size nonce, and the iv is peer-controlled.
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformedEnvelope, len(iv), gcm.NonceSize())
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), []byte(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return &Decryption{Plaintext: plaintext, Header: header}, nil
}

// agreeKey runs ECDH between a private and a public key on the same curve and
// derives the AES-256 content-encryption key. X25519 goes through the raw
// curve function plus the concat-KDF; P-256 delegates the agreement to the
// standard library's ecdh package, then applies the same KDF so both paths
// produce interoperable envelopes for same-curve peers.
func agreeKey(privateKey, publicKey jwk.JWK) ([]byte, error) {
	if privateKey.Crv != publicKey.Crv {
		return nil, fmt.Errorf("%w: key agreement across curves %q and %q",
			jwk.ErrKeyTypeMismatch, privateKey.Crv, publicKey.Crv)
	}

	var (
		z   []byte
		err error
	)
	switch privateKey.Crv {
	case jwk.CrvX25519:
		var priv, pub []byte
		priv, err = privateKey.X25519PrivateKeyBytes()
		if err != nil {
			return nil, err
		}
		pub, err = publicKey.X25519PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		z, err = curve25519.X25519(priv, pub)
		if err != nil {
			return nil, fmt.Errorf("x25519 agreement failed: %w", err)
		}
	case jwk.CrvP256:
		priv, err := privateKey.ECDHPrivateKey()
		if err != nil {
			return nil, err
		}
		pub, err := publicKey.ECDHPublicKey()
		if err != nil {
			return nil, err
		}
		z, err = priv.ECDH(pub)
		if err != nil {
			return nil, fmt.Errorf("p-256 agreement failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported key agreement curve %q", jwk.ErrKeyTypeMismatch, privateKey.Crv)
	}

	return concatKDF(z, EncA256GCM, 32), nil
}
