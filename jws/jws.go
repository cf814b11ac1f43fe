// Package jws signs and verifies compact JOSE signature envelopes
// (protectedHeaderB64.payloadB64.signatureB64) over EdDSA (Ed25519) and
// ES256 (P-256) keys.
package jws

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/decentrl/decentrl-go/jwk"
)

// Signature algorithms selected from the signing key's curve.
const (
	AlgEdDSA = "EdDSA"
	AlgES256 = "ES256"
)

var (
	// ErrSignatureInvalid is returned when the signature does not verify
	// against the provided public key.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrMalformedSignature is returned when the compact serialization cannot
	// be parsed.
	ErrMalformedSignature = errors.New("malformed compact signature")
)

// ProtectedHeader is the signed header of a compact signature.
type ProtectedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verification is the result of a successful signature check. Verify does not
// check the kid against any DID binding; comparing Header.Kid with the
// expected verification-method id is a caller obligation.
type Verification struct {
	Payload []byte
	Header  ProtectedHeader
}

// Sign produces a compact signature over payload with the given private key.
// The algorithm follows the key's curve: Ed25519 signs EdDSA, P-256 signs
// ES256; any other curve fails with ErrKeyTypeMismatch.
func Sign(payload []byte, privateKey jwk.JWK, keyID string) (string, error) {
	header := ProtectedHeader{Kid: keyID}

	var (
		method  jwt.SigningMethod
		signKey any
	)
	switch privateKey.Crv {
	case jwk.CrvEd25519:
		header.Alg = AlgEdDSA
		method = jwt.SigningMethodEdDSA
		key, err := privateKey.Ed25519PrivateKey()
		if err != nil {
			return "", err
		}
		signKey = key
	case jwk.CrvP256:
		header.Alg = AlgES256
		method = jwt.SigningMethodES256
		key, err := privateKey.ECDSAPrivateKey()
		if err != nil {
			return "", err
		}
		signKey = key
	default:
		return "", fmt.Errorf("%w: cannot sign with curve %q", jwk.ErrKeyTypeMismatch, privateKey.Crv)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal protected header: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payload)

	sig, err := method.Sign(signingInput, signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify recomputes the signature over the embedded payload and returns the
// payload and protected header, or ErrSignatureInvalid on mismatch.
func Verify(signature string, publicKey jwk.JWK) (*Verification, error) {
	parts, err := split(signature)
	if err != nil {
		return nil, err
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		return nil, err
	}

	var (
		method    jwt.SigningMethod
		verifyKey any
	)
	switch header.Alg {
	case AlgEdDSA:
		method = jwt.SigningMethodEdDSA
		key, err := publicKey.Ed25519PublicKey()
		if err != nil {
			return nil, err
		}
		verifyKey = key
	case AlgES256:
		method = jwt.SigningMethodES256
		key, err := publicKey.ECDSAPublicKey()
		if err != nil {
			return nil, err
		}
		verifyKey = key
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedSignature, header.Alg)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature segment: %v", ErrMalformedSignature, err)
	}

	signingInput := parts[0] + "." + parts[1]
	if err := method.Verify(signingInput, sig, verifyKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad payload segment: %v", ErrMalformedSignature, err)
	}

	return &Verification{Payload: payload, Header: *header}, nil
}

// ReadPayload decodes the payload segment without verifying the signature.
// Used only for key discovery before verification; never trust the result for
// security decisions.
func ReadPayload(signature string) ([]byte, error) {
	parts, err := split(signature)
	if err != nil {
		return nil, err
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad payload segment: %v", ErrMalformedSignature, err)
	}
	return payload, nil
}

// ReadHeader decodes the protected header without verifying the signature.
func ReadHeader(signature string) (*ProtectedHeader, error) {
	parts, err := split(signature)
	if err != nil {
		return nil, err
	}
	return decodeHeader(parts[0])
}

func split(signature string) ([]string, error) {
	parts := strings.Split(signature, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedSignature, len(parts))
	}
	return parts, nil
}

func decodeHeader(segment string) (*ProtectedHeader, error) {
	headerJSON, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: bad header segment: %v", ErrMalformedSignature, err)
	}
	var header ProtectedHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: bad header JSON: %v", ErrMalformedSignature, err)
	}
	return &header, nil
}
