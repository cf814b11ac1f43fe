package jws

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentrl/decentrl-go/jwk"
)

func TestSignAndVerify(t *testing.T) {
	tests := []struct {
		name      string
		generator jwk.KeyPairGenerator
		alg       string
	}{
		{name: "EdDSA over Ed25519", generator: jwk.Ed25519Generator{}, alg: AlgEdDSA},
		{name: "ES256 over P-256", generator: jwk.P256Generator{}, alg: AlgES256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := tt.generator.Generate()
			require.NoError(t, err)

			payload := []byte(`{"hello":"world"}`)
			keyID := "did:web:example.com:identity:abc#" + pair.Public.Kid

			signature, err := Sign(payload, pair.Private, keyID)
			require.NoError(t, err)
			assert.Len(t, strings.Split(signature, "."), 3)

			verification, err := Verify(signature, pair.Public)
			require.NoError(t, err)
			assert.Equal(t, payload, verification.Payload)
			assert.Equal(t, tt.alg, verification.Header.Alg)
			assert.Equal(t, keyID, verification.Header.Kid)
		})
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	pair, err := jwk.Ed25519Generator{}.Generate()
	require.NoError(t, err)

	signature, err := Sign([]byte(`{"amount":1}`), pair.Private, "key-1")
	require.NoError(t, err)

	parts := strings.Split(signature, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"amount":1000}`))
	tampered := strings.Join(parts, ".")

	_, err = Verify(tampered, pair.Public)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, err := jwk.Ed25519Generator{}.Generate()
	require.NoError(t, err)
	other, err := jwk.Ed25519Generator{}.Generate()
	require.NoError(t, err)

	signature, err := Sign([]byte("payload"), signer.Private, "key-1")
	require.NoError(t, err)

	_, err = Verify(signature, other.Public)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestSignRejectsUnsupportedCurve(t *testing.T) {
	pair, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	_, err = Sign([]byte("payload"), pair.Private, "key-1")
	assert.ErrorIs(t, err, jwk.ErrKeyTypeMismatch)
}

func TestVerifyRejectsCurveAlgMismatch(t *testing.T) {
	edPair, err := jwk.Ed25519Generator{}.Generate()
	require.NoError(t, err)
	ecPair, err := jwk.P256Generator{}.Generate()
	require.NoError(t, err)

	signature, err := Sign([]byte("payload"), edPair.Private, "key-1")
	require.NoError(t, err)

	// Header says EdDSA, key is P-256.
	_, err = Verify(signature, ecPair.Public)
	assert.ErrorIs(t, err, jwk.ErrKeyTypeMismatch)
}

func TestVerifyRejectsMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{name: "too few segments", signature: "only.two"},
		{name: "too many segments", signature: "a.b.c.d"},
		{name: "header not base64", signature: "!!!.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := jwk.Ed25519Generator{}.Generate()
			require.NoError(t, err)

			_, err = Verify(tt.signature, pair.Public)
			assert.Error(t, err)
		})
	}
}

func TestReadPayloadAndHeaderWithoutVerification(t *testing.T) {
	pair, err := jwk.P256Generator{}.Generate()
	require.NoError(t, err)

	payload := []byte(`{"id":"req-1"}`)
	signature, err := Sign(payload, pair.Private, "key-9")
	require.NoError(t, err)

	read, err := ReadPayload(signature)
	require.NoError(t, err)
	assert.Equal(t, payload, read)

	header, err := ReadHeader(signature)
	require.NoError(t, err)
	assert.Equal(t, AlgES256, header.Alg)
	assert.Equal(t, "key-9", header.Kid)
}
