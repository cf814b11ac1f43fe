package jwe

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/jwk"
	"github.com/decentrl/decentrl-go/resolver"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		generator jwk.KeyPairGenerator
	}{
		{name: "X25519", generator: jwk.X25519Generator{}},
		{name: "P-256", generator: jwk.P256Generator{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := tt.generator.Generate()
			require.NoError(t, err)
			recipient, err := tt.generator.Generate()
			require.NoError(t, err)

			plaintext := []byte(`{"name":"REGISTER"}`)
			envelope, err := Encrypt(plaintext, sender.Private, recipient.Public, "did:web:a.example:identity:1#enc")
			require.NoError(t, err)
			assert.Len(t, strings.Split(envelope, "."), 5)
			assert.Empty(t, strings.Split(envelope, ".")[1], "encrypted-key segment must be empty for direct agreement")

			decryption, err := Decrypt(envelope, recipient.Private)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decryption.Plaintext)
			assert.Equal(t, AlgECDHES, decryption.Header.Alg)
			assert.Equal(t, EncA256GCM, decryption.Header.Enc)
			assert.Equal(t, "did:web:a.example:identity:1#enc", decryption.Header.Kid)
			assert.True(t, jwk.SamePublicKey(sender.Public, decryption.Header.Epk))
			assert.Empty(t, decryption.Header.Epk.D, "epk must not leak private material")
		})
	}
}

func TestEncryptRejectsCurveMismatch(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.P256Generator{}.Generate()
	require.NoError(t, err)

	_, err = Encrypt([]byte("payload"), sender.Private, recipient.Public, "kid")
	assert.ErrorIs(t, err, jwk.ErrKeyTypeMismatch)
}

func TestDecryptRejectsWrongRecipient(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	eavesdropper, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	envelope, err := Encrypt([]byte("secret"), sender.Private, recipient.Public, "kid")
	require.NoError(t, err)

	_, err = Decrypt(envelope, eavesdropper.Private)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	envelope, err := Encrypt([]byte("secret"), sender.Private, recipient.Public, "kid")
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	// Flip the first character of the ciphertext segment.
	body := []byte(parts[3])
	if body[0] == 'A' {
		body[0] = 'B'
	} else {
		body[0] = 'A'
	}
	parts[3] = string(body)

	_, err = Decrypt(strings.Join(parts, "."), recipient.Private)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptRejectsMalformedEnvelope(t *testing.T) {
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	_, err = Decrypt("a.b.c", recipient.Private)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecryptRejectsWrongSizeIV(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	envelope, err := Encrypt([]byte("secret"), sender.Private, recipient.Public, "kid")
	require.NoError(t, err)

	// Swap the iv segment for one shorter than the GCM nonce. The envelope
	// must be rejected before the cipher ever sees the nonce.
	parts := strings.Split(envelope, ".")
	parts[2] = base64.RawURLEncoding.EncodeToString(make([]byte, 8))

	_, err = Decrypt(strings.Join(parts, "."), recipient.Private)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func documentWithKeyAgreement(did string, key jwk.JWK) *diddoc.Document {
	key.Kid = "enc"
	doc, _ := diddoc.NewBuilder().
		SetID(did).
		AddKeyAgreement(diddoc.NewInline(diddoc.VerificationMethod{
			ID:           did + "#enc",
			Type:         diddoc.TypeJSONWebKey2020,
			Controller:   did,
			PublicKeyJwk: key.Public(),
		})).
		Build()
	return doc
}

func TestDecryptAndVerifySender(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	senderDid := "did:web:a.example:identity:alice"
	senderDoc := documentWithKeyAgreement(senderDid, sender.Public)
	res := resolver.Func(func(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
		require.Equal(t, senderDid+"#enc", didOrKid)
		return senderDoc, nil
	})

	envelope, err := Encrypt([]byte("hello"), sender.Private, recipient.Public, senderDid+"#enc")
	require.NoError(t, err)

	verification, err := DecryptAndVerifySender(context.Background(), envelope, recipient.Private, res)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), verification.Payload)
	assert.Equal(t, senderDid, verification.SenderDocument.ID)
}

func TestDecryptAndVerifySenderRejectsImpersonation(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	impersonator, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	// The claimed sender's document publishes a different key-agreement key
	// than the one that actually encrypted.
	claimedDid := "did:web:a.example:identity:alice"
	claimedDoc := documentWithKeyAgreement(claimedDid, sender.Public)
	res := resolver.Func(func(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
		return claimedDoc, nil
	})

	envelope, err := Encrypt([]byte("hello"), impersonator.Private, recipient.Public, claimedDid+"#enc")
	require.NoError(t, err)

	_, err = DecryptAndVerifySender(context.Background(), envelope, recipient.Private, res)
	assert.ErrorIs(t, err, ErrSenderKeyMismatch)
}

func TestDecryptAndVerifySenderPropagatesResolutionFailure(t *testing.T) {
	sender, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)
	recipient, err := jwk.X25519Generator{}.Generate()
	require.NoError(t, err)

	res := resolver.Func(func(ctx context.Context, didOrKid string) (*diddoc.Document, error) {
		return nil, resolver.ErrDidResolutionFailed
	})

	envelope, err := Encrypt([]byte("hello"), sender.Private, recipient.Public, "did:web:gone#enc")
	require.NoError(t, err)

	_, err = DecryptAndVerifySender(context.Background(), envelope, recipient.Private, res)
	assert.ErrorIs(t, err, resolver.ErrDidResolutionFailed)
}

func TestConcatKDFIsDeterministic(t *testing.T) {
	z := []byte("0123456789abcdef0123456789abcdef")
	first := concatKDF(z, EncA256GCM, 32)
	second := concatKDF(z, EncA256GCM, 32)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
	assert.NotEqual(t, first, concatKDF(z, "A128GCM", 32), "algorithm id must bind the derived key")
}
