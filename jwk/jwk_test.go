package jwk

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestEd25519GeneratorProducesUsableKeyPair(t *testing.T) {
	pair, err := Ed25519Generator{}.Generate()
	require.NoError(t, err)

	assert.Equal(t, KtyOKP, pair.Public.Kty)
	assert.Equal(t, CrvEd25519, pair.Public.Crv)
	assert.NotEmpty(t, pair.Public.Kid)
	assert.Equal(t, pair.Public.Kid, pair.Private.Kid)
	assert.False(t, pair.Public.IsPrivate())
	assert.True(t, pair.Private.IsPrivate())

	priv, err := pair.Private.Ed25519PrivateKey()
	require.NoError(t, err)
	pub, err := pair.Public.Ed25519PublicKey()
	require.NoError(t, err)

	message := []byte("attached payload")
	signature := ed25519.Sign(priv, message)
	assert.True(t, ed25519.Verify(pub, message, signature))
}

func TestX25519GeneratorSharedSecretAgreement(t *testing.T) {
	alice, err := X25519Generator{}.Generate()
	require.NoError(t, err)
	bob, err := X25519Generator{}.Generate()
	require.NoError(t, err)

	assert.Equal(t, KtyOKP, alice.Public.Kty)
	assert.Equal(t, CrvX25519, alice.Public.Crv)

	alicePriv, err := alice.Private.X25519PrivateKeyBytes()
	require.NoError(t, err)
	bobPub, err := bob.Public.X25519PublicKeyBytes()
	require.NoError(t, err)
	bobPriv, err := bob.Private.X25519PrivateKeyBytes()
	require.NoError(t, err)
	alicePub, err := alice.Public.X25519PublicKeyBytes()
	require.NoError(t, err)

	left, err := curve25519.X25519(alicePriv, bobPub)
	require.NoError(t, err)
	right, err := curve25519.X25519(bobPriv, alicePub)
	require.NoError(t, err)
	assert.Equal(t, left, right)
}

func TestP256GeneratorRoundTrip(t *testing.T) {
	pair, err := P256Generator{}.Generate()
	require.NoError(t, err)

	assert.Equal(t, KtyEC, pair.Public.Kty)
	assert.Equal(t, CrvP256, pair.Public.Crv)
	assert.NotEmpty(t, pair.Public.Y)

	priv, err := pair.Private.ECDSAPrivateKey()
	require.NoError(t, err)
	pub, err := pair.Public.ECDSAPublicKey()
	require.NoError(t, err)
	assert.Equal(t, pub.X, priv.PublicKey.X)
	assert.Equal(t, pub.Y, priv.PublicKey.Y)
}

func TestConvertersRejectMismatchedKeys(t *testing.T) {
	ed, err := Ed25519Generator{}.Generate()
	require.NoError(t, err)
	ec, err := P256Generator{}.Generate()
	require.NoError(t, err)

	_, err = ed.Public.ECDSAPublicKey()
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)
	_, err = ec.Public.Ed25519PublicKey()
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)
	_, err = ed.Private.X25519PrivateKeyBytes()
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)
	_, err = ec.Private.X25519PublicKeyBytes()
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)
}

func TestPublicStripsPrivateMaterial(t *testing.T) {
	pair, err := X25519Generator{}.Generate()
	require.NoError(t, err)

	public := pair.Private.Public()
	assert.Empty(t, public.D)
	assert.Equal(t, pair.Public.X, public.X)
	assert.Equal(t, pair.Public.Kid, public.Kid)
}

func TestSamePublicKey(t *testing.T) {
	a, err := X25519Generator{}.Generate()
	require.NoError(t, err)
	b, err := X25519Generator{}.Generate()
	require.NoError(t, err)

	renamed := a.Public
	renamed.Kid = "other-name"

	assert.True(t, SamePublicKey(a.Public, a.Private.Public()))
	assert.True(t, SamePublicKey(a.Public, renamed), "kid must not participate in key equality")
	assert.False(t, SamePublicKey(a.Public, b.Public))
}
