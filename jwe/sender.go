package jwe

import (
	"context"
	"errors"
	"fmt"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/jwk"
	"github.com/decentrl/decentrl-go/resolver"
)

// ErrSenderKeyMismatch is returned when the envelope's epk does not match any
// key-agreement method published by the sender's DID document.
var ErrSenderKeyMismatch = errors.New("sender key mismatch")

// SenderVerification is the result of decrypting an envelope and
// authenticating its sender.
type SenderVerification struct {
	Payload        []byte
	Header         ProtectedHeader
	SenderDocument *diddoc.Document
}

// DecryptAndVerifySender decrypts the envelope, resolves the sender's DID
// document from the protected header's kid, and requires that one of the
// document's key-agreement methods carry exactly the public key that produced
// the ciphertext, compared by the (x, crv, kty) triple. ECDH-ES alone does
// not sign, so this match is the mechanism that authenticates whose key
// agreed on the content-encryption key.
func DecryptAndVerifySender(
	ctx context.Context,
	envelope string,
	ownPrivateKey jwk.JWK,
	res resolver.Resolver,
) (*SenderVerification, error) {
	decryption, err := Decrypt(envelope, ownPrivateKey)
	if err != nil {
		return nil, err
	}

	senderDoc, err := res.Resolve(ctx, decryption.Header.Kid)
	if err != nil {
		return nil, err
	}

	for _, method := range senderDoc.KeyAgreementMethods() {
		if jwk.SamePublicKey(method.PublicKeyJwk, decryption.Header.Epk) {
			return &SenderVerification{
				Payload:        decryption.Plaintext,
				Header:         decryption.Header,
				SenderDocument: senderDoc,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: epk not published by %s", ErrSenderKeyMismatch, senderDoc.ID)
}
