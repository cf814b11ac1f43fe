// Package contract implements the communication-contract handshake: a
// requestor signs a contract request binding two DIDs and an encrypted shared
// secret, the recipient countersigns it, and either artifact can afterwards
// be re-verified from scratch against the parties' published DID documents.
//
// No state is held between the four operations. Each one re-derives trust
// from the nested signatures, so a contract's validity always reflects the
// current registry state of both identities.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/identity"
	"github.com/decentrl/decentrl-go/jwe"
	"github.com/decentrl/decentrl-go/jws"
	"github.com/decentrl/decentrl-go/resolver"
)

var (
	// ErrNoVerificationMethod is returned when the recipient's document
	// publishes no signing keys.
	ErrNoVerificationMethod = errors.New("no verification method in did document")

	// ErrNoKeyAgreement is returned when a party's document publishes no
	// key-agreement keys to encrypt the contract secret for.
	ErrNoKeyAgreement = errors.New("no key agreement method in did document")

	// ErrContractExpired is returned when a request's expiresAt is in the
	// past, checked before any signature work.
	ErrContractExpired = errors.New("communication contract expired")

	// ErrKeyNotFound is returned when the signing key id named in the signed
	// payload is absent from the signer's document.
	ErrKeyNotFound = errors.New("signing key not found in did document")

	// ErrKeyIDMismatch is returned when a valid signature was produced under
	// a different kid than the verification method looked up, guarding
	// against key-confusion.
	ErrKeyIDMismatch = errors.New("signature kid does not match verification method")

	// ErrContractInvalid wraps any failure of the inner request verification
	// during full contract verification.
	ErrContractInvalid = errors.New("communication contract invalid")
)

// Request is the requestor-signed half of a contract. Immutable once signed.
type Request struct {
	ID                                       string            `json:"id"`
	RequestorDid                             string            `json:"requestorDid"`
	RequestorPublicSigningKeyID              string            `json:"requestorPublicSigningKeyId"`
	RecipientDid                             string            `json:"recipientDid"`
	RecipientPublicSigningKeyID              string            `json:"recipientPublicSigningKeyId"`
	RecipientEncryptedCommunicationSecretKey string            `json:"recipientEncryptedCommunicationSecretKey"`
	ExpiresAt                                *time.Time        `json:"expiresAt,omitempty"`
	Metadata                                 map[string]string `json:"metadata,omitempty"`
}

// Contract is the recipient-countersigned artifact wrapping the original
// signed request. Immutable once signed. Together the two signatures form a
// bilateral proof that both parties agreed to the shared secret and to each
// other's identity.
type Contract struct {
	RequestorSignature                       string     `json:"requestorSignature"`
	RequestorEncryptedCommunicationSecretKey string     `json:"requestorEncryptedCommunicationSecretKey"`
	ContractExpiresAt                        *time.Time `json:"contractExpiresAt,omitempty"`
}

// RequestVerification is the result of verifying a signed request.
type RequestVerification struct {
	RequestorDocument *diddoc.Document
	Request           Request
}

// Verification is the result of verifying a full countersigned contract.
type Verification struct {
	RequestorDocument *diddoc.Document
	RecipientDocument *diddoc.Document
	Request           Request
	Contract          Contract
}

// GenerateSignatureRequest builds and signs a contract request towards
// recipientDid, encrypting secretKey for the recipient's first key-agreement
// key. Returns the compact signature string.
func GenerateSignatureRequest(
	ctx context.Context,
	requestor *identity.DidData,
	recipientDid string,
	secretKey []byte,
	expiresAt *time.Time,
	metadata map[string]string,
	res resolver.Resolver,
) (string, error) {
	recipientDoc, err := res.Resolve(ctx, recipientDid)
	if err != nil {
		return "", err
	}

	if len(recipientDoc.VerificationMethod) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoVerificationMethod, recipientDid)
	}
	recipientKeyAgreement, ok := recipientDoc.FirstKeyAgreement()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoKeyAgreement, recipientDid)
	}

	encryptedSecret, err := jwe.Encrypt(
		secretKey,
		requestor.Keys.EncryptionKeyPair.Private,
		recipientKeyAgreement.PublicKeyJwk,
		recipientKeyAgreement.ID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt contract secret: %w", err)
	}

	request := Request{
		ID:                                       uuid.NewString(),
		RequestorDid:                             requestor.Did,
		RequestorPublicSigningKeyID:              requestor.SigningKeyID(),
		RecipientDid:                             recipientDid,
		RecipientPublicSigningKeyID:              recipientDoc.VerificationMethod[0].ID,
		RecipientEncryptedCommunicationSecretKey: encryptedSecret,
		ExpiresAt:                                expiresAt,
		Metadata:                                 metadata,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal contract request: %w", err)
	}

	return jws.Sign(payload, requestor.Keys.SigningKeyPair.Private, requestor.SigningKeyID())
}

// VerifySignatureRequest re-derives the request's validity: expiry first,
// then the requestor's signature against the verification method named in
// the payload, then the kid binding between signature and method.
func VerifySignatureRequest(ctx context.Context, signedRequest string, res resolver.Resolver) (*RequestVerification, error) {
	// The payload is untrusted until the signature check below; it is read
	// early only to learn the expiry and where to look for the key.
	unverifiedPayload, err := jws.ReadPayload(signedRequest)
	if err != nil {
		return nil, err
	}
	var request Request
	if err := json.Unmarshal(unverifiedPayload, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract request: %w", err)
	}

	if request.ExpiresAt != nil && time.Now().After(*request.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired at %s", ErrContractExpired, request.ExpiresAt.Format(time.RFC3339))
	}

	requestorDoc, err := res.Resolve(ctx, request.RequestorDid)
	if err != nil {
		return nil, err
	}

	method, ok := requestorDoc.FindVerificationMethod(request.RequestorPublicSigningKeyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, request.RequestorPublicSigningKeyID)
	}

	verification, err := jws.Verify(signedRequest, method.PublicKeyJwk)
	if err != nil {
		return nil, err
	}
	if verification.Header.Kid != method.ID {
		return nil, fmt.Errorf("%w: signed with %q, expected %q", ErrKeyIDMismatch, verification.Header.Kid, method.ID)
	}

	var verified Request
	if err := json.Unmarshal(verification.Payload, &verified); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verified contract request: %w", err)
	}

	return &RequestVerification{RequestorDocument: requestorDoc, Request: verified}, nil
}

// Sign countersigns a contract request as the recipient. The request is
// independently re-verified first, the embedded secret decrypted with the
// recipient's encryption key and re-encrypted for the requestor's first
// key-agreement key, role-reversed. Returns the compact contract signature
// and the verification result of the inner request.
func Sign(ctx context.Context, signedRequest string, recipient *identity.DidData, res resolver.Resolver) (string, *RequestVerification, error) {
	verification, err := VerifySignatureRequest(ctx, signedRequest, res)
	if err != nil {
		return "", nil, err
	}

	secret, err := jwe.Decrypt(
		verification.Request.RecipientEncryptedCommunicationSecretKey,
		recipient.Keys.EncryptionKeyPair.Private,
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decrypt contract secret: %w", err)
	}

	requestorKeyAgreement, ok := verification.RequestorDocument.FirstKeyAgreement()
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNoKeyAgreement, verification.Request.RequestorDid)
	}

	reEncryptedSecret, err := jwe.Encrypt(
		secret.Plaintext,
		recipient.Keys.EncryptionKeyPair.Private,
		requestorKeyAgreement.PublicKeyJwk,
		requestorKeyAgreement.ID,
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to re-encrypt contract secret: %w", err)
	}

	contract := Contract{
		RequestorSignature:                       signedRequest,
		RequestorEncryptedCommunicationSecretKey: reEncryptedSecret,
		ContractExpiresAt:                        verification.Request.ExpiresAt,
	}

	payload, err := json.Marshal(contract)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal contract: %w", err)
	}

	signed, err := jws.Sign(payload, recipient.Keys.SigningKeyPair.Private, recipient.SigningKeyID())
	if err != nil {
		return "", nil, err
	}
	return signed, verification, nil
}

// Verify re-derives a countersigned contract's validity end to end: the
// wrapped requestor signature is recursively re-verified (transitively
// re-checking expiry and requestor identity), then the recipient's
// countersignature is verified against the recipient DID taken from the
// already-verified inner request. Any inner failure propagates wrapped in
// ErrContractInvalid with the originating reason.
func Verify(ctx context.Context, signedContract string, res resolver.Resolver) (*Verification, error) {
	payload, err := jws.ReadPayload(signedContract)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractInvalid, err)
	}
	var contract Contract
	if err := json.Unmarshal(payload, &contract); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal contract: %v", ErrContractInvalid, err)
	}

	inner, err := VerifySignatureRequest(ctx, contract.RequestorSignature, res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractInvalid, err)
	}

	recipientDoc, err := res.Resolve(ctx, inner.Request.RecipientDid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractInvalid, err)
	}

	method, ok := recipientDoc.FindVerificationMethod(inner.Request.RecipientPublicSigningKeyID)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrContractInvalid, ErrKeyNotFound, inner.Request.RecipientPublicSigningKeyID)
	}

	verification, err := jws.Verify(signedContract, method.PublicKeyJwk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractInvalid, err)
	}
	if verification.Header.Kid != method.ID {
		return nil, fmt.Errorf("%w: %w: signed with %q, expected %q",
			ErrContractInvalid, ErrKeyIDMismatch, verification.Header.Kid, method.ID)
	}

	var verified Contract
	if err := json.Unmarshal(verification.Payload, &verified); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal verified contract: %v", ErrContractInvalid, err)
	}

	return &Verification{
		RequestorDocument: inner.RequestorDocument,
		RecipientDocument: recipientDoc,
		Request:           inner.Request,
		Contract:          verified,
	}, nil
}

// Parties returns the two DIDs a verified contract binds.
func (v *Verification) Parties() (requestorDid, recipientDid string) {
	return v.Request.RequestorDid, v.Request.RecipientDid
}

// Binds reports whether the contract binds exactly the two given DIDs, in
// either order.
func (v *Verification) Binds(didA, didB string) bool {
	requestor, recipient := v.Parties()
	return (requestor == didA && recipient == didB) ||
		(requestor == didB && recipient == didA)
}
