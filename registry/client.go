package registry

import (
	"encoding/json"
	"fmt"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/identity"
	"github.com/decentrl/decentrl-go/jwe"
	"github.com/decentrl/decentrl-go/jws"
)

// EncryptSubmission prepares a document for Publish or Update: the document
// JSON is signed with the owner's signing key and the compact signature
// encrypted to the registry's first key-agreement key.
func EncryptSubmission(owner *identity.DidData, registryDoc *diddoc.Document, document *diddoc.Document) (string, error) {
	payload, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("failed to marshal did document: %w", err)
	}

	signed, err := jws.Sign(payload, owner.Keys.SigningKeyPair.Private, owner.SigningKeyID())
	if err != nil {
		return "", fmt.Errorf("failed to sign did document: %w", err)
	}

	registryKeyAgreement, ok := registryDoc.FirstKeyAgreement()
	if !ok {
		return "", fmt.Errorf("registry document %s has no key agreement method", registryDoc.ID)
	}

	encrypted, err := jwe.Encrypt(
		[]byte(signed),
		owner.Keys.EncryptionKeyPair.Private,
		registryKeyAgreement.PublicKeyJwk,
		owner.EncryptionKeyID(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt did document submission: %w", err)
	}
	return encrypted, nil
}
