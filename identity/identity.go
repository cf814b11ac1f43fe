// Package identity mints DIDs and derives the DID documents that publish
// their keys and service endpoints.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/jwk"
)

// DidData is the sole source of truth for an identity's cryptographic
// material. Created once at identity bootstrap and never mutated.
type DidData struct {
	Did  string  `json:"did"`
	Keys DidKeys `json:"keys"`
}

// DidKeys holds the identity's two key pairs, one per purpose.
type DidKeys struct {
	SigningKeyPair    jwk.KeyPair `json:"signingKeyPair"`
	EncryptionKeyPair jwk.KeyPair `json:"encryptionKeyPair"`
}

// SigningKeyID returns the DID-scoped verification-method id of the signing
// key, built as `${did}#${kid}`.
func (d *DidData) SigningKeyID() string {
	return d.Did + "#" + d.Keys.SigningKeyPair.Public.Kid
}

// EncryptionKeyID returns the DID-scoped verification-method id of the
// key-agreement key.
func (d *DidData) EncryptionKeyID() string {
	return d.Did + "#" + d.Keys.EncryptionKeyPair.Public.Kid
}

// Generate mints a new `did:web:<domain>:identity:<uuid>` identifier and
// invokes both injected key-pair generators, concurrently, awaiting both
// before returning.
func Generate(ctx context.Context, domain string, encryptionGenerator, signingGenerator jwk.KeyPairGenerator) (*DidData, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	var encryptionKeyPair, signingKeyPair jwk.KeyPair

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		pair, err := encryptionGenerator.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate encryption key pair: %w", err)
		}
		encryptionKeyPair = pair
		return nil
	})
	group.Go(func() error {
		pair, err := signingGenerator.Generate()
		if err != nil {
			return fmt.Errorf("failed to generate signing key pair: %w", err)
		}
		signingKeyPair = pair
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &DidData{
		Did: fmt.Sprintf("did:web:%s:identity:%s", domain, uuid.NewString()),
		Keys: DidKeys{
			SigningKeyPair:    signingKeyPair,
			EncryptionKeyPair: encryptionKeyPair,
		},
	}, nil
}

// DocumentOptions carries the optional parts of a generated document.
type DocumentOptions struct {
	Alias    string
	Services []diddoc.Service
}

// GenerateDocument derives the published DID document for an identity: the
// signing key becomes verificationMethod[0] and the sole authentication
// entry, the encryption key becomes the keyAgreement entry.
func GenerateDocument(didData *DidData, opts DocumentOptions, builderOpts ...diddoc.BuilderOption) (*diddoc.Document, error) {
	signingMethod := diddoc.VerificationMethod{
		ID:           didData.SigningKeyID(),
		Type:         diddoc.TypeJSONWebKey2020,
		Controller:   didData.Did,
		PublicKeyJwk: didData.Keys.SigningKeyPair.Public,
	}
	keyAgreementMethod := diddoc.VerificationMethod{
		ID:           didData.EncryptionKeyID(),
		Type:         diddoc.TypeJSONWebKey2020,
		Controller:   didData.Did,
		PublicKeyJwk: didData.Keys.EncryptionKeyPair.Public,
	}

	builder := diddoc.NewBuilder(builderOpts...).
		SetID(didData.Did).
		AddVerificationMethod(signingMethod).
		AddAuthentication(diddoc.NewReference(signingMethod.ID)).
		AddKeyAgreement(diddoc.NewInline(keyAgreementMethod))

	if opts.Alias != "" {
		builder.SetAlias(opts.Alias)
	}
	for _, service := range opts.Services {
		builder.AddServiceEndpoint(service)
	}

	doc, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build did document: %w", err)
	}
	return doc, nil
}
