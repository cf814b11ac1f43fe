package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/identity"
	"github.com/decentrl/decentrl-go/jwe"
	"github.com/decentrl/decentrl-go/jws"
	"github.com/decentrl/decentrl-go/resolver"
)

// ErrBadSubmission wraps every decryption, schema or signature failure of a
// published document, mapping to a 400 at the HTTP layer.
var ErrBadSubmission = errors.New("invalid did document submission")

// Service verifies and stores published DID documents. Submissions arrive as
// envelopes encrypted to the registry's own key-agreement key; the plaintext
// is a compact signature over the document JSON.
type Service struct {
	didData  *identity.DidData
	document *diddoc.Document
	store    DocumentStore
	log      zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService wires a registry service. didData is the registry's own
// identity and document the one served at /.well-known/did.json.
func NewService(didData *identity.DidData, document *diddoc.Document, store DocumentStore, opts ...ServiceOption) *Service {
	s := &Service{
		didData:  didData,
		document: document,
		store:    store,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OwnDocument returns the registry's own DID document.
func (s *Service) OwnDocument() *diddoc.Document {
	return s.document
}

// Publish stores a first-time DID document. The submission is self-certified:
// the signature must verify against the verification method the submitted
// document itself publishes under the signature's kid.
func (s *Service) Publish(ctx context.Context, encryptedDidDocument string) (*Record, error) {
	signed, doc, err := s.unwrap(encryptedDidDocument)
	if err != nil {
		return nil, err
	}

	if err := s.verifyAgainst(signed, doc, doc); err != nil {
		return nil, err
	}

	record := Record{Did: doc.ID, Document: *doc, Signature: signed, Version: 1}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store did document: %w", err)
	}

	s.log.Info().Str("did", doc.ID).Msg("did document published")
	return &record, nil
}

// Update stores a new version of an existing document. The signature is
// verified against the keys of the currently stored document, not the
// incoming one, so only the current key holder can rotate.
func (s *Service) Update(ctx context.Context, encryptedDidDocument string) (*Record, error) {
	signed, doc, err := s.unwrap(encryptedDidDocument)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.FindByDid(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if err := s.verifyAgainst(signed, doc, &stored.Document); err != nil {
		return nil, err
	}

	record := Record{Did: doc.ID, Document: *doc, Signature: signed, Version: stored.Version + 1}
	if err := s.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update did document: %w", err)
	}

	s.log.Info().Str("did", doc.ID).Int64("previousVersion", stored.Version).Msg("did document updated")
	return &record, nil
}

// Find returns the stored document for a DID.
func (s *Service) Find(ctx context.Context, did string) (*diddoc.Document, error) {
	record, err := s.store.FindByDid(ctx, did)
	if err != nil {
		return nil, err
	}
	return &record.Document, nil
}

// unwrap decrypts a submission and schema-validates the signed document.
func (s *Service) unwrap(encryptedDidDocument string) (string, *diddoc.Document, error) {
	decryption, err := jwe.Decrypt(encryptedDidDocument, s.didData.Keys.EncryptionKeyPair.Private)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}

	signed := string(decryption.Plaintext)
	payload, err := jws.ReadPayload(signed)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}

	doc, err := diddoc.Load(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}
	return signed, doc, nil
}

// verifyAgainst checks the submission signature against the verification
// methods published by keySource, binding the signature kid to the submitted
// document's DID.
func (s *Service) verifyAgainst(signed string, doc, keySource *diddoc.Document) error {
	header, err := jws.ReadHeader(signed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}

	if resolver.StripFragment(header.Kid) != doc.ID {
		return fmt.Errorf("%w: signature kid %q is not scoped to %q", ErrBadSubmission, header.Kid, doc.ID)
	}

	method, ok := keySource.FindVerificationMethod(header.Kid)
	if !ok {
		return fmt.Errorf("%w: no verification method %q", ErrBadSubmission, header.Kid)
	}

	if _, err := jws.Verify(signed, method.PublicKeyJwk); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSubmission, err)
	}
	return nil
}
