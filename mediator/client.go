package mediator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/identity"
	"github.com/decentrl/decentrl-go/jwe"
	"github.com/decentrl/decentrl-go/resolver"
)

// NewCommand builds an encrypted command envelope addressed to the
// mediator's first key-agreement key. The envelope kid is the sender's own
// key-agreement id so the mediator can resolve and authenticate the sender.
func NewCommand(sender *identity.DidData, mediatorDoc *diddoc.Document, name CommandName, data any) (Command, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return Command{}, fmt.Errorf("failed to marshal command data: %w", err)
		}
		raw = encoded
	}

	payload, err := json.Marshal(CommandPayload{Name: name, Data: raw})
	if err != nil {
		return Command{}, fmt.Errorf("failed to marshal command payload: %w", err)
	}

	mediatorKeyAgreement, ok := mediatorDoc.FirstKeyAgreement()
	if !ok {
		return Command{}, fmt.Errorf("mediator document %s has no key agreement method", mediatorDoc.ID)
	}

	encrypted, err := jwe.Encrypt(
		payload,
		sender.Keys.EncryptionKeyPair.Private,
		mediatorKeyAgreement.PublicKeyJwk,
		sender.EncryptionKeyID(),
	)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encrypt command payload: %w", err)
	}

	return Command{ID: uuid.NewString(), Type: MessageTypeCommand, Payload: encrypted}, nil
}

// DecodedEventPayload is an event payload as seen by a client, with the data
// left raw for per-name decoding.
type DecodedEventPayload struct {
	Name EventName       `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OpenEvent decrypts an event envelope and authenticates that it was
// encrypted by the mediator that emitted it.
func OpenEvent(ctx context.Context, event Event, receiver *identity.DidData, res resolver.Resolver) (*DecodedEventPayload, error) {
	verification, err := jwe.DecryptAndVerifySender(
		ctx, event.Payload, receiver.Keys.EncryptionKeyPair.Private, res,
	)
	if err != nil {
		return nil, err
	}

	var payload DecodedEventPayload
	if err := json.Unmarshal(verification.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return &payload, nil
}
