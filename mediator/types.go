// Package mediator implements the store-and-forward mediator protocol
// engine: the command/event payload model, per-command dispatch, and the
// event-log query semantics.
package mediator

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the three wire envelope shapes.
type MessageType string

// Wire envelope types.
const (
	MessageTypeCommand MessageType = "COMMAND"
	MessageTypeEvent   MessageType = "EVENT"
	MessageTypeError   MessageType = "ERROR"
)

// Command is an inbound encrypted command envelope. Payload is an opaque
// compact JWE whose plaintext is a CommandPayload.
type Command struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
}

// Event is an outbound encrypted event envelope addressed to the command's
// sender.
type Event struct {
	ID      string      `json:"id,omitempty"`
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
}

// ErrorEvent is the opaque failure envelope. It carries only a reason
// string, never raw error detail, so nothing internal leaks to a possibly
// adversarial peer.
type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// Message is the closed union of engine responses: an Event or an
// ErrorEvent.
type Message interface {
	MessageType() MessageType
}

// MessageType implements Message.
func (e Event) MessageType() MessageType { return e.Type }

// MessageType implements Message.
func (e ErrorEvent) MessageType() MessageType { return e.Type }

// Channel identifies a communication channel a mediator can relay.
type Channel string

// Communication channels.
const (
	ChannelOneWayPublic  Channel = "ONE_WAY_PUBLIC"
	ChannelTwoWayPrivate Channel = "TWO_WAY_PRIVATE"
	ChannelGroupPrivate  Channel = "GROUP_PRIVATE"
)

// CommandName tags a decrypted command payload.
type CommandName string

// Command names. The SIGN_COMMUNICATION_CONTACT spelling is part of the wire
// contract and deliberately kept as-is.
const (
	CommandRegister             CommandName = "REGISTER"
	CommandRequestContract      CommandName = "REQUEST_COMMUNICATION_CONTRACT"
	CommandSignContract         CommandName = "SIGN_COMMUNICATION_CONTACT"
	CommandQuery                CommandName = "QUERY"
	CommandOneWayPublicMessage  CommandName = "ONE_WAY_PUBLIC_MESSAGE"
	CommandTwoWayPrivateMessage CommandName = "TWO_WAY_PRIVATE_MESSAGE"
)

// EventName tags an event payload.
type EventName string

// Event names.
const (
	EventRegistered                     EventName = "REGISTERED"
	EventRegisterFailed                 EventName = "REGISTER_FAILED"
	EventCommunicationContractRequested EventName = "COMMUNICATION_CONTRACT_REQUESTED"
	EventCommunicationContractSigned    EventName = "COMMUNICATION_CONTRACT_SIGNED"
	EventQueryExecuted                  EventName = "QUERY_EXECUTED"
	EventOneWayPublicMessageSent        EventName = "ONE_WAY_PUBLIC_MESSAGE_SENT"
	EventTwoWayPrivateMessageSent       EventName = "TWO_WAY_PRIVATE_MESSAGE_SENT"
)

// ErrorReason enumerates the reasons an ErrorEvent can carry.
type ErrorReason string

// Error reasons. NOT_REGISTERED and ENCRYPTED_PAYLOAD_MISSING are reserved
// for future dispatch paths and currently never produced.
const (
	ReasonMessageUnwrappingFailed        ErrorReason = "MESSAGE_UNWRAPPING_FAILED"
	ReasonRecipientNotRegistered         ErrorReason = "RECIPIENT_NOT_REGISTERED"
	ReasonContractNotValid               ErrorReason = "COMMUNICATION_CONTRACT_NOT_VALID"
	ReasonResponseEncryptionFailed       ErrorReason = "RESPONSE_ENCRYPTION_FAILED"
	ReasonNoEnabledCommunicationChannels ErrorReason = "NO_ENABLED_COMMUNICATION_CHANNELS"
	ReasonNotRegistered                  ErrorReason = "NOT_REGISTERED"
	ReasonEncryptedPayloadMissing        ErrorReason = "ENCRYPTED_PAYLOAD_MISSING"
	ReasonUnsupportedCommand             ErrorReason = "UNSUPPORTED_COMMAND"
	ReasonInternalError                  ErrorReason = "INTERNAL_ERROR"
)

// CommandPayload is the decrypted command body, tagged by Name.
type CommandPayload struct {
	Name CommandName     `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventPayload is the event body encrypted back to the sender.
type EventPayload struct {
	Name EventName `json:"name"`
	Data any       `json:"data,omitempty"`
}

// RegisterCommandData asks the mediator to enable channels for the sender.
type RegisterCommandData struct {
	CommunicationChannels []Channel `json:"communicationChannels"`
}

// RegisteredEventData reports the channels actually enabled.
type RegisteredEventData struct {
	CommunicationChannels []Channel `json:"communicationChannels"`
}

// RegisterFailedEventData reports why registration was rejected.
type RegisterFailedEventData struct {
	Reason ErrorReason `json:"reason"`
}

// ContractRequestCommandData relays a signed contract request to a
// registered recipient's inbox.
type ContractRequestCommandData struct {
	RecipientDid                       string            `json:"recipientDid"`
	SignedCommunicationContractRequest string            `json:"signedCommunicationContractRequest"`
	Metadata                           map[string]string `json:"metadata,omitempty"`
}

// ContractSignCommandData relays a countersigned contract back to the
// requestor's inbox.
type ContractSignCommandData struct {
	RecipientDid                string            `json:"recipientDid"`
	SignedCommunicationContract string            `json:"signedCommunicationContract"`
	Metadata                    map[string]string `json:"metadata,omitempty"`
}

// OneWayPublicMessageCommandData posts a message on the public channel. An
// empty RecipientDid is a broadcast.
type OneWayPublicMessageCommandData struct {
	RecipientDid     string            `json:"recipientDid,omitempty"`
	EncryptedMessage string            `json:"encryptedMessage"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TwoWayPrivateMessageCommandData sends a private message authorized by a
// communication contract binding sender and recipient.
type TwoWayPrivateMessageCommandData struct {
	RecipientDid                string            `json:"recipientDid"`
	SignedCommunicationContract string            `json:"signedCommunicationContract"`
	EncryptedMessage            string            `json:"encryptedMessage"`
	Metadata                    map[string]string `json:"metadata,omitempty"`
}

// QueryCommandData filters the event log. An absent Receiver defaults to the
// querying identity's own DID.
type QueryCommandData struct {
	Sender   string            `json:"sender,omitempty"`
	Receiver string            `json:"receiver,omitempty"`
	Command  string            `json:"command,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Gte      *time.Time        `json:"gte,omitempty"`
	Lte      *time.Time        `json:"lte,omitempty"`
	Offset   int64             `json:"offset,omitempty"`
	Limit    int64             `json:"limit,omitempty"`
	OrderBy  Order             `json:"orderBy,omitempty"`
}

// QueryExecutedEventData carries the mapped query result rows.
type QueryExecutedEventData struct {
	Results []QueryResultRow `json:"results"`
}

// QueryResultRow is an event-log row as exposed to clients; the internal
// receiver column surfaces as recipient.
type QueryResultRow struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Payload              string            `json:"payload"`
	CommunicationChannel Channel           `json:"communicationChannel,omitempty"`
	Sender               string            `json:"sender"`
	Recipient            string            `json:"recipient,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
}
