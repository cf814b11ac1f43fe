package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decentrl/decentrl-go/contract"
	"github.com/decentrl/decentrl-go/identity"
	"github.com/decentrl/decentrl-go/jwe"
	"github.com/decentrl/decentrl-go/resolver"
)

// protocolError carries a wire-level error reason through handler returns.
type protocolError struct {
	reason ErrorReason
}

func (e protocolError) Error() string { return string(e.reason) }

func failWith(reason ErrorReason) error { return protocolError{reason: reason} }

// Engine processes decrypted mediator commands and produces encrypted event
// envelopes. Each command is handled to completion before the next one for
// its connection; the engine itself holds no mutable state beyond the
// injected stores, so it is safe to share across connections.
type Engine struct {
	didData    *identity.DidData
	channels   []Channel
	identities IdentityStore
	events     EventLogStore
	res        resolver.Resolver
	log        zerolog.Logger
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChannels sets the channels the mediator advertises. Defaults to
// ONE_WAY_PUBLIC and TWO_WAY_PRIVATE.
func WithChannels(channels ...Channel) EngineOption {
	return func(e *Engine) {
		e.channels = channels
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// withClock overrides the entry timestamp source in tests.
func withClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires a mediator engine. didData is the mediator's own identity,
// used to unwrap inbound envelopes and to sign the mediator side of event
// encryption.
func NewEngine(
	didData *identity.DidData,
	identities IdentityStore,
	events EventLogStore,
	res resolver.Resolver,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		didData:    didData,
		channels:   []Channel{ChannelOneWayPublic, ChannelTwoWayPrivate},
		identities: identities,
		events:     events,
		res:        res,
		log:        zerolog.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Channels returns the channels the mediator advertises.
func (e *Engine) Channels() []Channel {
	return e.channels
}

// HandleCommand unwraps an inbound command envelope, dispatches it, and
// returns the event envelope encrypted back to the sender. Every failure at
// any step collapses to an ErrorEvent; a handler fault never escapes
// unencrypted or crashes the connection.
func (e *Engine) HandleCommand(ctx context.Context, cmd Command) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("command", cmd.ID).Msg("command handler panicked")
			msg = errorEvent(ReasonInternalError)
		}
	}()

	verification, err := jwe.DecryptAndVerifySender(
		ctx, cmd.Payload, e.didData.Keys.EncryptionKeyPair.Private, e.res,
	)
	if err != nil {
		e.log.Warn().Err(err).Str("command", cmd.ID).Msg("failed to unwrap command envelope")
		return errorEvent(ReasonMessageUnwrappingFailed)
	}

	var payload CommandPayload
	if err := json.Unmarshal(verification.Payload, &payload); err != nil {
		e.log.Warn().Err(err).Str("command", cmd.ID).Msg("failed to parse command payload")
		return errorEvent(ReasonMessageUnwrappingFailed)
	}

	senderDid := verification.SenderDocument.ID
	e.log.Debug().
		Str("command", cmd.ID).
		Str("name", string(payload.Name)).
		Str("sender", senderDid).
		Msg("dispatching command")

	eventPayload, err := e.dispatch(ctx, senderDid, payload)
	if err != nil {
		e.log.Warn().Err(err).Str("command", cmd.ID).Str("sender", senderDid).Msg("command failed")
		return errorEvent(reasonFor(err))
	}

	eventJSON, err := json.Marshal(eventPayload)
	if err != nil {
		return errorEvent(ReasonResponseEncryptionFailed)
	}

	senderKeyAgreement, ok := verification.SenderDocument.FirstKeyAgreement()
	if !ok {
		return errorEvent(ReasonResponseEncryptionFailed)
	}

	encrypted, err := jwe.Encrypt(
		eventJSON,
		e.didData.Keys.EncryptionKeyPair.Private,
		senderKeyAgreement.PublicKeyJwk,
		e.didData.EncryptionKeyID(),
	)
	if err != nil {
		e.log.Error().Err(err).Str("command", cmd.ID).Msg("failed to encrypt event")
		return errorEvent(ReasonResponseEncryptionFailed)
	}

	return Event{ID: uuid.NewString(), Type: MessageTypeEvent, Payload: encrypted}
}

func (e *Engine) dispatch(ctx context.Context, senderDid string, payload CommandPayload) (*EventPayload, error) {
	switch payload.Name {
	case CommandRegister:
		return e.handleRegister(ctx, senderDid, payload.Data)
	case CommandRequestContract:
		return e.handleContractRequest(ctx, senderDid, payload.Data)
	case CommandSignContract:
		return e.handleContractSign(ctx, senderDid, payload.Data)
	case CommandOneWayPublicMessage:
		return e.handleOneWayPublicMessage(ctx, senderDid, payload.Data)
	case CommandTwoWayPrivateMessage:
		return e.handleTwoWayPrivateMessage(ctx, senderDid, payload.Data)
	case CommandQuery:
		return e.handleQuery(ctx, senderDid, payload.Data)
	default:
		return nil, failWith(ReasonUnsupportedCommand)
	}
}

func (e *Engine) handleRegister(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var register RegisterCommandData
	if err := json.Unmarshal(data, &register); err != nil {
		return nil, fmt.Errorf("invalid register payload: %w", err)
	}

	enabled := intersectChannels(register.CommunicationChannels, e.channels)
	if len(enabled) == 0 {
		return &EventPayload{
			Name: EventRegisterFailed,
			Data: RegisterFailedEventData{Reason: ReasonNoEnabledCommunicationChannels},
		}, nil
	}

	if err := e.identities.Create(ctx, RegisteredIdentity{
		Did:                   senderDid,
		CommunicationChannels: enabled,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist registration: %w", err)
	}

	e.log.Info().Str("did", senderDid).Interface("channels", enabled).Msg("identity registered")
	return &EventPayload{
		Name: EventRegistered,
		Data: RegisteredEventData{CommunicationChannels: enabled},
	}, nil
}

func (e *Engine) handleContractRequest(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var request ContractRequestCommandData
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("invalid contract request payload: %w", err)
	}

	if err := e.requireRegistered(ctx, request.RecipientDid); err != nil {
		return nil, err
	}

	if err := e.appendLog(ctx, EventLogEntry{
		Name:     string(CommandRequestContract),
		Payload:  request.SignedCommunicationContractRequest,
		Sender:   senderDid,
		Receiver: request.RecipientDid,
		Metadata: request.Metadata,
	}); err != nil {
		return nil, err
	}

	// Acknowledgment only; the signed request is not echoed back.
	return &EventPayload{Name: EventCommunicationContractRequested}, nil
}

func (e *Engine) handleContractSign(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var sign ContractSignCommandData
	if err := json.Unmarshal(data, &sign); err != nil {
		return nil, fmt.Errorf("invalid contract sign payload: %w", err)
	}

	if err := e.requireRegistered(ctx, sign.RecipientDid); err != nil {
		return nil, err
	}

	if err := e.appendLog(ctx, EventLogEntry{
		Name:     string(CommandSignContract),
		Payload:  sign.SignedCommunicationContract,
		Sender:   senderDid,
		Receiver: sign.RecipientDid,
		Metadata: sign.Metadata,
	}); err != nil {
		return nil, err
	}

	return &EventPayload{Name: EventCommunicationContractSigned}, nil
}

func (e *Engine) handleOneWayPublicMessage(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var message OneWayPublicMessageCommandData
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("invalid one-way message payload: %w", err)
	}

	if err := e.appendLog(ctx, EventLogEntry{
		Name:                 string(CommandOneWayPublicMessage),
		Payload:              message.EncryptedMessage,
		CommunicationChannel: ChannelOneWayPublic,
		Sender:               senderDid,
		Receiver:             message.RecipientDid,
		Metadata:             message.Metadata,
	}); err != nil {
		return nil, err
	}

	return &EventPayload{Name: EventOneWayPublicMessageSent}, nil
}

func (e *Engine) handleTwoWayPrivateMessage(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var message TwoWayPrivateMessageCommandData
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("invalid two-way message payload: %w", err)
	}

	verification, err := contract.Verify(ctx, message.SignedCommunicationContract, e.res)
	if err != nil {
		return nil, failWith(ReasonContractNotValid)
	}
	if !verification.Binds(senderDid, message.RecipientDid) {
		return nil, failWith(ReasonContractNotValid)
	}

	enabled, err := e.identities.ChannelEnabled(ctx, message.RecipientDid, ChannelTwoWayPrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to check recipient channel: %w", err)
	}
	if !enabled {
		return nil, failWith(ReasonRecipientNotRegistered)
	}

	if err := e.appendLog(ctx, EventLogEntry{
		Name:                 string(CommandTwoWayPrivateMessage),
		Payload:              message.EncryptedMessage,
		CommunicationChannel: ChannelTwoWayPrivate,
		Sender:               senderDid,
		Receiver:             message.RecipientDid,
		Metadata:             message.Metadata,
	}); err != nil {
		return nil, err
	}

	return &EventPayload{Name: EventTwoWayPrivateMessageSent}, nil
}

func (e *Engine) handleQuery(ctx context.Context, senderDid string, data json.RawMessage) (*EventPayload, error) {
	var query QueryCommandData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &query); err != nil {
			return nil, fmt.Errorf("invalid query payload: %w", err)
		}
	}

	storeQuery := EventLogQuery{
		Sender:       query.Sender,
		Receiver:     query.Receiver,
		Name:         query.Command,
		Metadata:     query.Metadata,
		CreatedAtGte: query.Gte,
		CreatedAtLte: query.Lte,
		Offset:       query.Offset,
		Limit:        query.Limit,
		OrderBy:      query.OrderBy,
	}

	// Callers see their own inbox by default. Asking for somebody else's
	// rows restricts the query to the public feed.
	if storeQuery.Receiver == "" {
		storeQuery.Receiver = senderDid
	} else if storeQuery.Receiver != senderDid {
		storeQuery.CommunicationChannel = ChannelOneWayPublic
	}

	entries, err := e.events.Query(ctx, storeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}

	results := make([]QueryResultRow, 0, len(entries))
	for _, entry := range entries {
		results = append(results, QueryResultRow{
			ID:                   entry.ID,
			Name:                 entry.Name,
			Payload:              entry.Payload,
			CommunicationChannel: entry.CommunicationChannel,
			Sender:               entry.Sender,
			Recipient:            entry.Receiver,
			Metadata:             entry.Metadata,
			CreatedAt:            entry.CreatedAt,
		})
	}

	return &EventPayload{Name: EventQueryExecuted, Data: QueryExecutedEventData{Results: results}}, nil
}

func (e *Engine) requireRegistered(ctx context.Context, did string) error {
	registered, err := e.identities.IsRegistered(ctx, did)
	if err != nil {
		return fmt.Errorf("failed to check registration: %w", err)
	}
	if !registered {
		return failWith(ReasonRecipientNotRegistered)
	}
	return nil
}

func (e *Engine) appendLog(ctx context.Context, entry EventLogEntry) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = e.now()
	if err := e.events.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to append event log: %w", err)
	}
	return nil
}

func errorEvent(reason ErrorReason) ErrorEvent {
	return ErrorEvent{Type: MessageTypeError, Reason: string(reason)}
}

// reasonFor maps a handler error onto the opaque wire reason. Typed protocol
// errors keep their reason; anything unrecognized collapses to INTERNAL_ERROR
// so store and marshalling detail stays in the local log, never on the wire.
func reasonFor(err error) ErrorReason {
	var perr protocolError
	if errors.As(err, &perr) {
		return perr.reason
	}
	if errors.Is(err, contract.ErrContractInvalid) {
		return ReasonContractNotValid
	}
	return ReasonInternalError
}

func intersectChannels(requested, advertised []Channel) []Channel {
	offered := make(map[Channel]struct{}, len(advertised))
	for _, channel := range advertised {
		offered[channel] = struct{}{}
	}

	var enabled []Channel
	for _, channel := range requested {
		if _, ok := offered[channel]; ok {
			enabled = append(enabled, channel)
		}
	}
	return enabled
}
