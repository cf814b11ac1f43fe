package mediator

import (
	"context"
	"time"
)

// Order is the createdAt sort direction of an event-log query.
type Order string

// Sort directions.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// RegisteredIdentity is a DID with its enabled communication channels.
type RegisteredIdentity struct {
	Did                   string    `json:"did"`
	CommunicationChannels []Channel `json:"communicationChannels"`
}

// IdentityStore persists registrations. Implementations must tolerate
// concurrent access from multiple connections; concurrent registrations of
// different DIDs must never corrupt each other.
type IdentityStore interface {
	Create(ctx context.Context, identity RegisteredIdentity) error
	IsRegistered(ctx context.Context, did string) (bool, error)
	ChannelEnabled(ctx context.Context, did string, channel Channel) (bool, error)
}

// EventLogEntry is the durable record of a relayed command.
type EventLogEntry struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Payload              string            `json:"payload"`
	CommunicationChannel Channel           `json:"communicationChannel,omitempty"`
	Sender               string            `json:"sender"`
	Receiver             string            `json:"receiver,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// EventLogQuery filters and pages the event log. Zero-valued fields are not
// applied; Metadata entries are exact-match per key.
type EventLogQuery struct {
	Sender               string
	Receiver             string
	Name                 string
	CommunicationChannel Channel
	Metadata             map[string]string
	CreatedAtGte         *time.Time
	CreatedAtLte         *time.Time
	Offset               int64
	Limit                int64
	OrderBy              Order
}

// EventLogStore persists and queries relayed commands. Appends may run
// concurrently; query results are totally ordered by createdAt.
type EventLogStore interface {
	Insert(ctx context.Context, entry EventLogEntry) error
	Query(ctx context.Context, query EventLogQuery) ([]EventLogEntry, error)
}
