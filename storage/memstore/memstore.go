// Package memstore provides in-memory implementations of the mediator and
// registry store contracts, used in tests and single-process deployments.
// All stores are safe for concurrent use from multiple connections.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/decentrl/decentrl-go/mediator"
	"github.com/decentrl/decentrl-go/registry"
)

// IdentityStore is an in-memory mediator.IdentityStore.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]mediator.RegisteredIdentity
}

// NewIdentityStore returns an empty identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{identities: make(map[string]mediator.RegisteredIdentity)}
}

// Create implements mediator.IdentityStore. Re-registering a DID replaces
// its enabled channels.
func (s *IdentityStore) Create(_ context.Context, identity mediator.RegisteredIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.Did] = identity
	return nil
}

// IsRegistered implements mediator.IdentityStore.
func (s *IdentityStore) IsRegistered(_ context.Context, did string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.identities[did]
	return ok, nil
}

// ChannelEnabled implements mediator.IdentityStore.
func (s *IdentityStore) ChannelEnabled(_ context.Context, did string, channel mediator.Channel) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[did]
	if !ok {
		return false, nil
	}
	for _, enabled := range identity.CommunicationChannels {
		if enabled == channel {
			return true, nil
		}
	}
	return false, nil
}

// EventLogStore is an in-memory mediator.EventLogStore.
type EventLogStore struct {
	mu      sync.RWMutex
	entries []mediator.EventLogEntry
}

// NewEventLogStore returns an empty event log.
func NewEventLogStore() *EventLogStore {
	return &EventLogStore{}
}

// Insert implements mediator.EventLogStore.
func (s *EventLogStore) Insert(_ context.Context, entry mediator.EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Query implements mediator.EventLogStore, applying every filter of the
// query and ordering results by createdAt.
func (s *EventLogStore) Query(_ context.Context, query mediator.EventLogQuery) ([]mediator.EventLogEntry, error) {
	s.mu.RLock()
	matched := make([]mediator.EventLogEntry, 0)
	for _, entry := range s.entries {
		if matches(entry, query) {
			matched = append(matched, entry)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if query.OrderBy == mediator.OrderDesc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if query.Offset > 0 {
		if query.Offset >= int64(len(matched)) {
			return nil, nil
		}
		matched = matched[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < int64(len(matched)) {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

func matches(entry mediator.EventLogEntry, query mediator.EventLogQuery) bool {
	if query.Sender != "" && entry.Sender != query.Sender {
		return false
	}
	if query.Receiver != "" && entry.Receiver != query.Receiver {
		return false
	}
	if query.Name != "" && entry.Name != query.Name {
		return false
	}
	if query.CommunicationChannel != "" && entry.CommunicationChannel != query.CommunicationChannel {
		return false
	}
	for key, want := range query.Metadata {
		if entry.Metadata[key] != want {
			return false
		}
	}
	if query.CreatedAtGte != nil && entry.CreatedAt.Before(*query.CreatedAtGte) {
		return false
	}
	if query.CreatedAtLte != nil && entry.CreatedAt.After(*query.CreatedAtLte) {
		return false
	}
	return true
}

// DocumentStore is an in-memory registry.DocumentStore.
type DocumentStore struct {
	mu      sync.RWMutex
	records map[string]registry.Record
}

// NewDocumentStore returns an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{records: make(map[string]registry.Record)}
}

// Create implements registry.DocumentStore.
func (s *DocumentStore) Create(_ context.Context, record registry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Did]; ok {
		return fmt.Errorf("%w: %s", registry.ErrDocumentExists, record.Did)
	}
	s.records[record.Did] = record
	return nil
}

// FindByDid implements registry.DocumentStore.
func (s *DocumentStore) FindByDid(_ context.Context, did string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[did]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownDid, did)
	}
	return &record, nil
}

// Update implements registry.DocumentStore, incrementing the stored version.
func (s *DocumentStore) Update(_ context.Context, record registry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.Did]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownDid, record.Did)
	}
	record.Version = stored.Version + 1
	s.records[record.Did] = record
	return nil
}
