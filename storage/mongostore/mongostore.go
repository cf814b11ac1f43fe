// Package mongostore implements the mediator and registry store contracts
// on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/decentrl/decentrl-go/mediator"
	"github.com/decentrl/decentrl-go/registry"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store bundles every collection-backed store on one connection.
type Store struct {
	client     *mongo.Client
	identities *mongo.Collection
	eventLog   *mongo.Collection
	documents  *mongo.Collection
}

// NewStore connects to MongoDB and prepares the collections and indexes.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:     client,
		identities: db.Collection("registered_identities"),
		eventLog:   db.Collection("event_log"),
		documents:  db.Collection("did_documents"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.identities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "did", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.eventLog.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "did", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type identityRow struct {
	Did                   string             `bson:"did"`
	CommunicationChannels []mediator.Channel `bson:"communicationChannels"`
}

// Create implements mediator.IdentityStore; re-registration replaces the
// enabled channels.
func (s *Store) Create(ctx context.Context, identity mediator.RegisteredIdentity) error {
	row := identityRow{Did: identity.Did, CommunicationChannels: identity.CommunicationChannels}
	_, err := s.identities.ReplaceOne(ctx,
		bson.M{"did": identity.Did},
		row,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store registration: %w", err)
	}
	return nil
}

// IsRegistered implements mediator.IdentityStore.
func (s *Store) IsRegistered(ctx context.Context, did string) (bool, error) {
	err := s.identities.FindOne(ctx, bson.M{"did": did}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up registration: %w", err)
	}
	return true, nil
}

// ChannelEnabled implements mediator.IdentityStore.
func (s *Store) ChannelEnabled(ctx context.Context, did string, channel mediator.Channel) (bool, error) {
	err := s.identities.FindOne(ctx, bson.M{
		"did":                   did,
		"communicationChannels": channel,
	}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up channel: %w", err)
	}
	return true, nil
}

type eventLogRow struct {
	ID                   string            `bson:"id"`
	Name                 string            `bson:"name"`
	Payload              string            `bson:"payload"`
	CommunicationChannel mediator.Channel  `bson:"communicationChannel,omitempty"`
	Sender               string            `bson:"sender"`
	Receiver             string            `bson:"receiver,omitempty"`
	Metadata             map[string]string `bson:"metadata,omitempty"`
	CreatedAt            int64             `bson:"createdAt"`
}

// Insert implements mediator.EventLogStore.
func (s *Store) Insert(ctx context.Context, entry mediator.EventLogEntry) error {
	row := eventLogRow{
		ID:                   entry.ID,
		Name:                 entry.Name,
		Payload:              entry.Payload,
		CommunicationChannel: entry.CommunicationChannel,
		Sender:               entry.Sender,
		Receiver:             entry.Receiver,
		Metadata:             entry.Metadata,
		CreatedAt:            entry.CreatedAt.UnixNano(),
	}
	if _, err := s.eventLog.InsertOne(ctx, row); err != nil {
		return fmt.Errorf("failed to append event log: %w", err)
	}
	return nil
}

// Query implements mediator.EventLogStore, translating the query filters
// into a MongoDB find.
func (s *Store) Query(ctx context.Context, query mediator.EventLogQuery) ([]mediator.EventLogEntry, error) {
	filter := bson.M{}
	if query.Sender != "" {
		filter["sender"] = query.Sender
	}
	if query.Receiver != "" {
		filter["receiver"] = query.Receiver
	}
	if query.Name != "" {
		filter["name"] = query.Name
	}
	if query.CommunicationChannel != "" {
		filter["communicationChannel"] = query.CommunicationChannel
	}
	for key, want := range query.Metadata {
		filter["metadata."+key] = want
	}
	createdAt := bson.M{}
	if query.CreatedAtGte != nil {
		createdAt["$gte"] = query.CreatedAtGte.UnixNano()
	}
	if query.CreatedAtLte != nil {
		createdAt["$lte"] = query.CreatedAtLte.UnixNano()
	}
	if len(createdAt) > 0 {
		filter["createdAt"] = createdAt
	}

	order := 1
	if query.OrderBy == mediator.OrderDesc {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}})
	if query.Offset > 0 {
		opts.SetSkip(query.Offset)
	}
	if query.Limit > 0 {
		opts.SetLimit(query.Limit)
	}

	cursor, err := s.eventLog.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []eventLogRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode event log rows: %w", err)
	}

	entries := make([]mediator.EventLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mediator.EventLogEntry{
			ID:                   row.ID,
			Name:                 row.Name,
			Payload:              row.Payload,
			CommunicationChannel: row.CommunicationChannel,
			Sender:               row.Sender,
			Receiver:             row.Receiver,
			Metadata:             row.Metadata,
			CreatedAt:            timeFromUnixNano(row.CreatedAt),
		})
	}
	return entries, nil
}

type documentRow struct {
	Did       string `bson:"did"`
	Document  []byte `bson:"didDocument"`
	Signature string `bson:"signature"`
	Version   int64  `bson:"version"`
}

// CreateDocument implements registry.DocumentStore.Create.
func (s *Store) CreateDocument(ctx context.Context, record registry.Record) error {
	row, err := documentRowFrom(record)
	if err != nil {
		return err
	}
	if _, err := s.documents.InsertOne(ctx, row); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", registry.ErrDocumentExists, record.Did)
		}
		return fmt.Errorf("failed to store did document: %w", err)
	}
	return nil
}

// FindDocumentByDid implements registry.DocumentStore.FindByDid.
func (s *Store) FindDocumentByDid(ctx context.Context, did string) (*registry.Record, error) {
	var row documentRow
	err := s.documents.FindOne(ctx, bson.M{"did": did}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownDid, did)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find did document: %w", err)
	}
	return recordFrom(row)
}

// UpdateDocument implements registry.DocumentStore.Update, incrementing the
// stored version atomically.
func (s *Store) UpdateDocument(ctx context.Context, record registry.Record) error {
	row, err := documentRowFrom(record)
	if err != nil {
		return err
	}
	result, err := s.documents.UpdateOne(ctx,
		bson.M{"did": record.Did},
		bson.M{
			"$set": bson.M{"didDocument": row.Document, "signature": row.Signature},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update did document: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", registry.ErrUnknownDid, record.Did)
	}
	return nil
}

// Documents adapts the store to the registry.DocumentStore interface, whose
// method names collide with the mediator store methods on Store itself.
func (s *Store) Documents() registry.DocumentStore {
	return documentStore{store: s}
}

type documentStore struct {
	store *Store
}

func (d documentStore) Create(ctx context.Context, record registry.Record) error {
	return d.store.CreateDocument(ctx, record)
}

func (d documentStore) FindByDid(ctx context.Context, did string) (*registry.Record, error) {
	return d.store.FindDocumentByDid(ctx, did)
}

func (d documentStore) Update(ctx context.Context, record registry.Record) error {
	return d.store.UpdateDocument(ctx, record)
}
