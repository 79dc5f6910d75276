// Package mongostore is the durable eventlog.Store backend: an append-only
// collection with a unique index on (stream_id, sequence), plus a sibling
// counters collection that hands out the next sequence for a stream via an
// atomic $inc. Subscriptions are serviced by polling, since Mongo change
// streams require a replica set that a single-node deployment may not have;
// callers that need push delivery should front this store with
// eventlog/pulsebus instead of relying on Subscribe directly.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentloom/orchestrator/eventlog"
)

const (
	defaultEventsCollection   = "orchestrator_events"
	defaultCountersCollection = "orchestrator_stream_counters"
	defaultOpTimeout          = 5 * time.Second
	defaultPollInterval       = 250 * time.Millisecond
)

// Options configures a Store.
type Options struct {
	Client             *mongo.Client
	Database           string
	EventsCollection   string // defaults to defaultEventsCollection
	CountersCollection string // defaults to defaultCountersCollection
	Timeout            time.Duration
	PollInterval       time.Duration // Subscribe poll cadence, defaults to defaultPollInterval
}

// Store implements eventlog.Store against MongoDB.
type Store struct {
	events       collection
	counters     collection
	timeout      time.Duration
	pollInterval time.Duration
}

// New constructs a Store and ensures its indexes exist.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	eventsColl := opts.EventsCollection
	if eventsColl == "" {
		eventsColl = defaultEventsCollection
	}
	countersColl := opts.CountersCollection
	if countersColl == "" {
		countersColl = defaultCountersCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	db := opts.Client.Database(opts.Database)
	events := mongoCollection{coll: db.Collection(eventsColl)}
	counters := mongoCollection{coll: db.Collection(countersColl)}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(ictx, events); err != nil {
		return nil, fmt.Errorf("mongostore: ensure indexes: %w", err)
	}

	return &Store{events: events, counters: counters, timeout: timeout, pollInterval: poll}, nil
}

func ensureIndexes(ctx context.Context, events collection) error {
	_, err := events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "stream_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type envelopeDoc struct {
	StreamID     string            `bson:"stream_id"`
	AggregateID  string            `bson:"aggregate_id"`
	Sequence     int64             `bson:"sequence"`
	EventType    string            `bson:"event_type"`
	EventVersion string            `bson:"event_version"`
	Data         bson.Raw          `bson:"data"`
	Metadata     eventlog.Metadata `bson:"metadata"`
	CreatedAt    time.Time         `bson:"created_at"`
}

func toDoc(env eventlog.Envelope) (envelopeDoc, error) {
	// Data arrives as JSON bytes (json.RawMessage); re-decode and re-encode as
	// BSON so it round-trips through arbitrary tool/LLM payload shapes without
	// a bespoke schema per event type.
	var asAny any
	if err := json.Unmarshal(env.Data, &asAny); err != nil {
		return envelopeDoc{}, err
	}
	data, err := bson.Marshal(asAny)
	if err != nil {
		return envelopeDoc{}, err
	}
	return envelopeDoc{
		StreamID:     env.StreamID,
		AggregateID:  env.AggregateID,
		Sequence:     env.Sequence,
		EventType:    env.EventType,
		EventVersion: env.EventVersion,
		Data:         data,
		Metadata:     env.Metadata,
		CreatedAt:    env.CreatedAt,
	}, nil
}

func (d envelopeDoc) toEnvelope() (eventlog.Envelope, error) {
	var asAny any
	if err := bson.Unmarshal(d.Data, &asAny); err != nil {
		return eventlog.Envelope{}, err
	}
	raw, err := json.Marshal(asAny)
	if err != nil {
		return eventlog.Envelope{}, err
	}
	return eventlog.Envelope{
		StreamID:     d.StreamID,
		AggregateID:  d.AggregateID,
		Sequence:     d.Sequence,
		EventType:    d.EventType,
		EventVersion: d.EventVersion,
		Data:         raw,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
	}, nil
}

// Append implements eventlog.Store.
func (s *Store) Append(ctx context.Context, stream, aggregate, eventType, eventVersion string, data any, meta eventlog.Metadata) (eventlog.Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return eventlog.Envelope{}, &eventlog.SerializeError{Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seq, err := s.nextSequence(ctx, stream)
	if err != nil {
		return eventlog.Envelope{}, fmt.Errorf("mongostore: next sequence: %w", err)
	}

	env := eventlog.Envelope{
		StreamID:     stream,
		AggregateID:  aggregate,
		Sequence:     seq,
		EventType:    eventType,
		EventVersion: eventVersion,
		Data:         raw,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
	doc, err := toDoc(env)
	if err != nil {
		return eventlog.Envelope{}, &eventlog.SerializeError{Cause: err}
	}

	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return eventlog.Envelope{}, eventlog.ErrConflict
		}
		return eventlog.Envelope{}, err
	}
	return env, nil
}

func (s *Store) nextSequence(ctx context.Context, stream string) (int64, error) {
	filter := bson.M{"_id": stream}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	res, err := s.counters.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))
	if err != nil {
		return 0, err
	}
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Load implements eventlog.Store.
func (s *Store) Load(ctx context.Context, q eventlog.Query, fromSequence int64) ([]eventlog.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := queryFilter(q, fromSequence)
	cur, err := s.events.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []eventlog.Envelope
	for cur.Next(ctx) {
		var doc envelopeDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		env, err := doc.toEnvelope()
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, cur.Err()
}

func queryFilter(q eventlog.Query, fromSequence int64) bson.M {
	filter := bson.M{"stream_id": q.Stream}
	if fromSequence > 0 {
		filter["sequence"] = bson.M{"$gte": fromSequence}
	}
	if q.AggregateID != "" {
		filter["aggregate_id"] = q.AggregateID
	}
	if q.EventType != "" {
		filter["event_type"] = q.EventType
	}
	return filter
}

// Subscribe implements eventlog.Store by polling Load at pollInterval. A
// lagging consumer here simply sees a larger batch on its next poll rather
// than receiving eventlog.ErrLag — the poll loop exits only on context
// cancellation or a query error.
func (s *Store) Subscribe(ctx context.Context, q eventlog.Query, fromSequence int64) (<-chan eventlog.Envelope, <-chan error) {
	out := make(chan eventlog.Envelope, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		next := fromSequence
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			envs, err := s.Load(ctx, q, next)
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				return
			}
			for _, env := range envs {
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
				next = env.Sequence + 1
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// collection narrows *mongo.Collection to the operations this store uses, so
// tests can substitute an in-memory fake without a live Mongo instance.
type collection interface {
	InsertOne(ctx context.Context, document any) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult
	Indexes() mongo.IndexView
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any) (*mongo.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c mongoCollection) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult {
	return c.coll.FindOneAndUpdate(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() mongo.IndexView {
	return c.coll.Indexes()
}
