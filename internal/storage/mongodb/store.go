// Package mongodb stores assignments, events and enrollments as documents.
// Unique indexes stand in for the uniqueness rules; a duplicate-key error on
// insert means "already exists".
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/storage"
)

const (
	collAssignments = "users"
	collEvents      = "events"
	collEnrollments = "enrollments"
)

type Store struct {
	client      *mongo.Client
	assignments *mongo.Collection
	events      *mongo.Collection
	enrollments *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(20 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s := newStore(client, client.Database(dbName))
	if err := s.Ready(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:      client,
		assignments: db.Collection(collAssignments),
		events:      db.Collection(collEvents),
		enrollments: db.Collection(collEnrollments),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.assignments, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.events, []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "dedupKey", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "dedupKey", Value: bson.D{{Key: "$exists", Value: true}}}}),
			},
			{Keys: bson.D{{Key: "ts", Value: 1}}},
		}},
		{s.enrollments, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "courseId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "enrolledAt", Value: 1}}},
		}},
	}
	for _, ix := range specs {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) FindAssignment(ctx context.Context, userToken string) (domain.Assignment, error) {
	var doc assignmentDoc
	err := s.assignments.FindOne(ctx, bson.D{{Key: "userId", Value: userToken}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Assignment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Assignment{}, persistErr("find assignment", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) InsertAssignmentIfAbsent(ctx context.Context, a domain.Assignment) (domain.Assignment, bool, error) {
	_, err := s.assignments.InsertOne(ctx, newAssignmentDoc(a))
	if err == nil {
		return a, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return domain.Assignment{}, false, persistErr("insert assignment", err)
	}
	existing, err := s.FindAssignment(ctx, a.UserToken)
	if err != nil {
		return domain.Assignment{}, false, err
	}
	return existing, false, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (bool, error) {
	doc, err := newEventDoc(ev)
	if err != nil {
		return false, persistErr("encode event", err)
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, persistErr("insert event", err)
	}
	return true, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, persistErr("list events", err)
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr("decode events", err)
	}
	out := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) InsertEnrollmentIfAbsent(ctx context.Context, en domain.Enrollment) (domain.Enrollment, bool, error) {
	_, err := s.enrollments.InsertOne(ctx, newEnrollmentDoc(en))
	if err == nil {
		return en, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return domain.Enrollment{}, false, persistErr("insert enrollment", err)
	}
	var doc enrollmentDoc
	filter := bson.D{{Key: "userId", Value: en.UserToken}, {Key: "courseId", Value: en.CourseID}}
	if err := s.enrollments.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Enrollment{}, false, persistErr("find enrollment", err)
	}
	return doc.toDomain(), false, nil
}

func (s *Store) ListEnrollments(ctx context.Context) ([]domain.Enrollment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "enrolledAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.enrollments.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, persistErr("list enrollments", err)
	}
	var docs []enrollmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr("decode enrollments", err)
	}
	out := make([]domain.Enrollment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) Ready(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrPersistence, err))
}

// decodeExtra turns the opaque JSON payload into a value the driver stores as
// a native document.
func decodeExtra(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeExtra(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

var _ storage.Store = (*Store)(nil)
