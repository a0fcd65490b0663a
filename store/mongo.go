package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoDatabase is used when the connection string names no database.
const DefaultMongoDatabase = "backend-test"

// MongoStore keeps items in a MongoDB collection. Ids are ObjectIds, exposed
// as hex strings; item fields are constrained to the configured schema.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	settings
}

// ConnectMongo connects to uri, verifies the connection and returns a store
// over the named collection of the database in the uri path.
func ConnectMongo(ctx context.Context, uri, collection string, opts ...Option) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}
	coll := client.Database(mongoDatabase(uri)).Collection(collection)
	return NewMongoStore(coll, opts...), nil
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection, opts ...Option) *MongoStore {
	s := &MongoStore{
		client:   coll.Database().Client(),
		coll:     coll,
		settings: newSettings(opts),
	}
	s.requireSchema()
	return s
}

func mongoDatabase(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return DefaultMongoDatabase
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return DefaultMongoDatabase
}

func parseObjectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, &InvalidIDError{ID: id, Kind: "ObjectId"}
	}
	return oid, nil
}

// fromDocument converts a decoded document into an Item: _id becomes the hex
// id and BSON values become plain Go values.
func fromDocument(doc bson.M) Item {
	it := make(Item, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
			if oid, ok := v.(bson.ObjectID); ok {
				it["id"] = oid.Hex()
			} else {
				it["id"] = v
			}
		case "__v":
		default:
			it[k] = fromBSON(v)
		}
	}
	return it
}

func fromBSON(v any) any {
	switch x := v.(type) {
	case bson.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case bson.ObjectID:
		return x.Hex()
	case bson.M:
		return map[string]any(fromDocument(x))
	case map[string]any:
		return map[string]any(fromDocument(x))
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromBSON(e)
		}
		return out
	}
	return v
}

// failed logs a driver error and returns it wrapped.
func (s *MongoStore) failed(op string, err error) error {
	s.logger.Error("mongo "+op+" failed", "collection", s.coll.Name(), "error", err)
	return fmt.Errorf("store: mongo %s: %w", op, err)
}

func (s *MongoStore) Create(ctx context.Context, data map[string]any) (Item, error) {
	doc, err := s.cast(data, true)
	if err != nil {
		return nil, err
	}
	doc["lastUpdate"] = s.clock.Now()
	res, err := s.coll.InsertOne(ctx, bson.M(doc))
	if err != nil {
		return nil, s.failed("insert", err)
	}
	stored := bson.M{"_id": res.InsertedID}
	for k, v := range doc {
		stored[k] = v
	}
	return fromDocument(stored), nil
}

func (s *MongoStore) List(ctx context.Context) ([]Item, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, s.failed("find", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, s.failed("find", err)
	}
	items := make([]Item, len(docs))
	for i, doc := range docs {
		items[i] = fromDocument(doc)
	}
	return items, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (Item, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, oid)
}

func (s *MongoStore) get(ctx context.Context, oid bson.ObjectID) (Item, error) {
	var doc bson.M
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.failed("find one", err)
	}
	return fromDocument(doc), nil
}

func (s *MongoStore) Update(ctx context.Context, id string, data map[string]any) (Item, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	set, err := s.cast(data, false)
	if err != nil {
		return nil, err
	}
	existing, err := s.get(ctx, oid)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	set["lastUpdate"] = s.clock.After(existing.LastUpdate())

	var doc bson.M
	err = s.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.M(set)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.failed("update", err)
	}
	return fromDocument(doc), nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}}); err != nil {
		return s.failed("delete", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
