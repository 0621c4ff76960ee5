// Package mongodb is a MongoDB store. Entity tables map to collections.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"batchloader/internal/lookup"
	"batchloader/internal/schema"
)

// Store runs lookups against one MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and verifies the connection
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, fmt.Errorf("mongodb database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(database),
	}, nil
}

// SelectIn implements backend.Store
func (s *Store) SelectIn(ctx context.Context, ent *schema.Entity, field string, keys []any, fields []string) ([]lookup.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	in := make(bson.A, len(keys))
	for i, key := range keys {
		in[i] = toBSONValue(field, key)
	}

	opts := options.Find().SetProjection(projection(fields))
	cur, err := s.db.Collection(ent.Table).Find(ctx, bson.M{field: bson.M{"$in": in}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s failed: %w", ent.Table, err)
	}
	return decodeAll(ctx, cur)
}

// SelectWhere implements backend.Store
func (s *Store) SelectWhere(ctx context.Context, ent *schema.Entity, q lookup.RangeQuery, fields []string) ([]lookup.Record, error) {
	filter, err := buildFilter(q.Where)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetProjection(projection(fields))
	if len(q.OrderBy) > 0 {
		opts.SetSort(buildSort(q.OrderBy))
	}
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Take > 0 {
		opts.SetLimit(int64(q.Take))
	}

	cur, err := s.db.Collection(ent.Table).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s failed: %w", ent.Table, err)
	}
	return decodeAll(ctx, cur)
}

// Close implements backend.Store
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]lookup.Record, error) {
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	out := make([]lookup.Record, len(docs))
	for i, doc := range docs {
		out[i] = toRecord(doc)
	}
	return out, nil
}

// projection includes fields and excludes _id unless it is requested
func projection(fields []string) bson.M {
	proj := bson.M{"_id": 0}
	for _, f := range fields {
		proj[f] = 1
	}
	return proj
}

func buildFilter(where map[string]any) (bson.M, error) {
	filter := bson.M{}
	for f, v := range where {
		key, err := lookup.NormalizeKey(v)
		if err != nil {
			return nil, fmt.Errorf("where.%s: %w", f, err)
		}
		filter[f] = toBSONValue(f, key)
	}
	return filter, nil
}

func buildSort(order []lookup.Order) bson.D {
	sort := make(bson.D, len(order))
	for i, o := range order {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort[i] = bson.E{Key: o.Field, Value: dir}
	}
	return sort
}

// toBSONValue turns hex strings queried against _id into ObjectIDs
func toBSONValue(field string, key any) any {
	if field != "_id" {
		return key
	}
	if s, ok := key.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return key
}

// toRecord converts driver types into values the rest of the service handles
func toRecord(doc bson.M) lookup.Record {
	rec := make(lookup.Record, len(doc))
	for k, v := range doc {
		rec[k] = toValue(v)
	}
	return rec
}

func toValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case int32:
		return int64(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case bson.M:
		return toRecord(val)
	case bson.D:
		rec := make(lookup.Record, len(val))
		for _, e := range val {
			rec[e.Key] = toValue(e.Value)
		}
		return rec
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toValue(item)
		}
		return out
	default:
		return v
	}
}
