package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoStore reads job documents from a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    MongoConfig
	logger *zap.Logger
}

// NewMongoStore connects to MongoDB. The driver connects lazily; use Ping to
// verify reachability.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(cfg.URI()).
		SetAppName("jobwatch").
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthDatabase,
		})
	}

	logger.Info("connecting to job store",
		zap.String("uri", cfg.URI()),
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// GetJobs implements Store.
func (s *MongoStore) GetJobs(ctx context.Context, ids []string, projection []string) (map[string]Document, error) {
	ids = NormalizeIDs(ids)
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	findOpts := options.Find()
	if p := projectionDoc(projection); p != nil {
		findOpts.SetProjection(p)
	}

	cursor, err := s.coll.Find(ctx, idsFilter(ids), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode job document: %w", err)
		}
		doc := normalizeDocument(raw)
		id := doc.ID()
		if id == "" {
			continue
		}
		out[id] = doc
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// GetJob implements Store.
func (s *MongoStore) GetJob(ctx context.Context, id string, projection []string) (Document, error) {
	id, err := requireID(id)
	if err != nil {
		return nil, err
	}

	findOpts := options.FindOne()
	if p := projectionDoc(projection); p != nil {
		findOpts.SetProjection(p)
	}

	var raw bson.M
	err = s.coll.FindOne(ctx, idFilter(id), findOpts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return normalizeDocument(raw), nil
}

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	s.logger.Debug("closing job store connection")
	return s.client.Disconnect(ctx)
}

// idValues returns the forms an id may be stored as: the string itself and,
// for 24-digit hex ids, the ObjectID.
func idValues(id string) []any {
	vals := []any{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		vals = append(vals, oid)
	}
	return vals
}

func idsFilter(ids []string) bson.M {
	in := make(bson.A, 0, len(ids))
	for _, id := range ids {
		in = append(in, idValues(id)...)
	}
	return bson.M{FieldJobID: bson.M{"$in": in}}
}

func idFilter(id string) bson.M {
	vals := idValues(id)
	if len(vals) == 1 {
		return bson.M{FieldJobID: bson.M{"$eq": id}}
	}
	return bson.M{FieldJobID: bson.M{"$in": bson.A(vals)}}
}

// projectionDoc returns nil when every field is wanted.
func projectionDoc(fields []string) bson.D {
	if len(fields) == 0 {
		return nil
	}
	doc := bson.D{{Key: FieldJobID, Value: 1}}
	for _, f := range fields {
		if f == FieldJobID || f == "" {
			continue
		}
		doc = append(doc, bson.E{Key: f, Value: 1})
	}
	return doc
}

func normalizeDocument(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeValue(v)
	}
	return doc
}

// normalizeValue converts BSON-specific types into plain Go values so
// documents render the same way regardless of backend.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(normalizeDocument(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	default:
		return v
	}
}

var _ Store = (*MongoStore)(nil)
