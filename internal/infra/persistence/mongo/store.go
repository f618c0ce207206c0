// Package mongo provides a FactStore on a MongoDB collection holding one
// document per state code.
//
// Appends are a single findOneAndUpdate with $addToSet/$each and upsert, so
// the server applies the set union atomically. Replace and delete rewrite
// the list with a compare-and-swap on the version field.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"statefacts/pkg/domain"
)

var _ domain.FactStore = (*Store)(nil)

const (
	defaultDatabase   = "statefacts"
	defaultCollection = "states"
	// maxCASAttempts bounds the optimistic retries of replace and delete.
	maxCASAttempts = 32
)

// ErrContention is returned when a compare-and-swap keeps losing to
// concurrent writers.
var ErrContention = errors.New("mongo: too much write contention")

// Config locates the collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store is the MongoDB fact store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
	intn   func(int) int
}

// NewStore connects, pings and ensures the unique stateCode index.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "stateCode", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("stateCode_unique"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create stateCode index: %w", err)
	}
	return &Store{client: client, coll: coll, now: time.Now, intn: rand.IntN}, nil
}

// Collection exposes the underlying collection for tests.
func (s *Store) Collection() *mongo.Collection { return s.coll }

func normalize(doc *domain.FactDocument) {
	if doc.Facts == nil {
		doc.Facts = []string{}
	}
	doc.UpdatedAt = doc.UpdatedAt.UTC()
}

func (s *Store) Get(ctx context.Context, code string) (domain.FactDocument, bool, error) {
	var doc domain.FactDocument
	err := s.coll.FindOne(ctx, bson.M{"stateCode": code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.FactDocument{}, false, nil
	}
	if err != nil {
		return domain.FactDocument{}, false, fmt.Errorf("find %s: %w", code, err)
	}
	normalize(&doc)
	return doc, true, nil
}

// distinct drops repeated entries from facts, keeping first occurrences, so
// the $addToSet/$each order matches domain.FactDocument.AppendDistinct.
func distinct(facts []string) []string {
	seen := make(map[string]struct{}, len(facts))
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (s *Store) AppendDistinct(ctx context.Context, code string, facts []string) (domain.FactDocument, error) {
	update := bson.M{
		"$addToSet": bson.M{"funfacts": bson.M{"$each": distinct(facts)}},
		"$inc":      bson.M{"version": 1},
		"$set":      bson.M{"updatedAt": s.now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc domain.FactDocument
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"stateCode": code}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced to create the document; the loser retries as an update.
		err = s.coll.FindOneAndUpdate(ctx, bson.M{"stateCode": code}, update, opts).Decode(&doc)
	}
	if err != nil {
		return domain.FactDocument{}, fmt.Errorf("append %s: %w", code, err)
	}
	normalize(&doc)
	return doc, nil
}

// swap applies fn to the current document and writes it back only if no
// other writer bumped the version in between.
func (s *Store) swap(ctx context.Context, op, code string, fn func(*domain.FactDocument) error) (domain.FactDocument, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, found, err := s.Get(ctx, code)
		if err != nil {
			return domain.FactDocument{}, err
		}
		if !found {
			return domain.FactDocument{}, domain.MissingDocument(op, code)
		}
		prev := doc.Version
		if err := fn(&doc); err != nil {
			return domain.FactDocument{}, err
		}
		doc.Touch(s.now())
		res, err := s.coll.UpdateOne(ctx,
			bson.M{"stateCode": code, "version": prev},
			bson.M{"$set": bson.M{"funfacts": doc.Facts, "version": doc.Version, "updatedAt": doc.UpdatedAt}},
		)
		if err != nil {
			return domain.FactDocument{}, fmt.Errorf("%s %s: %w", op, code, err)
		}
		if res.MatchedCount == 1 {
			return doc, nil
		}
	}
	return domain.FactDocument{}, fmt.Errorf("%s %s: %w", op, code, ErrContention)
}

func (s *Store) ReplaceAt(ctx context.Context, code string, position int, value string) (domain.FactDocument, error) {
	return s.swap(ctx, domain.OpReplace, code, func(d *domain.FactDocument) error { return d.ReplaceAt(position, value) })
}

func (s *Store) DeleteAt(ctx context.Context, code string, position int) (domain.FactDocument, error) {
	return s.swap(ctx, domain.OpDelete, code, func(d *domain.FactDocument) error { return d.DeleteAt(position) })
}

func (s *Store) PickRandom(ctx context.Context, code string) (string, error) {
	doc, found, err := s.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.NotFound(domain.OpPickRandom, code, "no fun facts available for this state")
	}
	return doc.Pick(s.intn)
}

func (s *Store) List(ctx context.Context) ([]domain.FactDocument, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "stateCode", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find all: %w", err)
	}
	var docs []domain.FactDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode all: %w", err)
	}
	for i := range docs {
		normalize(&docs[i])
	}
	return docs, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
