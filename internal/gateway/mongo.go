package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ycheng-dev/channelhub/internal/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 10 * time.Second

// MongoGateway implements Gateway on a MongoDB database. Subscribe is
// built on change streams: every stream event triggers a re-query and
// a full snapshot push, which matches the replace-not-delta contract.
type MongoGateway struct {
	log    *log.Logger
	client *mongo.Client
	db     *mongo.Database
	wg     sync.WaitGroup
}

func NewMongoGateway(logger *log.Logger, uri, database string) (*MongoGateway, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, types.WriteError(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, types.WriteError(err, "ping mongodb")
	}

	return &MongoGateway{
		log:    logger,
		client: client,
		db:     client.Database(database),
	}, nil
}

func (g *MongoGateway) Create(ctx context.Context, collection string, data any, id string) (string, error) {
	doc, err := ToDocument(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		if v, ok := doc["_id"].(string); ok && v != "" {
			id = v
		} else {
			id = primitive.NewObjectID().Hex()
		}
	}
	doc["_id"] = id

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := g.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", types.WriteError(err, "insert into %s", collection)
	}
	return id, nil
}

func (g *MongoGateway) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res, err := g.db.Collection(collection).UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		return types.WriteError(err, "update %s/%s", collection, id)
	}
	if res.MatchedCount == 0 {
		return types.NotFound("document %s/%s not found", collection, id)
	}
	return nil
}

func (g *MongoGateway) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := g.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return types.WriteError(err, "delete %s/%s", collection, id)
	}
	return nil
}

func (g *MongoGateway) GetOne(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var doc Document
	err := g.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, types.NotFound("document %s/%s not found", collection, id)
	}
	if err != nil {
		return nil, types.WriteError(err, "get %s/%s", collection, id)
	}
	return doc, nil
}

func (g *MongoGateway) List(ctx context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Find()
	if order != nil {
		dir := 1
		if order.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: order.Field, Value: dir}})
	}

	cursor, err := g.db.Collection(collection).Find(ctx, mongoFilter(filters), opts)
	if err != nil {
		return nil, types.WriteError(err, "list %s", collection)
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, types.WriteError(err, "decode %s results", collection)
	}
	return docs, nil
}

func (g *MongoGateway) Subscribe(collection string, filters []Filter, fn SnapshotFunc) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := g.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, types.WriteError(err, "watch %s", collection)
	}

	push := func() {
		docs, err := g.List(ctx, collection, filters, nil)
		if err != nil {
			g.log.Printf("gateway: snapshot query on %s: %v", collection, err)
			return
		}
		fn(docs)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer stream.Close(context.Background())

		push()
		for stream.Next(ctx) {
			push()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			g.log.Printf("gateway: change stream on %s: %v", collection, err)
		}
	}()

	return func() { cancel() }, nil
}

func (g *MongoGateway) Ping(ctx context.Context) error {
	if err := g.client.Ping(ctx, nil); err != nil {
		return types.WriteError(err, "ping mongodb")
	}
	return nil
}

func (g *MongoGateway) Close(ctx context.Context) error {
	g.wg.Wait()
	if err := g.client.Disconnect(ctx); err != nil {
		return types.WriteError(err, "disconnect mongodb")
	}
	return nil
}

func mongoFilter(filters []Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case OpEq:
			out[f.Field] = f.Value
		case OpNe:
			out[f.Field] = bson.M{"$ne": f.Value}
		case OpLt:
			out[f.Field] = bson.M{"$lt": f.Value}
		case OpLte:
			out[f.Field] = bson.M{"$lte": f.Value}
		case OpGt:
			out[f.Field] = bson.M{"$gt": f.Value}
		case OpGte:
			out[f.Field] = bson.M{"$gte": f.Value}
		case OpContains:
			// Matching a scalar against an array field is mongo's
			// native array membership query.
			out[f.Field] = f.Value
		}
	}
	return out
}
