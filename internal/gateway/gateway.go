// Package gateway is the persistence boundary of the system: a
// document store with collection semantics, filtered and ordered list
// queries and snapshot subscriptions. Engines treat it as a black box
// and never assume a particular backend.
package gateway

import (
	"context"

	"github.com/ycheng-dev/channelhub/internal/types"
	"go.mongodb.org/mongo-driver/bson"
)

// Document is a raw stored record. "_id" is always a string.
type Document = bson.M

type Op string

const (
	OpEq       Op = "=="
	OpNe       Op = "!="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type OrderBy struct {
	Field      string
	Descending bool
}

// SnapshotFunc receives the full current result set for a subscribed
// query. Every invocation is an authoritative replace of any local
// cache, not a delta.
type SnapshotFunc func(docs []Document)

type Unsubscribe func()

type Gateway interface {
	// Create stores data in collection. An empty id means the gateway
	// assigns one. Returns the document id.
	Create(ctx context.Context, collection string, data any, id string) (string, error)
	// Update applies a partial update to an existing document. Fails
	// with a not-found error if the document is absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error
	GetOne(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error)
	// Subscribe registers fn for snapshot pushes on the query. The
	// current result set is pushed immediately.
	Subscribe(collection string, filters []Filter, fn SnapshotFunc) (Unsubscribe, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Decode converts a raw document into a typed value through the bson
// codec, so both gateway implementations share one mapping.
func Decode[T any](doc Document) (T, error) {
	var v T
	raw, err := bson.Marshal(doc)
	if err != nil {
		return v, types.WriteError(err, "encode document")
	}
	if err := bson.Unmarshal(raw, &v); err != nil {
		return v, types.WriteError(err, "decode document")
	}
	return v, nil
}

// DecodeAll decodes a result set, preserving order.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ToDocument converts a typed value to a raw document.
func ToDocument(v any) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, types.WriteError(err, "encode document")
	}
	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, types.WriteError(err, "decode document")
	}
	return doc, nil
}
