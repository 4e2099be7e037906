package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ycheng-dev/channelhub/internal/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryGateway is a process-local Gateway used by tests and local
// development. It implements the same snapshot-replace subscription
// semantics as the Mongo implementation.
type MemoryGateway struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subs        map[int]*memorySub
	nextSub     int
	closed      bool
}

type memorySub struct {
	collection string
	filters    []Filter
	queue      chan []Document
	done       chan struct{}
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		collections: make(map[string]map[string]Document),
		subs:        make(map[int]*memorySub),
	}
}

func (g *MemoryGateway) Create(ctx context.Context, collection string, data any, id string) (string, error) {
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

	g.mu.Lock()
	coll, ok := g.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		g.collections[collection] = coll
	}
	coll[id] = doc
	g.notifyLocked(collection)
	g.mu.Unlock()

	return id, nil
}

func (g *MemoryGateway) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.collections[collection][id]
	if !ok {
		return types.NotFound("document %s/%s not found", collection, id)
	}
	for k, v := range fields {
		norm, err := normalizeValue(v)
		if err != nil {
			return err
		}
		doc[k] = norm
	}
	g.notifyLocked(collection)
	return nil
}

func (g *MemoryGateway) Delete(ctx context.Context, collection, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if coll, ok := g.collections[collection]; ok {
		if _, ok := coll[id]; ok {
			delete(coll, id)
			g.notifyLocked(collection)
		}
	}
	return nil
}

func (g *MemoryGateway) GetOne(ctx context.Context, collection, id string) (Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.collections[collection][id]
	if !ok {
		return nil, types.NotFound("document %s/%s not found", collection, id)
	}
	return cloneDocument(doc)
}

func (g *MemoryGateway) List(ctx context.Context, collection string, filters []Filter, order *OrderBy) ([]Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queryLocked(collection, filters, order)
}

func (g *MemoryGateway) queryLocked(collection string, filters []Filter, order *OrderBy) ([]Document, error) {
	var out []Document
	for _, doc := range g.collections[collection] {
		if matches(doc, filters) {
			clone, err := cloneDocument(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, clone)
		}
	}

	// Deterministic base order before any explicit sort.
	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i]["_id"].(string)
		b, _ := out[j]["_id"].(string)
		return a < b
	})
	if order != nil {
		sort.SliceStable(out, func(i, j int) bool {
			cmp := compareValues(out[i][order.Field], out[j][order.Field])
			if order.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	return out, nil
}

func (g *MemoryGateway) Subscribe(collection string, filters []Filter, fn SnapshotFunc) (Unsubscribe, error) {
	sub := &memorySub{
		collection: collection,
		filters:    filters,
		queue:      make(chan []Document, 16),
		done:       make(chan struct{}),
	}

	go func() {
		for docs := range sub.queue {
			select {
			case <-sub.done:
				return
			default:
			}
			fn(docs)
		}
	}()

	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = sub
	docs, err := g.queryLocked(collection, filters, nil)
	if err == nil {
		sub.push(docs)
	}
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			close(sub.done)
			close(sub.queue)
		})
	}, nil
}

// push enqueues a snapshot, dropping the oldest queued one when the
// consumer lags. Snapshots are full replaces, so stale ones are
// safe to discard.
func (s *memorySub) push(docs []Document) {
	for {
		select {
		case s.queue <- docs:
			return
		default:
			select {
			case <-s.queue:
			default:
			}
		}
	}
}

func (g *MemoryGateway) notifyLocked(collection string) {
	for _, sub := range g.subs {
		if sub.collection != collection {
			continue
		}
		docs, err := g.queryLocked(collection, sub.filters, nil)
		if err != nil {
			continue
		}
		sub.push(docs)
	}
}

func (g *MemoryGateway) Ping(ctx context.Context) error { return nil }

func (g *MemoryGateway) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	for id, sub := range g.subs {
		close(sub.done)
		close(sub.queue)
		delete(g.subs, id)
	}
	return nil
}

func cloneDocument(doc Document) (Document, error) {
	// bson round trip is a deep copy; callers never alias stored maps
	// or slices.
	return ToDocument(doc)
}

func normalizeValue(v any) (any, error) {
	doc, err := ToDocument(Document{"v": v})
	if err != nil {
		return nil, err
	}
	return doc["v"], nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		val := doc[f.Field]
		switch f.Op {
		case OpContains:
			if !arrayContains(val, f.Value) {
				return false
			}
		case OpEq:
			if compareValues(val, f.Value) != 0 {
				return false
			}
		case OpNe:
			if compareValues(val, f.Value) == 0 {
				return false
			}
		case OpLt:
			if compareValues(val, f.Value) >= 0 {
				return false
			}
		case OpLte:
			if compareValues(val, f.Value) > 0 {
				return false
			}
		case OpGt:
			if compareValues(val, f.Value) <= 0 {
				return false
			}
		case OpGte:
			if compareValues(val, f.Value) < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func arrayContains(val, want any) bool {
	arr, ok := val.(primitive.A)
	if !ok {
		return false
	}
	for _, item := range arr {
		if compareValues(item, want) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders two bson values, coercing numeric types so
// int32/int64/float64 representations of the same number compare
// equal.
func compareValues(a, b any) int {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}

	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}

	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	return 1
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
