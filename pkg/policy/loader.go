package policy

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the target of an update or delete does not
// exist. It is distinct from a denial: the storage layer surfaces it as a 404
// rather than a 403.
var ErrNotFound = errors.New("document not found")

// Relation names a set of documents related to a target document
type Relation string

const (
	// RelationMirrors resolves the stall-mirror stock items linked to a
	// master stock item via originalMasterItemId.
	RelationMirrors Relation = "mirrors"
)

// Loader resolves documents the rule evaluation needs beyond the request's
// own pre/post images. Load returns (nil, nil) for a missing document; the
// engine decides whether absence is an error for the given operation.
type Loader interface {
	Load(ctx context.Context, collection Collection, id string) (Document, error)
	LoadRelated(ctx context.Context, collection Collection, id string, relation Relation) ([]Document, error)
}

// cachedLoader memoizes loader calls for the duration of a single Authorize
// call. Flattening a declarative rule tree into imperative code makes it easy
// to issue the same lookup twice; the cache keeps each decision to at most one
// scan per (collection, id, relation).
type cachedLoader struct {
	inner   Loader
	docs    map[string]Document
	related map[string][]Document
}

func newCachedLoader(inner Loader) *cachedLoader {
	return &cachedLoader{
		inner:   inner,
		docs:    make(map[string]Document),
		related: make(map[string][]Document),
	}
}

func (c *cachedLoader) Load(ctx context.Context, collection Collection, id string) (Document, error) {
	key := string(collection) + "/" + id
	if doc, ok := c.docs[key]; ok {
		return doc, nil
	}
	doc, err := c.inner.Load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	c.docs[key] = doc
	return doc, nil
}

func (c *cachedLoader) LoadRelated(ctx context.Context, collection Collection, id string, relation Relation) ([]Document, error) {
	key := string(collection) + "/" + id + "#" + string(relation)
	if docs, ok := c.related[key]; ok {
		return docs, nil
	}
	docs, err := c.inner.LoadRelated(ctx, collection, id, relation)
	if err != nil {
		return nil, err
	}
	c.related[key] = docs
	return docs, nil
}
