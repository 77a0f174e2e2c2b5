package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps the most recently saved or read records in memory so
// repeated lookups of the same assessment skip the backend. Recent always
// goes to the backend.
type CachedStore struct {
	Store
	cache *lru.Cache[string, Record]
}

var _ Store = (*CachedStore)(nil)

// NewCached wraps s with an LRU of the given size.
func NewCached(s Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, Record](size)
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	return &CachedStore{Store: s, cache: cache}, nil
}

func (c *CachedStore) Save(ctx context.Context, rec Record) error {
	if err := c.Store.Save(ctx, rec); err != nil {
		return err
	}
	c.cache.Add(rec.ID, rec)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, id string) (Record, error) {
	if rec, ok := c.cache.Get(id); ok {
		return rec, nil
	}
	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	c.cache.Add(id, rec)
	return rec, nil
}

// Len reports how many records are cached.
func (c *CachedStore) Len() int { return c.cache.Len() }
