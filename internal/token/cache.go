package token

import (
	gocache "github.com/patrickmn/go-cache"

	"farmScope/internal/model"
)

// Cache holds resolved token metadata for the life of the process. Entries
// never expire; they leave only through Evict.
type Cache struct {
	items *gocache.Cache
}

func NewCache() *Cache {
	return &Cache{items: gocache.New(gocache.NoExpiration, 0)}
}

func (c *Cache) Get(id string) (model.TokenMetadata, bool) {
	v, ok := c.items.Get(id)
	if !ok {
		return model.TokenMetadata{}, false
	}
	return v.(model.TokenMetadata), true
}

func (c *Cache) Set(id string, meta model.TokenMetadata) {
	if meta.ID == "" {
		meta.ID = id
	}
	c.items.Set(id, meta, gocache.NoExpiration)
}

// Merge adds every entry of tokens, overwriting existing ones.
func (c *Cache) Merge(tokens map[string]model.TokenMetadata) {
	for id, meta := range tokens {
		c.Set(id, meta)
	}
}

func (c *Cache) Evict(ids ...string) {
	for _, id := range ids {
		c.items.Delete(id)
	}
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Snapshot returns a copy of every cached entry.
func (c *Cache) Snapshot() map[string]model.TokenMetadata {
	items := c.items.Items()
	out := make(map[string]model.TokenMetadata, len(items))
	for id, item := range items {
		out[id] = item.Object.(model.TokenMetadata)
	}
	return out
}
