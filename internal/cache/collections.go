package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"farmScope/internal/model"
)

// Collections is the typed view of the farms, pools and token metadata
// collections of a Store.
type Collections struct {
	store  Store
	prefix string
}

func NewCollections(store Store, prefix string) *Collections {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Collections{store: store, prefix: prefix}
}

// Store returns the underlying store.
func (c *Collections) Store() Store {
	return c.store
}

// Key returns the namespaced key of a collection.
func (c *Collections) Key(collection string) string {
	return c.prefix + ":" + collection
}

func (c *Collections) PutFarms(ctx context.Context, farms []model.Farm) error {
	entries := make(map[string]json.RawMessage, len(farms))
	for _, farm := range farms {
		if err := putEntry(entries, farm.FarmID, farm); err != nil {
			return err
		}
	}
	return c.store.Put(ctx, c.Key(CollectionFarms), entries)
}

// Farms returns the cached farms ordered by farm id.
func (c *Collections) Farms(ctx context.Context) ([]model.Farm, error) {
	entries, err := c.store.GetAll(ctx, c.Key(CollectionFarms))
	if err != nil {
		return nil, err
	}
	farms := make([]model.Farm, 0, len(entries))
	for _, key := range sortedKeys(entries) {
		var farm model.Farm
		if err := json.Unmarshal(entries[key], &farm); err != nil {
			return nil, &model.DecodeError{What: "cached farm " + key, Err: err}
		}
		farms = append(farms, farm)
	}
	return farms, nil
}

func (c *Collections) PutPools(ctx context.Context, pools []model.Pool) error {
	entries := make(map[string]json.RawMessage, len(pools))
	for _, pool := range pools {
		if err := putEntry(entries, pool.Key(), pool); err != nil {
			return err
		}
	}
	return c.store.Put(ctx, c.Key(CollectionPools), entries)
}

// Pools returns the cached pools ordered by id.
func (c *Collections) Pools(ctx context.Context) ([]model.Pool, error) {
	entries, err := c.store.GetAll(ctx, c.Key(CollectionPools))
	if err != nil {
		return nil, err
	}
	pools := make([]model.Pool, 0, len(entries))
	for key, raw := range entries {
		var pool model.Pool
		if err := json.Unmarshal(raw, &pool); err != nil {
			return nil, &model.DecodeError{What: "cached pool " + key, Err: err}
		}
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (c *Collections) PutTokens(ctx context.Context, tokens map[string]model.TokenMetadata) error {
	entries := make(map[string]json.RawMessage, len(tokens))
	for id, meta := range tokens {
		if err := putEntry(entries, id, meta); err != nil {
			return err
		}
	}
	return c.store.Put(ctx, c.Key(CollectionTokenMetadata), entries)
}

// TokenMap returns the cached token metadata keyed by token contract id.
func (c *Collections) TokenMap(ctx context.Context) (map[string]model.TokenMetadata, error) {
	entries, err := c.store.GetAll(ctx, c.Key(CollectionTokenMetadata))
	if err != nil {
		return nil, err
	}
	tokens := make(map[string]model.TokenMetadata, len(entries))
	for id, raw := range entries {
		var meta model.TokenMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, &model.DecodeError{What: "cached token " + id, Err: err}
		}
		if meta.ID == "" {
			meta.ID = id
		}
		tokens[id] = meta
	}
	return tokens, nil
}

// Tokens returns the cached token metadata ordered by token id.
func (c *Collections) Tokens(ctx context.Context) ([]model.TokenMetadata, error) {
	tokens, err := c.TokenMap(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.TokenMetadata, 0, len(ids))
	for _, id := range ids {
		out = append(out, tokens[id])
	}
	return out, nil
}

// PutReport stores the last refresh report as a single-entry collection.
func (c *Collections) PutReport(ctx context.Context, report *model.RefreshReport) error {
	entries := make(map[string]json.RawMessage, 1)
	if err := putEntry(entries, "last", report); err != nil {
		return err
	}
	return c.store.Put(ctx, c.Key(CollectionRefreshReport), entries)
}

// Report returns the last stored refresh report.
func (c *Collections) Report(ctx context.Context) (*model.RefreshReport, bool, error) {
	entries, err := c.store.GetAll(ctx, c.Key(CollectionRefreshReport))
	if err != nil {
		return nil, false, err
	}
	raw, ok := entries["last"]
	if !ok {
		return nil, false, nil
	}
	var report model.RefreshReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, false, &model.DecodeError{What: "cached refresh report", Err: err}
	}
	return &report, true, nil
}

// CommittedAt returns when a collection was last replaced.
func (c *Collections) CommittedAt(ctx context.Context, collection string) (time.Time, bool, error) {
	return c.store.CommittedAt(ctx, c.Key(collection))
}

func putEntry(entries map[string]json.RawMessage, key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("empty cache key for %T", value)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	entries[key] = raw
	return nil
}

func sortedKeys(entries map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
