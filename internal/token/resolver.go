// Package token resolves NEP-141 token metadata through ft_metadata view calls.
package token

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"farmScope/internal/model"
	"farmScope/internal/near"
)

const (
	methodMetadata    = "ft_metadata"
	methodWhitelisted = "get_whitelisted_tokens"

	defaultConcurrency = 8
)

// Resolver is a cache-first token metadata resolver.
type Resolver struct {
	caller      near.Caller
	exchange    string
	cache       *Cache
	concurrency int
	logger      *zap.Logger
	group       singleflight.Group
}

func NewResolver(caller near.Caller, exchangeContract string, cache *Cache, concurrency int, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		caller:      caller,
		exchange:    exchangeContract,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (r *Resolver) Cache() *Cache {
	return r.cache
}

// ResolveTokenMetadata returns the metadata of every id that is cached or
// could be fetched. Failed lookups are logged and left out of the result.
func (r *Resolver) ResolveTokenMetadata(ctx context.Context, ids []string) map[string]model.TokenMetadata {
	out := make(map[string]model.TokenMetadata, len(ids))
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if meta, ok := r.cache.Get(id); ok {
			out[id] = meta
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	results := make([]*model.TokenMetadata, len(missing))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range missing {
		i, id := i, id
		g.Go(func() error {
			meta, err := r.fetch(ctx, id)
			if err != nil {
				r.logger.Warn("token metadata lookup failed", zap.String("token", id), zap.Error(err))
				return nil
			}
			results[i] = &meta
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range missing {
		if results[i] != nil {
			out[id] = *results[i]
		}
	}
	return out
}

// ResolveWhitelistedTokens fetches the exchange whitelist and resolves the
// metadata of its tokens. Only the whitelist call can fail.
func (r *Resolver) ResolveWhitelistedTokens(ctx context.Context) (map[string]model.TokenMetadata, error) {
	ids, err := r.WhitelistedTokenIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.ResolveTokenMetadata(ctx, ids), nil
}

// WhitelistedTokenIDs returns the exchange's whitelisted token contracts.
func (r *Resolver) WhitelistedTokenIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := near.View(ctx, r.caller, r.exchange, methodWhitelisted, nil, &ids); err != nil {
		return nil, fmt.Errorf("get whitelisted tokens: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Symbol returns the symbol of a token, resolving it when not cached.
func (r *Resolver) Symbol(ctx context.Context, id string) (string, bool) {
	meta, ok := r.ResolveTokenMetadata(ctx, []string{id})[id]
	if !ok {
		return "", false
	}
	return meta.Symbol, true
}

func (r *Resolver) fetch(ctx context.Context, id string) (model.TokenMetadata, error) {
	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if meta, ok := r.cache.Get(id); ok {
			return meta, nil
		}
		var meta model.TokenMetadata
		if err := near.View(ctx, r.caller, id, methodMetadata, nil, &meta); err != nil {
			return nil, err
		}
		meta.ID = id
		r.cache.Set(id, meta)
		return meta, nil
	})
	if err != nil {
		return model.TokenMetadata{}, err
	}
	return v.(model.TokenMetadata), nil
}
