// Package exchange lists the liquidity pools of the exchange contract and
// annotates them with farming state and token symbols.
package exchange

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"farmScope/internal/model"
	"farmScope/internal/near"
	"farmScope/internal/token"
)

const (
	methodNumberOfPools = "get_number_of_pools"
	methodGetPools      = "get_pools"

	DefaultPageSize = 200
)

type Config struct {
	ExchangeContract string
	PageSize         int
}

// PoolAggregator builds the pools collection of one refresh.
type PoolAggregator struct {
	caller near.Caller
	cfg    Config
	tokens *token.Resolver
	logger *zap.Logger
}

func NewPoolAggregator(cfg Config, caller near.Caller, tokens *token.Resolver, logger *zap.Logger) *PoolAggregator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolAggregator{caller: caller, cfg: cfg, tokens: tokens, logger: logger}
}

type getPoolsArgs struct {
	FromIndex uint64 `json:"from_index"`
	Limit     uint64 `json:"limit"`
}

type poolWire struct {
	PoolKind          string   `json:"pool_kind"`
	TokenAccountIDs   []string `json:"token_account_ids"`
	Amounts           []string `json:"amounts"`
	TotalFee          uint32   `json:"total_fee"`
	SharesTotalSupply string   `json:"shares_total_supply"`
	Amp               uint64   `json:"amp"`
}

// ResolvePools lists every pool, numbers them in listing order and marks the
// ones whose seed is in activeSeeds. Count and listing failures are fatal;
// a token whose symbol cannot be resolved is left out of TokenSymbols.
func (a *PoolAggregator) ResolvePools(ctx context.Context, activeSeeds model.SeedSet) ([]model.Pool, error) {
	total, err := a.NumberOfPools(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := a.listPools(ctx, total)
	if err != nil {
		return nil, err
	}

	pools := make([]model.Pool, 0, len(raw))
	for i, wire := range raw {
		id := uint64(i)
		pools = append(pools, model.Pool{
			ID:                id,
			PoolKind:          wire.PoolKind,
			TokenAccountIDs:   wire.TokenAccountIDs,
			Amounts:           wire.Amounts,
			TotalFee:          wire.TotalFee,
			SharesTotalSupply: wire.SharesTotalSupply,
			Amp:               wire.Amp,
			Farming:           activeSeeds.Has(model.PoolSeedID(a.cfg.ExchangeContract, id)),
		})
	}

	a.attachSymbols(ctx, pools)

	a.logger.Info("pools resolved",
		zap.Uint64("reported", total),
		zap.Int("listed", len(pools)),
	)
	return pools, nil
}

// NumberOfPools returns the pool count reported by the exchange.
func (a *PoolAggregator) NumberOfPools(ctx context.Context) (uint64, error) {
	var total uint64
	if err := near.View(ctx, a.caller, a.cfg.ExchangeContract, methodNumberOfPools, nil, &total); err != nil {
		return 0, fmt.Errorf("get number of pools: %w", err)
	}
	return total, nil
}

func (a *PoolAggregator) listPools(ctx context.Context, total uint64) ([]poolWire, error) {
	out := make([]poolWire, 0, min(total, 4096))
	for from := uint64(0); from < total; {
		var batch []poolWire
		args := getPoolsArgs{FromIndex: from, Limit: uint64(a.cfg.PageSize)}
		if err := near.View(ctx, a.caller, a.cfg.ExchangeContract, methodGetPools, args, &batch); err != nil {
			return nil, fmt.Errorf("get pools from %d: %w", from, err)
		}
		if len(batch) == 0 {
			a.logger.Warn("pool listing ended before reported count",
				zap.Uint64("from", from),
				zap.Uint64("reported", total),
			)
			break
		}
		out = append(out, batch...)
		from += uint64(len(batch))
	}
	return out, nil
}

func (a *PoolAggregator) attachSymbols(ctx context.Context, pools []model.Pool) {
	var ids []string
	seen := make(map[string]struct{})
	for _, pool := range pools {
		for _, id := range pool.TokenAccountIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	var resolved map[string]model.TokenMetadata
	if a.tokens != nil && len(ids) > 0 {
		resolved = a.tokens.ResolveTokenMetadata(ctx, ids)
	}

	for i := range pools {
		symbols := make([]string, 0, len(pools[i].TokenAccountIDs))
		for _, id := range pools[i].TokenAccountIDs {
			if meta, ok := resolved[id]; ok {
				symbols = append(symbols, meta.Symbol)
			}
		}
		pools[i].TokenSymbols = symbols
	}
}
