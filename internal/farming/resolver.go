// Package farming reads seeds and farms from the farming contract and derives
// the set of seeds that still pay out rewards.
package farming

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"farmScope/internal/model"
	"farmScope/internal/near"
)

const (
	methodListSeeds       = "list_seeds"
	methodListFarmsBySeed = "list_farms_by_seed"

	DefaultSeedPageSize = 100
	defaultConcurrency  = 8
)

// Config configures a Resolver.
type Config struct {
	FarmContract string
	SeedPageSize int
	Concurrency  int
}

// Snapshot is the outcome of one pass over every seed's farms.
type Snapshot struct {
	// ActiveSeeds holds the seeds with at least one active farm.
	ActiveSeeds model.SeedSet
	// Farms holds every farm of every seed, active or not, ordered by farm id.
	Farms []model.Farm
}

type Resolver struct {
	caller near.Caller
	cfg    Config
	logger *zap.Logger
}

func NewResolver(cfg Config, caller near.Caller, logger *zap.Logger) *Resolver {
	if cfg.SeedPageSize <= 0 {
		cfg.SeedPageSize = DefaultSeedPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{caller: caller, cfg: cfg, logger: logger}
}

type listSeedsArgs struct {
	FromIndex uint64 `json:"from_index"`
	Limit     uint64 `json:"limit"`
}

type listFarmsArgs struct {
	SeedID model.SeedID `json:"seed_id"`
}

// ResolveSeeds returns the seeds of the first list_seeds page. Only one page
// is requested; a full page is logged since further seeds would be missed.
func (r *Resolver) ResolveSeeds(ctx context.Context) (model.SeedSet, error) {
	var amounts map[string]string
	args := listSeedsArgs{FromIndex: 0, Limit: uint64(r.cfg.SeedPageSize)}
	if err := near.View(ctx, r.caller, r.cfg.FarmContract, methodListSeeds, args, &amounts); err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}

	seeds := make(model.SeedSet, len(amounts))
	for id := range amounts {
		seeds.Add(model.SeedID(id))
	}
	if len(seeds) >= r.cfg.SeedPageSize {
		r.logger.Warn("seed listing filled a whole page, later seeds are not fetched",
			zap.Int("seeds", len(seeds)),
			zap.Int("limit", r.cfg.SeedPageSize),
		)
	}
	return seeds, nil
}

// ListFarms returns every farm attached to seeds, ordered by farm id.
func (r *Resolver) ListFarms(ctx context.Context, seeds model.SeedSet) ([]model.Farm, error) {
	perSeed, err := r.farmsBySeed(ctx, seeds.Sorted())
	if err != nil {
		return nil, err
	}
	return flatten(perSeed), nil
}

// ResolveActiveFarmSeeds returns the seeds that have at least one active farm.
func (r *Resolver) ResolveActiveFarmSeeds(ctx context.Context) (model.SeedSet, error) {
	snap, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ActiveSeeds, nil
}

// Resolve lists seeds and their farms once and derives both the active seed
// set and the full farm list from that single pass. Any per-seed failure
// aborts the whole pass.
func (r *Resolver) Resolve(ctx context.Context) (Snapshot, error) {
	seeds, err := r.ResolveSeeds(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	ids := seeds.Sorted()
	perSeed, err := r.farmsBySeed(ctx, ids)
	if err != nil {
		return Snapshot{}, err
	}

	active, err := activeOf(ids, perSeed)
	if err != nil {
		return Snapshot{}, err
	}

	r.logger.Info("farms resolved",
		zap.Int("seeds", len(ids)),
		zap.Int("active_seeds", len(active)),
	)
	return Snapshot{ActiveSeeds: active, Farms: flatten(perSeed)}, nil
}

func (r *Resolver) farmsBySeed(ctx context.Context, ids []model.SeedID) ([][]model.Farm, error) {
	out := make([][]model.Farm, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			var farms []model.Farm
			if err := near.View(gctx, r.caller, r.cfg.FarmContract, methodListFarmsBySeed, listFarmsArgs{SeedID: id}, &farms); err != nil {
				return fmt.Errorf("list farms of seed %s: %w", id, err)
			}
			out[i] = farms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func activeOf(ids []model.SeedID, perSeed [][]model.Farm) (model.SeedSet, error) {
	active := model.NewSeedSet()
	for i, id := range ids {
		ok, err := anyActive(perSeed[i])
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", id, err)
		}
		if ok {
			active.Add(id)
		}
	}
	return active, nil
}

func anyActive(farms []model.Farm) (bool, error) {
	for _, farm := range farms {
		ok, err := farm.IsActive()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func flatten(perSeed [][]model.Farm) []model.Farm {
	var farms []model.Farm
	for _, list := range perSeed {
		farms = append(farms, list...)
	}
	sort.Slice(farms, func(i, j int) bool { return farms[i].FarmID < farms[j].FarmID })
	return farms
}
