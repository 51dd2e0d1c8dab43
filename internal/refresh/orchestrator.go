// Package refresh runs the refresh cycle that rebuilds the cached collections.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"farmScope/internal/cache"
	"farmScope/internal/exchange"
	"farmScope/internal/farming"
	"farmScope/internal/mirror"
	"farmScope/internal/model"
	"farmScope/internal/observability"
	"farmScope/internal/token"
)

// ErrRefreshInProgress is returned when another refresh or eviction holds
// the refresh lease.
var ErrRefreshInProgress = errors.New("refresh: a refresh is already in progress")

const (
	DefaultLeaseTTL = 5 * time.Minute
	leaseName       = "lease:refresh"
)

type Config struct {
	// LeaseTTL bounds how long a crashed writer can block others when the
	// store supports cross-process leases.
	LeaseTTL time.Duration
}

// Orchestrator sequences the token, farm and pool steps and commits each
// collection as a whole. A failed step leaves the previous collection in
// place.
type Orchestrator struct {
	cfg     Config
	cols    *cache.Collections
	tokens  *token.Resolver
	farms   *farming.Resolver
	pools   *exchange.PoolAggregator
	mirror  mirror.Sink
	reports ReportStore
	metrics *observability.Metrics
	logger  *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

type Option func(*Orchestrator)

// WithMirror archives every committed collection to sink.
func WithMirror(sink mirror.Sink) Option {
	return func(o *Orchestrator) { o.mirror = sink }
}

func WithReportStore(store ReportStore) Option {
	return func(o *Orchestrator) { o.reports = store }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(cfg Config, cols *cache.Collections, tokens *token.Resolver, farms *farming.Resolver, pools *exchange.PoolAggregator, logger *zap.Logger, opts ...Option) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg,
		cols:   cols,
		tokens: tokens,
		farms:  farms,
		pools:  pools,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RefreshAll runs one refresh cycle. Step failures are recorded in the
// report; the returned error is non-nil only when the cycle could not start
// or was cancelled.
func (o *Orchestrator) RefreshAll(ctx context.Context) (*model.RefreshReport, error) {
	release, err := o.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &model.RefreshReport{StartedAt: o.now().UTC()}
	o.logger.Info("refresh started")

	committed := o.seedTokenCache(ctx)

	tokenStep := o.runStep(ctx, report, model.StepTokens, func(ctx context.Context) (int, error) {
		whitelisted, err := o.tokens.ResolveWhitelistedTokens(ctx)
		if err != nil {
			return 0, err
		}
		if len(whitelisted) == 0 {
			return 0, &model.EmptyResultError{Collection: cache.CollectionTokenMetadata}
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return o.commitTokens(ctx, committed)
	})
	if err := ctx.Err(); err != nil {
		return o.finish(ctx, report), err
	}

	var snap farming.Snapshot
	farmStep := o.runStep(ctx, report, model.StepFarms, func(ctx context.Context) (int, error) {
		var err error
		snap, err = o.farms.Resolve(ctx)
		if err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := o.cols.PutFarms(ctx, snap.Farms); err != nil {
			return 0, err
		}
		o.archive(ctx, cache.CollectionFarms, mirror.Records(snap.Farms))
		return len(snap.Farms), nil
	})
	if err := ctx.Err(); err != nil {
		return o.finish(ctx, report), err
	}

	if farmStep.Status != model.StepCommitted {
		o.skipStep(report, model.StepPools, "farms step did not commit")
	} else {
		o.runStep(ctx, report, model.StepPools, func(ctx context.Context) (int, error) {
			pools, err := o.pools.ResolvePools(ctx, snap.ActiveSeeds)
			if err != nil {
				return 0, err
			}
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if err := o.cols.PutPools(ctx, pools); err != nil {
				return 0, err
			}
			o.archive(ctx, cache.CollectionPools, mirror.Records(pools))
			return len(pools), nil
		})
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, report), err
		}
	}

	// Pool symbols may have pulled tokens outside the whitelist into the cache.
	// They only join the collection when this cycle's token step committed, so
	// an empty or failed whitelist never rewrites token_metadata.
	if tokenStep.Status == model.StepCommitted && hasNew(o.tokens.Cache().Snapshot(), committed) {
		count, err := o.commitTokens(ctx, committed)
		if err != nil {
			o.logger.Warn("commit tokens discovered by pools", zap.Error(err))
		} else {
			o.logger.Info("committed tokens discovered by pools", zap.Int("tokens", count))
			setCount(report, model.StepTokens, count)
		}
	}

	return o.finish(ctx, report), nil
}

// EvictTokens drops ids from the in-memory token cache and rewrites the
// stored token collection without them.
func (o *Orchestrator) EvictTokens(ctx context.Context, ids ...string) error {
	release, err := o.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	o.tokens.Cache().Evict(ids...)

	stored, err := o.cols.TokenMap(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	removed := 0
	for _, id := range ids {
		if _, ok := stored[id]; ok {
			delete(stored, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	if err := o.cols.PutTokens(ctx, stored); err != nil {
		return fmt.Errorf("commit tokens: %w", err)
	}
	o.logger.Info("tokens evicted", zap.Strings("tokens", ids), zap.Int("remaining", len(stored)))
	return nil
}

// Run refreshes every interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RefreshAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Warn("scheduled refresh", zap.Error(err))
			}
		}
	}
}

// LastReport returns the last refresh report from the cache, falling back to
// the report store when the cache holds none, e.g. after a cache flush.
func (o *Orchestrator) LastReport(ctx context.Context) (*model.RefreshReport, bool, error) {
	report, ok, err := o.cols.Report(ctx)
	if err != nil || ok || o.reports == nil {
		return report, ok, err
	}
	return o.reports.Load(ctx)
}

func (o *Orchestrator) lock(ctx context.Context) (func(), error) {
	if !o.mu.TryLock() {
		o.rejected()
		return nil, ErrRefreshInProgress
	}

	leaser, ok := o.cols.Store().(cache.Leaser)
	if !ok {
		return o.mu.Unlock, nil
	}
	releaseLease, err := leaser.AcquireLease(ctx, o.cols.Key(leaseName), o.cfg.LeaseTTL)
	if err != nil {
		o.mu.Unlock()
		if errors.Is(err, cache.ErrLeaseHeld) {
			o.rejected()
			return nil, ErrRefreshInProgress
		}
		return nil, fmt.Errorf("acquire refresh lease: %w", err)
	}
	return func() {
		if err := releaseLease(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("release refresh lease", zap.Error(err))
		}
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) rejected() {
	if o.metrics != nil {
		o.metrics.ObserveRejected()
	}
}

// seedTokenCache loads the stored token collection into the in-memory cache
// and returns the ids it holds.
func (o *Orchestrator) seedTokenCache(ctx context.Context) map[string]struct{} {
	committed := make(map[string]struct{})
	stored, err := o.cols.TokenMap(ctx)
	if err != nil {
		o.logger.Warn("load stored tokens", zap.Error(err))
		return committed
	}
	o.tokens.Cache().Merge(stored)
	for id := range stored {
		committed[id] = struct{}{}
	}
	return committed
}

// commitTokens replaces the token collection with the in-memory cache and
// records the committed ids.
func (o *Orchestrator) commitTokens(ctx context.Context, committed map[string]struct{}) (int, error) {
	snapshot := o.tokens.Cache().Snapshot()
	if err := o.cols.PutTokens(ctx, snapshot); err != nil {
		return 0, err
	}

	fresh := make([]model.TokenMetadata, 0)
	for _, id := range sortedIDs(snapshot) {
		if _, ok := committed[id]; !ok {
			fresh = append(fresh, snapshot[id])
			committed[id] = struct{}{}
		}
	}
	o.archive(ctx, cache.CollectionTokenMetadata, mirror.Records(fresh))
	return len(snapshot), nil
}

func (o *Orchestrator) runStep(ctx context.Context, report *model.RefreshReport, name string, fn func(context.Context) (int, error)) model.StepReport {
	started := o.now()
	count, err := fn(ctx)

	step := model.StepReport{
		Name:       name,
		Status:     model.StepCommitted,
		Count:      count,
		DurationMs: o.now().Sub(started).Milliseconds(),
	}
	var empty *model.EmptyResultError
	switch {
	case err == nil:
		o.logger.Info("refresh step committed", zap.String("step", name), zap.Int("count", count))
	case errors.As(err, &empty):
		step.Status = model.StepEmpty
		step.Error = err.Error()
		o.logger.Warn("refresh step empty, keeping previous collection", zap.String("step", name))
	default:
		step.Status = model.StepFailed
		step.Error = err.Error()
		o.logger.Warn("refresh step failed, keeping previous collection", zap.String("step", name), zap.Error(err))
	}
	report.Steps = append(report.Steps, step)
	return step
}

func (o *Orchestrator) skipStep(report *model.RefreshReport, name, reason string) {
	o.logger.Warn("refresh step skipped", zap.String("step", name), zap.String("reason", reason))
	report.Steps = append(report.Steps, model.StepReport{
		Name:   name,
		Status: model.StepSkipped,
		Error:  reason,
	})
}

func (o *Orchestrator) archive(ctx context.Context, collection string, records []interface{}) {
	if o.mirror == nil || len(records) == 0 {
		return
	}
	if err := o.mirror.InsertMany(ctx, collection, records); err != nil {
		o.logger.Warn("mirror collection", zap.String("collection", collection), zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, report *model.RefreshReport) *model.RefreshReport {
	report.FinishedAt = o.now().UTC()
	persistCtx := context.WithoutCancel(ctx)

	if err := o.cols.PutReport(persistCtx, report); err != nil {
		o.logger.Warn("store refresh report", zap.Error(err))
	}
	if o.reports != nil {
		if err := o.reports.Save(persistCtx, report); err != nil {
			o.logger.Warn("save refresh report", zap.Error(err))
		}
	}
	if o.metrics != nil {
		o.metrics.ObserveReport(report)
	}

	o.logger.Info("refresh finished",
		zap.Bool("ok", report.OK()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func hasNew(snapshot map[string]model.TokenMetadata, committed map[string]struct{}) bool {
	for id := range snapshot {
		if _, ok := committed[id]; !ok {
			return true
		}
	}
	return false
}

func setCount(report *model.RefreshReport, name string, count int) {
	for i := range report.Steps {
		if report.Steps[i].Name == name {
			report.Steps[i].Count = count
		}
	}
}

func sortedIDs(tokens map[string]model.TokenMetadata) []string {
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
