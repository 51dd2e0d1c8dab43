package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmScope/internal/cache"
	"farmScope/internal/cache/memory"
	"farmScope/internal/model"
)

func TestCollectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	cols := cache.NewCollections(memory.NewStore(), "")
	assert.Equal(t, "farmscope:pools", cols.Key(cache.CollectionPools))

	pools := []model.Pool{
		{ID: 10, TokenAccountIDs: []string{"a", "b"}},
		{ID: 2, TokenAccountIDs: []string{"c", "d"}, Farming: true},
	}
	require.NoError(t, cols.PutPools(ctx, pools))

	got, err := cols.Pools(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID, "pools are ordered numerically")
	assert.Equal(t, uint64(10), got[1].ID)

	require.NoError(t, cols.PutTokens(ctx, map[string]model.TokenMetadata{
		"wrap.near": {Symbol: "wNEAR", Decimals: 24},
		"dai.near":  {ID: "dai.near", Symbol: "DAI", Decimals: 18},
	}))
	tokens, err := cols.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "dai.near", tokens[0].ID)
	assert.Equal(t, "wrap.near", tokens[1].ID, "id filled from the key")

	require.NoError(t, cols.PutFarms(ctx, []model.Farm{
		{FarmID: "pool@2#1", SeedID: "pool@2"},
		{FarmID: "pool@2#0", SeedID: "pool@2"},
	}))
	farms, err := cols.Farms(ctx)
	require.NoError(t, err)
	require.Len(t, farms, 2)
	assert.Equal(t, "pool@2#0", farms[0].FarmID)
}

func TestCollectionsMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	cols := cache.NewCollections(memory.NewStore(), "test")

	pools, err := cols.Pools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)

	_, ok, err := cols.Report(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cols.CommittedAt(ctx, cache.CollectionPools)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCollectionsReport(t *testing.T) {
	ctx := context.Background()
	cols := cache.NewCollections(memory.NewStore(), "")

	report := &model.RefreshReport{Steps: []model.StepReport{
		{Name: model.StepTokens, Status: model.StepCommitted, Count: 3},
	}}
	require.NoError(t, cols.PutReport(ctx, report))

	got, ok, err := cols.Report(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.Steps, got.Steps)
}

func TestCollectionsDecodeError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cols := cache.NewCollections(store, "")

	require.NoError(t, store.Put(ctx, cols.Key(cache.CollectionPools), map[string]json.RawMessage{
		"0": json.RawMessage(`not json`),
	}))
	_, err := cols.Pools(ctx)
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}
