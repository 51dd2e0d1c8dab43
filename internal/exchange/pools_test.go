package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmScope/internal/model"
	"farmScope/internal/near/neartest"
	"farmScope/internal/token"
)

const exchangeContract = "ref-finance-101.testnet"

// servePools answers get_pools from a listing of n pools, each holding the
// tokens tok<i>.testnet and wrap.testnet.
func servePools(t *testing.T, caller *neartest.Caller, n int) {
	t.Helper()
	serveCappedPools(t, caller, n, 0)
}

// serveCappedPools is servePools with each batch truncated to maxBatch
// entries regardless of the requested limit. Zero means no cap.
func serveCappedPools(t *testing.T, caller *neartest.Caller, n, maxBatch int) {
	t.Helper()
	caller.Respond(exchangeContract, "get_number_of_pools", n)
	caller.Handle(exchangeContract, "get_pools", func(_ context.Context, args json.RawMessage) (interface{}, error) {
		var req getPoolsArgs
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		limit := req.Limit
		if maxBatch > 0 && limit > uint64(maxBatch) {
			limit = uint64(maxBatch)
		}
		batch := []poolWire{}
		for i := req.FromIndex; i < req.FromIndex+limit && i < uint64(n); i++ {
			batch = append(batch, poolWire{
				PoolKind:          "SIMPLE_POOL",
				TokenAccountIDs:   []string{fmt.Sprintf("tok%d.testnet", i), "wrap.testnet"},
				Amounts:           []string{"1", "2"},
				TotalFee:          30,
				SharesTotalSupply: fmt.Sprint(i),
			})
		}
		return batch, nil
	})
}

func newAggregator(caller *neartest.Caller) *PoolAggregator {
	tokens := token.NewResolver(caller, exchangeContract, nil, 4, nil)
	return NewPoolAggregator(Config{ExchangeContract: exchangeContract}, caller, tokens, nil)
}

func TestResolvePoolsPaginates(t *testing.T) {
	caller := neartest.NewCaller()
	servePools(t, caller, 450)

	pools, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, pools, 450)
	for i, pool := range pools {
		require.Equal(t, uint64(i), pool.ID)
		require.Equal(t, fmt.Sprint(i), pool.SharesTotalSupply, "ids follow listing order")
	}
	args := caller.Args(exchangeContract, "get_pools")
	require.Len(t, args, 3)
	assert.JSONEq(t, `{"from_index":0,"limit":200}`, string(args[0]))
	assert.JSONEq(t, `{"from_index":200,"limit":200}`, string(args[1]))
	assert.JSONEq(t, `{"from_index":400,"limit":200}`, string(args[2]))
}

func TestResolvePoolsAdvancesByBatchLength(t *testing.T) {
	caller := neartest.NewCaller()
	serveCappedPools(t, caller, 450, 150)

	pools, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, pools, 450)
	for i, pool := range pools {
		require.Equal(t, uint64(i), pool.ID)
		require.Equal(t, fmt.Sprint(i), pool.SharesTotalSupply, "no pool skipped or repeated")
	}
	args := caller.Args(exchangeContract, "get_pools")
	require.Len(t, args, 3)
	assert.JSONEq(t, `{"from_index":0,"limit":200}`, string(args[0]))
	assert.JSONEq(t, `{"from_index":150,"limit":200}`, string(args[1]))
	assert.JSONEq(t, `{"from_index":300,"limit":200}`, string(args[2]))
}

func TestResolvePoolsStopsOnEmptyBatch(t *testing.T) {
	caller := neartest.NewCaller()
	servePools(t, caller, 250)
	caller.Respond(exchangeContract, "get_number_of_pools", 900)

	pools, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, pools, 250)
	assert.Equal(t, 3, caller.Calls(exchangeContract, "get_pools"))
}

func TestResolvePoolsZeroPools(t *testing.T) {
	caller := neartest.NewCaller()
	servePools(t, caller, 0)

	pools, err := newAggregator(caller).ResolvePools(context.Background(), model.NewSeedSet())
	require.NoError(t, err)
	assert.Empty(t, pools)
	assert.Zero(t, caller.Calls(exchangeContract, "get_pools"))
}

func TestResolvePoolsFarmingFlag(t *testing.T) {
	tests := []struct {
		name    string
		seeds   model.SeedSet
		farming []uint64
	}{
		{name: "no seeds", seeds: model.NewSeedSet()},
		{name: "one seed", seeds: model.NewSeedSet(model.PoolSeedID(exchangeContract, 2)), farming: []uint64{2}},
		{
			name: "many seeds",
			seeds: model.NewSeedSet(
				model.PoolSeedID(exchangeContract, 0),
				model.PoolSeedID(exchangeContract, 3),
				model.PoolSeedID("other.testnet", 1),
				model.PoolSeedID(exchangeContract, 99),
			),
			farming: []uint64{0, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := neartest.NewCaller()
			servePools(t, caller, 5)

			pools, err := newAggregator(caller).ResolvePools(context.Background(), tt.seeds)
			require.NoError(t, err)

			var farming []uint64
			for _, pool := range pools {
				if pool.Farming {
					farming = append(farming, pool.ID)
				}
			}
			assert.Equal(t, tt.farming, farming)
		})
	}
}

func TestResolvePoolsSymbols(t *testing.T) {
	caller := neartest.NewCaller()
	servePools(t, caller, 2)
	caller.Respond("wrap.testnet", "ft_metadata", model.TokenMetadata{Symbol: "wNEAR", Decimals: 24})
	caller.Respond("tok0.testnet", "ft_metadata", model.TokenMetadata{Symbol: "TOK0", Decimals: 18})
	caller.Fail("tok1.testnet", "ft_metadata", &model.TransportError{Op: "query", Err: context.DeadlineExceeded})

	pools, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"TOK0", "wNEAR"}, pools[0].TokenSymbols)
	assert.Equal(t, []string{"wNEAR"}, pools[1].TokenSymbols, "unresolved symbol is skipped")
	assert.Equal(t, 1, caller.Calls("wrap.testnet", "ft_metadata"), "shared token fetched once")
}

func TestResolvePoolsCountFailureIsFatal(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Fail(exchangeContract, "get_number_of_pools", &model.TransportError{Op: "query", Err: errors.New("503")})

	pools, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, pools)
}

func TestResolvePoolsListingFailureIsFatal(t *testing.T) {
	caller := neartest.NewCaller()
	servePools(t, caller, 300)
	caller.Handle(exchangeContract, "get_pools", func(_ context.Context, args json.RawMessage) (interface{}, error) {
		return json.RawMessage(`{"unexpected":true}`), nil
	})

	_, err := newAggregator(caller).ResolvePools(context.Background(), nil)
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}
