package farming

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmScope/internal/model"
	"farmScope/internal/near/neartest"
)

const farmContract = "v2.ref-farming.testnet"

func farm(id string, seed model.SeedID, status, total, claimed, unclaimed string) model.Farm {
	return model.Farm{
		FarmID:          id,
		FarmKind:        "SIMPLE_FARM",
		FarmStatus:      status,
		SeedID:          seed,
		RewardToken:     "rft.testnet",
		TotalReward:     total,
		ClaimedReward:   claimed,
		UnclaimedReward: unclaimed,
	}
}

func farmsBySeed(t *testing.T, caller *neartest.Caller, farms map[model.SeedID][]model.Farm) {
	t.Helper()
	caller.Handle(farmContract, "list_farms_by_seed", func(_ context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			SeedID model.SeedID `json:"seed_id"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		list, ok := farms[req.SeedID]
		if !ok {
			return []model.Farm{}, nil
		}
		return list, nil
	})
}

func TestResolveSeeds(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{
		"ref.testnet@1": "100",
		"ref.testnet@7": "0",
	})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	seeds, err := r.ResolveSeeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewSeedSet("ref.testnet@1", "ref.testnet@7"), seeds)

	args := caller.Args(farmContract, "list_seeds")
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"from_index":0,"limit":100}`, string(args[0]))
}

func TestResolveSeedsEmpty(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	seeds, err := r.ResolveSeeds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestResolveSeedsDecodeError(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", []string{"not", "a", "map"})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	_, err := r.ResolveSeeds(context.Background())
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestResolve(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{
		"ref.testnet@1": "1",
		"ref.testnet@2": "1",
		"ref.testnet@3": "1",
	})
	farmsBySeed(t, caller, map[model.SeedID][]model.Farm{
		"ref.testnet@1": {
			farm("ref.testnet@1#0", "ref.testnet@1", "Ended", "100", "0", "0"),
			farm("ref.testnet@1#1", "ref.testnet@1", "Running", "100", "40", "30"),
		},
		"ref.testnet@2": {
			farm("ref.testnet@2#0", "ref.testnet@2", "Running", "100", "60", "40"),
		},
	})

	r := NewResolver(Config{FarmContract: farmContract, Concurrency: 2}, caller, nil)
	snap, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.NewSeedSet("ref.testnet@1"), snap.ActiveSeeds)
	require.Len(t, snap.Farms, 3)
	assert.Equal(t, "ref.testnet@1#0", snap.Farms[0].FarmID)
	assert.Equal(t, "ref.testnet@2#0", snap.Farms[2].FarmID)
	assert.Equal(t, 3, caller.Calls(farmContract, "list_farms_by_seed"), "one call per seed")
}

func TestResolveActiveFarmSeedsEmptyInput(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	active, err := r.ResolveActiveFarmSeeds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Zero(t, caller.Calls(farmContract, "list_farms_by_seed"))
}

func TestResolveFailsFast(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{
		"ref.testnet@1": "1",
		"ref.testnet@2": "1",
	})
	caller.Handle(farmContract, "list_farms_by_seed", func(_ context.Context, args json.RawMessage) (interface{}, error) {
		if string(args) == `{"seed_id":"ref.testnet@2"}` {
			return nil, &model.TransportError{Op: "query", Err: context.DeadlineExceeded}
		}
		return []model.Farm{farm("ref.testnet@1#0", "ref.testnet@1", "Running", "10", "0", "0")}, nil
	})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	active, err := r.ResolveActiveFarmSeeds(context.Background())
	require.Error(t, err)
	assert.Nil(t, active, "no partial active set")
	var transportErr *model.TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestResolveRejectsMalformedAmounts(t *testing.T) {
	caller := neartest.NewCaller()
	caller.Respond(farmContract, "list_seeds", map[string]string{"ref.testnet@1": "1"})
	farmsBySeed(t, caller, map[model.SeedID][]model.Farm{
		"ref.testnet@1": {farm("ref.testnet@1#0", "ref.testnet@1", "Running", "1e9", "0", "0")},
	})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	_, err := r.Resolve(context.Background())
	var decodeErr *model.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestListFarms(t *testing.T) {
	caller := neartest.NewCaller()
	farmsBySeed(t, caller, map[model.SeedID][]model.Farm{
		"ref.testnet@4": {farm("ref.testnet@4#0", "ref.testnet@4", "Running", "9", "0", "0")},
		"ref.testnet@5": {farm("ref.testnet@5#0", "ref.testnet@5", "Running", "9", "80", "0")},
	})

	r := NewResolver(Config{FarmContract: farmContract}, caller, nil)
	seeds := model.NewSeedSet("ref.testnet@4", "ref.testnet@5")

	farms, err := r.ListFarms(context.Background(), seeds)
	require.NoError(t, err)
	require.Len(t, farms, 2)
	assert.Equal(t, "ref.testnet@4#0", farms[0].FarmID)
	assert.Equal(t, "ref.testnet@5#0", farms[1].FarmID)
}
