package model

import (
	"fmt"
	"math/big"
)

// FarmStatusRunning is the only status under which a farm distributes rewards.
const FarmStatusRunning = "Running"

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Farm is a reward distribution schedule attached to a seed, as returned by
// list_farms_by_seed. Reward amounts are u128 decimal strings.
type Farm struct {
	FarmID            string `json:"farm_id" bson:"farm_id"`
	FarmKind          string `json:"farm_kind" bson:"farm_kind"`
	FarmStatus        string `json:"farm_status" bson:"farm_status"`
	SeedID            SeedID `json:"seed_id" bson:"seed_id"`
	RewardToken       string `json:"reward_token" bson:"reward_token"`
	StartAt           uint64 `json:"start_at" bson:"start_at"`
	RewardPerSession  string `json:"reward_per_session" bson:"reward_per_session"`
	SessionInterval   uint64 `json:"session_interval" bson:"session_interval"`
	TotalReward       string `json:"total_reward" bson:"total_reward"`
	CurRound          uint64 `json:"cur_round" bson:"cur_round"`
	LastRound         uint64 `json:"last_round" bson:"last_round"`
	ClaimedReward     string `json:"claimed_reward" bson:"claimed_reward"`
	UnclaimedReward   string `json:"unclaimed_reward" bson:"unclaimed_reward"`
	BeneficiaryReward string `json:"beneficiary_reward" bson:"beneficiary_reward"`
}

// IsActive reports whether the farm is running and still has undistributed
// reward: total_reward > claimed_reward + unclaimed_reward.
func (f Farm) IsActive() (bool, error) {
	if f.FarmStatus != FarmStatusRunning {
		return false, nil
	}

	total, err := ParseU128(f.TotalReward)
	if err != nil {
		return false, &DecodeError{What: "farm " + f.FarmID + " total_reward", Err: err}
	}
	claimed, err := ParseU128(f.ClaimedReward)
	if err != nil {
		return false, &DecodeError{What: "farm " + f.FarmID + " claimed_reward", Err: err}
	}
	unclaimed, err := ParseU128(f.UnclaimedReward)
	if err != nil {
		return false, &DecodeError{What: "farm " + f.FarmID + " unclaimed_reward", Err: err}
	}

	distributed := new(big.Int).Add(claimed, unclaimed)
	return total.Cmp(distributed) > 0, nil
}

// ParseU128 parses an unsigned 128-bit decimal string.
func ParseU128(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("empty u128")
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid u128: %q", value)
		}
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid u128: %q", value)
	}
	if parsed.Cmp(maxU128) > 0 {
		return nil, fmt.Errorf("u128 overflow: %s", value)
	}
	return parsed, nil
}
