package model

import "strconv"

// Pool is a liquidity pool of the exchange contract enriched during a refresh.
// ID is the pool's rank in the paginated listing of one snapshot and is not
// stable across refreshes.
type Pool struct {
	ID                uint64   `json:"id" bson:"id"`
	PoolKind          string   `json:"pool_kind" bson:"pool_kind"`
	TokenAccountIDs   []string `json:"token_account_ids" bson:"token_account_ids"`
	Amounts           []string `json:"amounts" bson:"amounts"`
	TotalFee          uint32   `json:"total_fee" bson:"total_fee"`
	SharesTotalSupply string   `json:"shares_total_supply" bson:"shares_total_supply"`
	Amp               uint64   `json:"amp" bson:"amp"`
	Farming           bool     `json:"farming" bson:"farming"`
	// TokenSymbols lines up with TokenAccountIDs only when every symbol resolved.
	TokenSymbols []string `json:"token_symbols" bson:"token_symbols"`
}

// Key is the pool's key in the pools collection.
func (p Pool) Key() string {
	return strconv.FormatUint(p.ID, 10)
}
