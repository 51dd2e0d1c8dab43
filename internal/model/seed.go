package model

import (
	"fmt"
	"sort"
	"strings"
)

// SeedID identifies a stakeable pool-share position, "<poolContract>@<poolIndex>".
type SeedID string

// PoolSeedID builds the seed id of a pool listed by an exchange contract.
func PoolSeedID(exchangeContract string, poolID uint64) SeedID {
	return SeedID(fmt.Sprintf("%s@%d", exchangeContract, poolID))
}

// Contract returns the pool contract part of the seed id.
func (s SeedID) Contract() string {
	contract, _, _ := strings.Cut(string(s), "@")
	return contract
}

// SeedSet is a membership set of seed ids.
type SeedSet map[SeedID]struct{}

func NewSeedSet(ids ...SeedID) SeedSet {
	set := make(SeedSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func (s SeedSet) Add(id SeedID) {
	s[id] = struct{}{}
}

// Has is safe on a nil set.
func (s SeedSet) Has(id SeedID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s SeedSet) Sorted() []SeedID {
	out := make([]SeedID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
