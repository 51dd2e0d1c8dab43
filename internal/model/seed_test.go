package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolSeedID(t *testing.T) {
	id := PoolSeedID("v2.ref-finance.near", 79)
	assert.Equal(t, SeedID("v2.ref-finance.near@79"), id)
	assert.Equal(t, "v2.ref-finance.near", id.Contract())
}

func TestSeedSet(t *testing.T) {
	var empty SeedSet
	assert.False(t, empty.Has("a@0"))

	set := NewSeedSet("b@1", "a@0", "b@1")
	assert.Len(t, set, 2)
	assert.True(t, set.Has("a@0"))
	assert.False(t, set.Has("a@1"))
	assert.Equal(t, []SeedID{"a@0", "b@1"}, set.Sorted())
}

func TestRefreshReportStatus(t *testing.T) {
	report := &RefreshReport{Steps: []StepReport{
		{Name: StepTokens, Status: StepCommitted},
		{Name: StepFarms, Status: StepFailed},
		{Name: StepPools, Status: StepSkipped},
	}}

	assert.False(t, report.OK())
	assert.False(t, report.Failed(StepTokens))
	assert.True(t, report.Failed(StepFarms))
	assert.False(t, report.Failed(StepPools))

	_, ok := report.Step("missing")
	assert.False(t, ok)
}
