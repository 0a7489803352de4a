package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemreport/apiserver/types"
)

func TestPlanningWritesRequireManagePlanningTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, actor := range []types.Principal{f.negeri, f.bahagian, f.ppd, f.user} {
		_, err := f.planning.CreatePolicy(ctx, actor, NodeInput{Name: "P"})
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.planning.UpdateInitiative(ctx, actor, f.initiative.ID, InitiativeInput{Name: "I", Target: 1})
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
}

func TestChildrenAreOrderedByInsertion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	policy, err := f.planning.CreatePolicy(ctx, f.admin, NodeInput{Name: "Second policy"})
	require.NoError(t, err)
	var ids []string
	for _, name := range []string{"C", "A", "B"} {
		teras, err := f.planning.CreateTeras(ctx, f.admin, policy.ID, NodeInput{Name: name})
		require.NoError(t, err)
		ids = append(ids, teras.ID)
	}

	children, err := f.planning.ListTeras(ctx, policy.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for i, teras := range children {
		assert.Equal(t, ids[i], teras.ID)
		assert.Equal(t, i, teras.Position)
	}

	stored, err := f.planning.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, stored.TerasIDs)
}

func TestCreateUnderMissingParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.planning.CreateTeras(ctx, f.admin, "missing", NodeInput{Name: "T"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.planning.CreateStrategy(ctx, f.admin, "missing", NodeInput{Name: "S"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.planning.CreateInitiative(ctx, f.admin, "missing", InitiativeInput{Name: "I"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.planning.ListStrategies(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitiativeTargetMustBeNonNegative(t *testing.T) {
	f := newFixture(t)

	_, err := f.planning.UpdateInitiative(context.Background(), f.admin, f.initiative.ID, InitiativeInput{Name: "I1", Target: -5})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateInitiativeKeepsCurrentValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.submit(t, f.ppd, ptr(20))
	_, err := f.reports.Review(ctx, f.admin, report.ID, ReviewInput{Decision: types.DecisionApprove})
	require.NoError(t, err)

	updated, err := f.planning.UpdateInitiative(ctx, f.admin, f.initiative.ID, InitiativeInput{Name: "Renamed", Target: 40, Unit: "labs"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 20.0, updated.KPI.CurrentValue)
	assert.InDelta(t, 50.0, updated.KPI.Progress(), 1e-9)
}

func TestResolveChain(t *testing.T) {
	f := newFixture(t)

	chain, err := f.planning.ResolveChain(context.Background(), f.initiative.ID)
	require.NoError(t, err)
	assert.Equal(t, "STEM Policy", chain.Policy.Name)
	assert.Equal(t, chain.Teras.ID, chain.Strategy.TerasID)

	_, err = f.planning.ResolveChain(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRegion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.planning.UpsertRegion(ctx, f.negeri, "Selangor", RegionInput{PPDs: []string{"Klang"}})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.planning.UpsertRegion(ctx, f.admin, "Selangor", RegionInput{PPDs: []string{"Klang", " "}})
	assert.ErrorIs(t, err, ErrValidation)

	region, err := f.planning.UpsertRegion(ctx, f.admin, "Selangor", RegionInput{PPDs: []string{"Klang", "Gombak", "Klang"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Klang", "Gombak"}, region.PPDs)

	regions, err := f.planning.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Region{region}, regions)
}
