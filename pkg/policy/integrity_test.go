package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterDeleteGuard(t *testing.T) {
	engine, loader := newTestEngine()
	ctx := context.Background()

	master := masterItem("master-1", "site-a", 50)
	mirrorKey := "stockItems/master-1#mirrors"

	// One linked mirror still holding stock blocks the delete.
	loader.related[mirrorKey] = []Document{
		mirrorItem("mirror-1", "site-a", "stall-1", 10),
	}

	decision, err := engine.Authorize(ctx, Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  managerA,
		Existing:   master,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRelationalIntegrity, decision.Reason)

	// Once the mirror drains to zero the delete goes through.
	loader.related[mirrorKey] = []Document{
		mirrorItem("mirror-1", "site-a", "stall-1", 0),
	}
	decision, err = engine.Authorize(ctx, Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  managerA,
		Existing:   master,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMasterDeleteGuard_AdminBypass(t *testing.T) {
	engine, loader := newTestEngine()
	ctx := context.Background()

	master := masterItem("master-1", "site-a", 50)
	loader.related["stockItems/master-1#mirrors"] = []Document{
		mirrorItem("mirror-1", "site-a", "stall-1", 10),
	}

	decision, err := engine.Authorize(ctx, Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  admin,
		Existing:   master,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "admin bypasses the integrity guard")
	assert.Equal(t, 0, loader.relatedCalls, "bypass must not query dependents")
}

func TestMasterDeleteGuard_ZeroMirrors(t *testing.T) {
	engine, _ := newTestEngine()

	decision, err := engine.Authorize(context.Background(), Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  managerA,
		Existing:   masterItem("master-1", "site-a", 50),
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "a master with no mirrors deletes freely")
}

func TestMirrorDeleteHasNoGuard(t *testing.T) {
	engine, loader := newTestEngine()

	decision, err := engine.Authorize(context.Background(), Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  managerA,
		Existing:   mirrorItem("mirror-1", "site-a", "stall-1", 25),
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "mirror deletes carry no precondition")
	assert.Equal(t, 0, loader.relatedCalls)
}

func TestStaffNeverDeletesStock(t *testing.T) {
	engine, _ := newTestEngine()

	decision, err := engine.Authorize(context.Background(), Request{
		Operation:  OperationDelete,
		Collection: CollectionStockItems,
		Principal:  staff,
		Existing:   mirrorItem("mirror-1", "site-a", "stall-1", 0),
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRoleInsufficient, decision.Reason)
}

func TestCachedLoader_MemoizesWithinDecision(t *testing.T) {
	inner := &fakeLoader{
		docs:    map[string]Document{"stockItems/m1": masterItem("m1", "site-a", 1)},
		related: map[string][]Document{"stockItems/m1#mirrors": nil},
	}
	cached := newCachedLoader(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.Load(ctx, CollectionStockItems, "m1")
		require.NoError(t, err)
		_, err = cached.LoadRelated(ctx, CollectionStockItems, "m1", RelationMirrors)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, inner.loadCalls)
	assert.Equal(t, 1, inner.relatedCalls)
}
