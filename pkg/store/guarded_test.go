package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketrow/stallgate/pkg/audit"
	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/policy"
)

// decisionLog counts decision outcomes for assertions
type decisionLog struct {
	mu      sync.Mutex
	allowed int
	denied  []policy.Reason
}

func (d *decisionLog) RecordDecision(_ policy.Collection, _ policy.Operation, allowed bool, reason policy.Reason) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if allowed {
		d.allowed++
	} else {
		d.denied = append(d.denied, reason)
	}
}

// auditSpy records mutation audit calls
type auditSpy struct {
	audit.Logger
	mu        sync.Mutex
	mutations []string
	denials   []string
}

func newAuditSpy() *auditSpy {
	return &auditSpy{Logger: audit.NewNoopLogger()}
}

func (a *auditSpy) LogMutation(_ context.Context, eventType audit.EventType, _ string, collection, documentID string, _ *audit.ChangeDetails) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutations = append(a.mutations, string(eventType)+":"+collection+"/"+documentID)
	return nil
}

func (a *auditSpy) LogDecision(_ context.Context, _ string, _ string, collection, documentID, _ string, allowed bool, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !allowed {
		a.denials = append(a.denials, collection+"/"+documentID+":"+reason)
	}
	return nil
}

// invalidationSpy records profile invalidations
type invalidationSpy struct {
	uids []string
}

func (i *invalidationSpy) Invalidate(_ context.Context, uid string) {
	i.uids = append(i.uids, uid)
}

func adminPrincipal() *policy.Principal {
	return &policy.Principal{UID: "admin-1", Role: policy.RoleAdmin}
}

func managerPrincipal() *policy.Principal {
	return &policy.Principal{UID: "manager-1", Role: policy.RoleManager, ManagedSiteIDs: []string{"site-a"}}
}

func staffPrincipal() *policy.Principal {
	return &policy.Principal{UID: "staff-1", Role: policy.RoleStaff, DefaultSiteID: "site-a", DefaultStallID: "stall-1"}
}

func seedWorld(t *testing.T, s *Store) {
	t.Helper()

	seed(t, s, policy.CollectionUsers, policy.Document{"id": "admin-1", "role": "admin"})
	seed(t, s, policy.CollectionUsers, policy.Document{
		"id": "manager-1", "role": "manager", "managedSiteIds": []interface{}{"site-a"},
	})
	seed(t, s, policy.CollectionUsers, policy.Document{
		"id": "staff-1", "role": "staff", "defaultSiteId": "site-a", "defaultStallId": "stall-1",
	})
	seed(t, s, policy.CollectionSites, policy.Document{"id": "site-a", "name": "North Market"})
	seed(t, s, policy.CollectionStalls, policy.Document{"id": "stall-1", "siteId": "site-a"})
	seed(t, s, policy.CollectionStockItems, policy.Document{
		"id": "master-1", "siteId": "site-a", "stallId": nil,
		"originalMasterItemId": nil, "quantity": float64(0), "name": "flour",
	})
	seed(t, s, policy.CollectionStockItems, policy.Document{
		"id": "mirror-1", "siteId": "site-a", "stallId": "stall-1",
		"originalMasterItemId": "master-1", "quantity": float64(4), "name": "flour",
	})
}

func TestGuarded_GetScoping(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	// Staff read their own profile but nobody else's
	doc, err := g.Get(ctx, staffPrincipal(), policy.CollectionUsers, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "staff-1", doc.GetString(policy.FieldID))

	_, err = g.Get(ctx, staffPrincipal(), policy.CollectionUsers, "manager-1")
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonRoleInsufficient, reason)

	// A missing user denies rather than leaking existence
	_, err = g.Get(ctx, staffPrincipal(), policy.CollectionUsers, "ghost")
	_, ok = DeniedReason(err)
	assert.True(t, ok)

	// Admin reading a missing user gets not found
	_, err = g.Get(ctx, adminPrincipal(), policy.CollectionUsers, "ghost")
	assert.ErrorIs(t, err, policy.ErrNotFound)

	// Stock reads are open to any authenticated principal
	doc, err = g.Get(ctx, staffPrincipal(), policy.CollectionStockItems, "master-1")
	require.NoError(t, err)
	assert.Equal(t, "flour", doc.GetString("name"))
}

func TestGuarded_GetUnauthenticated(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)

	_, err := g.Get(context.Background(), nil, policy.CollectionSites, "site-a")
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonUnauthenticated, reason)
}

func TestGuarded_ListDeniedForStaffOnUsers(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	docs, err := g.List(ctx, adminPrincipal(), policy.CollectionUsers)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	_, err = g.List(ctx, staffPrincipal(), policy.CollectionUsers)
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonRoleInsufficient, reason)

	docs, err = g.List(ctx, staffPrincipal(), policy.CollectionStockItems)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestGuarded_CreateAssignsID(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	g.newID = func() string { return "generated-1" }
	ctx := context.Background()

	doc, err := g.Create(ctx, adminPrincipal(), policy.CollectionSites, policy.Document{"name": "South Market"})
	require.NoError(t, err)
	assert.Equal(t, "generated-1", doc.GetString(policy.FieldID))

	stored, err := s.Get(ctx, policy.CollectionSites, "generated-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestGuarded_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)

	_, err := g.Create(context.Background(), adminPrincipal(), policy.CollectionSites,
		policy.Document{"id": "site-a", "name": "dup"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGuarded_CreateDeniedLeavesNoRow(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	_, err := g.Create(ctx, managerPrincipal(), policy.CollectionStockItems, policy.Document{
		"id": "item-x", "siteId": "site-b", "stallId": nil,
		"originalMasterItemId": nil, "quantity": float64(0),
	})
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonSiteOutOfScope, reason)

	stored, err := s.Get(ctx, policy.CollectionStockItems, "item-x")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGuarded_UpdateStaffQuantity(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	doc, err := g.Update(ctx, staffPrincipal(), policy.CollectionStockItems, "mirror-1", policy.Document{
		"siteId": "site-a", "stallId": "stall-1",
		"originalMasterItemId": "master-1", "quantity": float64(2),
		"name": "flour", "lastUpdated": "2025-06-01T12:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), doc.GetNumber(policy.FieldQuantity))

	// Renaming is outside the staff allow-list
	_, err = g.Update(ctx, staffPrincipal(), policy.CollectionStockItems, "mirror-1", policy.Document{
		"siteId": "site-a", "stallId": "stall-1",
		"originalMasterItemId": "master-1", "quantity": float64(2),
		"name": "rye flour",
	})
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonFieldNotAllowed, reason)
}

func TestGuarded_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)

	_, err := g.Update(context.Background(), adminPrincipal(), policy.CollectionSites, "ghost",
		policy.Document{"name": "x"})
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

func TestGuarded_MasterDeleteGuardInTransaction(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	// Mirror still holds quantity, so the master cannot go
	err := g.Delete(ctx, managerPrincipal(), policy.CollectionStockItems, "master-1")
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonRelationalIntegrity, reason)

	// Drain the mirror, then the delete goes through
	_, err = g.Update(ctx, staffPrincipal(), policy.CollectionStockItems, "mirror-1", policy.Document{
		"siteId": "site-a", "stallId": "stall-1",
		"originalMasterItemId": "master-1", "quantity": float64(0), "name": "flour",
	})
	require.NoError(t, err)

	require.NoError(t, g.Delete(ctx, managerPrincipal(), policy.CollectionStockItems, "master-1"))

	stored, err := s.Get(ctx, policy.CollectionStockItems, "master-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGuarded_AdminBypassesMirrorGuard(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)

	require.NoError(t, g.Delete(context.Background(), adminPrincipal(), policy.CollectionStockItems, "master-1"))
}

func TestGuarded_SaleOwnershipAndSoftDelete(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	sale := policy.Document{
		"id": "sale-1", "staffId": "staff-1", "siteId": "site-a",
		"total": float64(12.50), "isDeleted": false,
	}
	_, err := g.Create(ctx, staffPrincipal(), policy.CollectionSalesTransactions, sale)
	require.NoError(t, err)

	// Recording a sale for someone else is an ownership violation
	_, err = g.Create(ctx, staffPrincipal(), policy.CollectionSalesTransactions, policy.Document{
		"id": "sale-2", "staffId": "manager-1", "siteId": "site-a", "total": float64(3),
	})
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonSelfOwnership, reason)

	// Hard deletes are never allowed, even for admins
	err = g.Delete(ctx, adminPrincipal(), policy.CollectionSalesTransactions, "sale-1")
	reason, ok = DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonRoleInsufficient, reason)

	// Admin soft-deletes instead
	_, err = g.Update(ctx, adminPrincipal(), policy.CollectionSalesTransactions, "sale-1", policy.Document{
		"staffId": "staff-1", "siteId": "site-a", "total": float64(12.50),
		"isDeleted": true, "deletedAt": "2025-06-01T12:00:00Z",
		"deletedBy": "admin-1", "deletionJustification": "voided by customer",
	})
	require.NoError(t, err)

	stored, err := s.Get(ctx, policy.CollectionSalesTransactions, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, true, stored["isDeleted"])
}

func TestGuarded_DecisionRecorderAndAudit(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)

	recorder := &decisionLog{}
	spy := newAuditSpy()
	g := NewGuarded(s, WithDecisionRecorder(recorder), WithAuditLogger(spy))
	ctx := context.Background()

	_, err := g.Create(ctx, adminPrincipal(), policy.CollectionSites, policy.Document{"id": "site-b", "name": "East"})
	require.NoError(t, err)

	err = g.Delete(ctx, staffPrincipal(), policy.CollectionStockItems, "mirror-1")
	_, ok := DeniedReason(err)
	require.True(t, ok)

	assert.Equal(t, 1, recorder.allowed)
	require.Len(t, recorder.denied, 1)
	assert.Equal(t, policy.ReasonRoleInsufficient, recorder.denied[0])

	assert.Equal(t, []string{"data.create:sites/site-b"}, spy.mutations)
	assert.Equal(t, []string{"stockItems/mirror-1:ROLE_INSUFFICIENT"}, spy.denials)
}

func TestGuarded_UserWriteInvalidatesProfile(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)

	inv := &invalidationSpy{}
	g := NewGuarded(s, WithProfileInvalidator(inv))
	ctx := context.Background()

	_, err := g.Update(ctx, adminPrincipal(), policy.CollectionUsers, "staff-1", policy.Document{
		"role": "staff", "defaultSiteId": "site-a", "defaultStallId": "stall-1", "displayName": "Sam",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-1"}, inv.uids)
}

func TestGuarded_SelfUpdateKeepsPrivilegedFields(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)
	ctx := context.Background()

	// The accepted self-update shape omits role and the scope fields
	updated, err := g.Update(ctx, staffPrincipal(), policy.CollectionUsers, "staff-1", policy.Document{
		"displayName": "Sam",
	})
	require.NoError(t, err)
	assert.Equal(t, "staff", updated.GetString(policy.FieldRole))

	// The stored document keeps the privileged fields, so the profile still
	// resolves to a principal afterwards
	profile, err := s.LoadProfile(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", profile.GetString("displayName"))
	assert.Equal(t, "staff", profile.GetString(policy.FieldRole))
	assert.Equal(t, "site-a", profile.GetString(policy.FieldDefaultSiteID))
	assert.Equal(t, "stall-1", profile.GetString(policy.FieldDefaultStallID))

	principal, err := auth.PrincipalFromProfile("staff-1", profile)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleStaff, principal.Role)
}

func TestGuarded_SelfRoleWriteDenied(t *testing.T) {
	s := newTestStore(t)
	seedWorld(t, s)
	g := NewGuarded(s)

	// Even writing back the same role value is rejected for self updates
	_, err := g.Update(context.Background(), staffPrincipal(), policy.CollectionUsers, "staff-1", policy.Document{
		"role": "staff", "defaultSiteId": "site-a", "defaultStallId": "stall-1",
	})
	reason, ok := DeniedReason(err)
	require.True(t, ok)
	assert.Equal(t, policy.ReasonSelfOwnership, reason)
}
