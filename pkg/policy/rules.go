package policy

import (
	"context"
)

// evaluation carries one request through its rule chain together with the
// per-decision loader cache.
type evaluation struct {
	req    Request
	loader Loader
}

func (ev *evaluation) principal() *Principal { return ev.req.Principal }

// ruleFunc is one cell of the rule table: the first matching terminal rule
// wins, expressed as ordered checks inside each function.
type ruleFunc func(ctx context.Context, ev *evaluation) (Decision, error)

// ruleTable maps every guarded collection and operation to its rule. A
// collection or operation absent from the table is denied by the engine
// before dispatch.
var ruleTable = map[Collection]map[Operation]ruleFunc{
	CollectionUsers: {
		OperationRead:   readUser,
		OperationCreate: adminOnly,
		OperationUpdate: updateUser,
		OperationDelete: neverAllowed,
	},
	CollectionSites: {
		OperationRead:   anyAuthenticated,
		OperationCreate: adminOnly,
		OperationUpdate: adminOnly,
		OperationDelete: adminOnly,
	},
	CollectionStalls: {
		OperationRead:   anyAuthenticated,
		OperationCreate: adminOnly,
		OperationUpdate: adminOnly,
		OperationDelete: adminOnly,
	},
	CollectionStockItems: {
		OperationRead:   anyAuthenticated,
		OperationCreate: createStockItem,
		OperationUpdate: updateStockItem,
		OperationDelete: deleteStockItem,
	},
	CollectionSalesTransactions: {
		OperationRead:   anyAuthenticated,
		OperationCreate: createSale,
		OperationUpdate: updateSale,
		OperationDelete: neverAllowed,
	},
}

// anyAuthenticated allows every principal that survived the engine's
// authentication gate. Site and stall reads are deliberately unscoped; stock
// and sales reads share the same weak policy (see DESIGN.md).
func anyAuthenticated(_ context.Context, _ *evaluation) (Decision, error) {
	return Allow(), nil
}

// adminOnly allows admins and denies everyone else
func adminOnly(_ context.Context, ev *evaluation) (Decision, error) {
	if ev.principal().Role == RoleAdmin {
		return Allow(), nil
	}
	return Deny(ReasonRoleInsufficient), nil
}

// neverAllowed denies all principals, admin included. User deletion and sales
// hard-deletion have no legal caller.
func neverAllowed(_ context.Context, _ *evaluation) (Decision, error) {
	return Deny(ReasonRoleInsufficient), nil
}

// readUser allows admins to read any profile and everyone else only their
// own. A read of a missing profile cannot establish self-ownership and is
// denied for non-admins.
func readUser(_ context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	if p.Role == RoleAdmin {
		return Allow(), nil
	}
	if ev.req.Existing != nil && ev.req.Existing.GetString(FieldID) == p.UID {
		return Allow(), nil
	}
	return Deny(ReasonRoleInsufficient), nil
}

// updateUser lets admins change any field and lets a principal update the
// non-privileged fields of their own profile. The privileged set (role and
// the scope fields) is admin-writable only; role may not even appear in a
// self-update payload with an unchanged value. The other privileged fields
// may be omitted (the commit path carries them forward from the stored
// document) but not rewritten.
func updateUser(_ context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	if p.Role == RoleAdmin {
		return Allow(), nil
	}
	if ev.req.Existing.GetString(FieldID) != p.UID {
		return Deny(ReasonRoleInsufficient), nil
	}
	if ev.req.Proposed.Has(FieldRole) {
		return Deny(ReasonSelfOwnership), nil
	}
	changed := ChangedFields(ev.req.Existing, ev.req.Proposed)
	for field := range privilegedUserFields {
		if changed.Contains(field) && ev.req.Proposed.Has(field) {
			return Deny(ReasonFieldNotAllowed), nil
		}
	}
	return Allow(), nil
}

// createStockItem allows admins anywhere and managers inside their assigned
// sites. Staff never create stock records.
func createStockItem(_ context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	switch p.Role {
	case RoleAdmin:
		return Allow(), nil
	case RoleManager:
		if p.ManagesSite(ev.req.Proposed.GetString(FieldSiteID)) {
			return Allow(), nil
		}
		return Deny(ReasonSiteOutOfScope), nil
	default:
		return Deny(ReasonRoleInsufficient), nil
	}
}

// updateStockItem dispatches on role: admin any field anywhere, manager any
// field inside managed sites, staff only the quantity fields on a mirror in
// their own stall. Masters (stallId null) are immutable to staff regardless
// of which fields changed.
func updateStockItem(_ context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	switch p.Role {
	case RoleAdmin:
		return Allow(), nil
	case RoleManager:
		if p.ManagesSite(ev.req.Existing.GetString(FieldSiteID)) {
			return Allow(), nil
		}
		return Deny(ReasonSiteOutOfScope), nil
	case RoleStaff:
		if ev.req.Existing.IsNull(FieldStallID) {
			return Deny(ReasonSiteOutOfScope), nil
		}
		if p.DefaultStallID == "" || ev.req.Existing.GetString(FieldStallID) != p.DefaultStallID {
			return Deny(ReasonSiteOutOfScope), nil
		}
		if !ChangedFields(ev.req.Existing, ev.req.Proposed).SubsetOf(staffStockFields) {
			return Deny(ReasonFieldNotAllowed), nil
		}
		return Allow(), nil
	default:
		return Deny(ReasonRoleInsufficient), nil
	}
}

// deleteStockItem allows admins unconditionally (integrity guard bypassed),
// and managers inside their sites subject to the master-delete guard. Staff
// never delete stock records.
func deleteStockItem(ctx context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	switch p.Role {
	case RoleAdmin:
		return Allow(), nil
	case RoleManager:
		if !p.ManagesSite(ev.req.Existing.GetString(FieldSiteID)) {
			return Deny(ReasonSiteOutOfScope), nil
		}
		// The guard applies only to masters; mirrors delete freely.
		if ev.req.Existing.IsNull(FieldStallID) {
			blocked, err := masterDeleteBlocked(ctx, ev.loader, ev.req.Existing.GetString(FieldID))
			if err != nil {
				return Decision{}, err
			}
			if blocked {
				return Deny(ReasonRelationalIntegrity), nil
			}
		}
		return Allow(), nil
	default:
		return Deny(ReasonRoleInsufficient), nil
	}
}

// createSale allows any role to record a sale, but manager and staff only on
// their own behalf: the transaction's staffId must equal their uid. Admin may
// record on behalf of anyone.
func createSale(_ context.Context, ev *evaluation) (Decision, error) {
	p := ev.principal()
	if p.Role == RoleAdmin {
		return Allow(), nil
	}
	if ev.req.Proposed.GetString(FieldStaffID) == p.UID {
		return Allow(), nil
	}
	return Deny(ReasonSelfOwnership), nil
}

// updateSale is the soft-delete path: admin only, and only the four
// soft-delete fields may change. Any other changed field denies the whole
// write.
func updateSale(_ context.Context, ev *evaluation) (Decision, error) {
	if ev.principal().Role != RoleAdmin {
		return Deny(ReasonRoleInsufficient), nil
	}
	if !ChangedFields(ev.req.Existing, ev.req.Proposed).SubsetOf(saleSoftDeleteFields) {
		return Deny(ReasonFieldNotAllowed), nil
	}
	return Allow(), nil
}
