// Package policy implements the authorization engine for the stallgate
// document store: the rules deciding, for every operation against every
// guarded collection, whether a principal may perform it and which fields an
// update may change.
//
// # Overview
//
// The domain is a sites -> stalls -> stock -> sales hierarchy operated by
// three role tiers:
//
//	RoleAdmin   - unrestricted access to every collection
//	RoleManager - full control inside an assigned set of sites
//	RoleStaff   - quantity updates on stock in a single default stall,
//	              plus recording sales on their own behalf
//
// Five collections are guarded:
//
//	CollectionUsers             - one profile per principal
//	CollectionSites             - global resources, admin-managed
//	CollectionStalls            - one site each, admin-managed
//	CollectionStockItems        - master records (stallId null) and
//	                              stall mirrors linked to a master
//	CollectionSalesTransactions - append-mostly; admin soft-delete only
//
// # Making decisions
//
// The storage/commit layer builds a Request carrying the operation, the
// collection, the resolved Principal, the pre-image (for update/delete) and
// the post-image (for create/update), and calls Authorize:
//
//	engine := policy.NewEngine(loader)
//	decision, err := engine.Authorize(ctx, policy.Request{
//		Operation:  policy.OperationUpdate,
//		Collection: policy.CollectionStockItems,
//		Principal:  principal,
//		Existing:   preImage,
//		Proposed:   postImage,
//	})
//
// The decision must be computed and enforced inside the same transaction as
// the write it guards; evaluating against a snapshot and committing separately
// admits a race on the master-delete guard. The engine itself performs no I/O
// beyond Loader calls, which are memoized per decision.
//
// # Updates and field diffing
//
// Update rules compare the changed-field set (ChangedFields) against a
// per-role allow-list. Unchanged-value fields present in the payload do not
// count as changes, with one deliberate exception: a principal's own profile
// update is rejected whenever the payload carries the role key at all, even
// with its current value.
//
// # Deletes and relational integrity
//
// Deleting a master stock item is denied while any linked stall mirror still
// holds a positive quantity. Admin bypasses the guard; mirrors delete freely.
// Users and sales transactions are never deleted by anyone.
//
// # Failure semantics
//
// All denials are terminal and carry one coarse Reason (role, scope, field,
// ownership, or integrity). A missing rule-table entry denies rather than
// allows. The only non-denial failures are loader I/O errors and ErrNotFound
// for an update or delete whose target does not exist.
package policy
