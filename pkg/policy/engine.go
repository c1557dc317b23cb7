package policy

import (
	"context"
)

// Authorizer is the single call the storage/commit layer consumes. The commit
// layer must invoke it before applying any write, inside the same transaction
// as the write itself, and abort on a denying decision.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// Engine evaluates access-control rules for the five guarded collections. It
// is a pure function of its inputs plus the documents its Loader resolves: it
// holds no mutable state across calls and is safe for concurrent use.
type Engine struct {
	loader Loader
}

// NewEngine creates an engine backed by the given resource loader. The loader
// is only consulted for cross-document predicates (the master-delete guard);
// pre- and post-images arrive on the request itself.
func NewEngine(loader Loader) *Engine {
	return &Engine{loader: loader}
}

// Authorize evaluates a single request against the rule tables and returns
// the decision. A non-nil error reports an evaluation failure (loader I/O, or
// ErrNotFound for an update/delete whose target does not exist) and is
// distinct from a denial.
//
// Denials carry a coarse reason only; the engine does not reveal which
// sub-check failed to avoid leaking resource state to unauthorized callers.
func (e *Engine) Authorize(ctx context.Context, req Request) (Decision, error) {
	if req.Principal == nil || req.Principal.UID == "" {
		return Deny(ReasonUnauthenticated), nil
	}
	if !req.Principal.Role.Valid() {
		// Unknown role tier: fail closed.
		return Deny(ReasonRoleInsufficient), nil
	}

	if req.Operation == OperationUpdate || req.Operation == OperationDelete {
		if req.Existing == nil {
			return Decision{}, ErrNotFound
		}
	}

	ops, ok := ruleTable[req.Collection]
	if !ok {
		return Deny(ReasonRoleInsufficient), nil
	}
	rule, ok := ops[req.Operation]
	if !ok {
		return Deny(ReasonRoleInsufficient), nil
	}

	ev := &evaluation{
		req: req,
		// Memoize loader calls for the lifetime of this decision.
		loader: newCachedLoader(e.loader),
	}
	return rule(ctx, ev)
}
