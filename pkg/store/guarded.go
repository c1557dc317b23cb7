package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marketrow/stallgate/pkg/audit"
	"github.com/marketrow/stallgate/pkg/policy"
)

// ErrAlreadyExists is returned when creating a document whose id is taken
var ErrAlreadyExists = errors.New("document already exists")

// DeniedError is returned when a policy decision refuses an operation
type DeniedError struct {
	Reason policy.Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("operation denied: %s", e.Reason)
}

// DeniedReason extracts the denial reason from an error, if it carries one
func DeniedReason(err error) (policy.Reason, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}

// DecisionRecorder receives the outcome of every authorization decision,
// allowed or not. Implemented by the metrics collector.
type DecisionRecorder interface {
	RecordDecision(collection policy.Collection, operation policy.Operation, allowed bool, reason policy.Reason)
}

// ProfileInvalidator drops cached principal profiles after user writes
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, uid string)
}

// GuardedStore wraps a Store so that every operation passes through the
// policy engine first. Mutations run the decision inside the transaction
// that applies them, so the state the rules examined is the state the write
// lands on.
type GuardedStore struct {
	store    *Store
	audit    audit.Logger
	recorder DecisionRecorder
	profiles ProfileInvalidator
	now      func() time.Time
	newID    func() string
}

// GuardedOption configures a GuardedStore
type GuardedOption func(*GuardedStore)

// WithAuditLogger attaches an audit sink for decisions and mutations
func WithAuditLogger(logger audit.Logger) GuardedOption {
	return func(g *GuardedStore) { g.audit = logger }
}

// WithDecisionRecorder attaches a metrics recorder for decision outcomes
func WithDecisionRecorder(recorder DecisionRecorder) GuardedOption {
	return func(g *GuardedStore) { g.recorder = recorder }
}

// WithProfileInvalidator attaches a cache to invalidate on user writes
func WithProfileInvalidator(profiles ProfileInvalidator) GuardedOption {
	return func(g *GuardedStore) { g.profiles = profiles }
}

// NewGuarded creates a guarded store over the given store
func NewGuarded(store *Store, opts ...GuardedOption) *GuardedStore {
	g := &GuardedStore{
		store: store,
		audit: audit.NewNoopLogger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// txLoader binds the policy engine's reads to an open transaction
type txLoader struct {
	tx *sql.Tx
}

func (l txLoader) Load(ctx context.Context, collection policy.Collection, id string) (policy.Document, error) {
	return getDoc(ctx, l.tx, collection, id)
}

func (l txLoader) LoadRelated(ctx context.Context, collection policy.Collection, id string, relation policy.Relation) ([]policy.Document, error) {
	return loadRelated(ctx, l.tx, collection, id, relation)
}

// decide runs the engine and records the outcome. Denied decisions are
// audited here; allowed mutations are audited after they commit.
func (g *GuardedStore) decide(ctx context.Context, engine policy.Authorizer, req policy.Request) (policy.Decision, error) {
	decision, err := engine.Authorize(ctx, req)
	if err != nil {
		return decision, err
	}

	if g.recorder != nil {
		g.recorder.RecordDecision(req.Collection, req.Operation, decision.Allowed, decision.Reason)
	}

	if !decision.Allowed {
		docID := ""
		if req.Existing != nil {
			docID = req.Existing.GetString(policy.FieldID)
		} else if req.Proposed != nil {
			docID = req.Proposed.GetString(policy.FieldID)
		}
		actorUID, actorRole := "", ""
		if req.Principal != nil {
			actorUID = req.Principal.UID
			actorRole = string(req.Principal.Role)
		}
		_ = g.audit.LogDecision(ctx,
			actorUID, actorRole,
			string(req.Collection), docID, string(req.Operation),
			false, string(decision.Reason))
	}

	return decision, nil
}

// Get returns a single document after a read check. A missing document is
// policy.ErrNotFound, unless the read itself is denied first.
func (g *GuardedStore) Get(ctx context.Context, principal *policy.Principal, collection policy.Collection, id string) (policy.Document, error) {
	existing, err := g.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	engine := policy.NewEngine(g.store)
	decision, err := g.decide(ctx, engine, policy.Request{
		Operation:  policy.OperationRead,
		Collection: collection,
		Principal:  principal,
		Existing:   existing,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &DeniedError{Reason: decision.Reason}
	}
	if existing == nil {
		return nil, policy.ErrNotFound
	}
	return existing, nil
}

// List returns every document of a collection after a collection-level
// read check.
func (g *GuardedStore) List(ctx context.Context, principal *policy.Principal, collection policy.Collection) ([]policy.Document, error) {
	engine := policy.NewEngine(g.store)
	decision, err := g.decide(ctx, engine, policy.Request{
		Operation:  policy.OperationRead,
		Collection: collection,
		Principal:  principal,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &DeniedError{Reason: decision.Reason}
	}
	return g.store.List(ctx, collection)
}

// Create inserts a new document. A document without an id is assigned one
// before the decision runs, so rules see the final shape.
func (g *GuardedStore) Create(ctx context.Context, principal *policy.Principal, collection policy.Collection, doc policy.Document) (policy.Document, error) {
	doc = doc.Clone()
	if doc.GetString(policy.FieldID) == "" {
		doc[policy.FieldID] = g.newID()
	}
	id := doc.GetString(policy.FieldID)

	err := g.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyExists
		}

		engine := policy.NewEngine(txLoader{tx: tx})
		decision, err := g.decide(ctx, engine, policy.Request{
			Operation:  policy.OperationCreate,
			Collection: collection,
			Principal:  principal,
			Proposed:   doc,
		})
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &DeniedError{Reason: decision.Reason}
		}

		return insertDoc(ctx, tx, collection, doc, g.now())
	})
	if err != nil {
		return nil, err
	}

	g.afterMutation(ctx, audit.EventTypeDataCreate, principal, collection, id, nil)
	return doc, nil
}

// Update replaces a document. The pre-image is loaded inside the
// transaction, so the field diff the rules evaluate cannot race a
// concurrent writer.
func (g *GuardedStore) Update(ctx context.Context, principal *policy.Principal, collection policy.Collection, id string, proposed policy.Document) (policy.Document, error) {
	proposed = proposed.Clone()
	proposed[policy.FieldID] = id

	var changed []string
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc(ctx, tx, collection, id)
		if err != nil {
			return err
		}

		engine := policy.NewEngine(txLoader{tx: tx})
		decision, err := g.decide(ctx, engine, policy.Request{
			Operation:  policy.OperationUpdate,
			Collection: collection,
			Principal:  principal,
			Existing:   existing,
			Proposed:   proposed,
		})
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &DeniedError{Reason: decision.Reason}
		}

		// Self-updates omit the privileged profile fields; the replacement
		// write must not strip them from storage. Merged only after the
		// decision, so the rules still see the payload as submitted.
		if collection == policy.CollectionUsers {
			proposed = policy.CarryForwardPrivilegedUserFields(existing, proposed)
		}

		changed = policy.ChangedFields(existing, proposed).Sorted()
		return updateDoc(ctx, tx, collection, proposed, g.now())
	})
	if err != nil {
		return nil, err
	}

	g.afterMutation(ctx, audit.EventTypeDataUpdate, principal, collection, id,
		&audit.ChangeDetails{Fields: changed})
	return proposed, nil
}

// Delete removes a document after the delete check, which for master stock
// items inspects mirror quantities within the same transaction.
func (g *GuardedStore) Delete(ctx context.Context, principal *policy.Principal, collection policy.Collection, id string) error {
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc(ctx, tx, collection, id)
		if err != nil {
			return err
		}

		engine := policy.NewEngine(txLoader{tx: tx})
		decision, err := g.decide(ctx, engine, policy.Request{
			Operation:  policy.OperationDelete,
			Collection: collection,
			Principal:  principal,
			Existing:   existing,
		})
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &DeniedError{Reason: decision.Reason}
		}

		return deleteDoc(ctx, tx, collection, id)
	})
	if err != nil {
		return err
	}

	g.afterMutation(ctx, audit.EventTypeDataDelete, principal, collection, id, nil)
	return nil
}

func (g *GuardedStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (g *GuardedStore) afterMutation(ctx context.Context, eventType audit.EventType, principal *policy.Principal, collection policy.Collection, id string, changes *audit.ChangeDetails) {
	_ = g.audit.LogMutation(ctx, eventType, principal.UID, string(collection), id, changes)

	if g.profiles != nil && collection == policy.CollectionUsers {
		g.profiles.Invalidate(ctx, id)
	}
}
