// Package store persists collection documents and guards every operation
// with the policy engine.
//
// Documents are stored as JSON alongside a handful of extracted columns
// (site, stall, master item, quantity) so the integrity checks and mirror
// lookups stay indexable. Store is the raw persistence layer; GuardedStore
// is the only surface handlers should touch. Its mutations open a
// transaction, load the pre-image, run the authorization decision against
// transaction-bound reads and only then apply the write, so the state the
// rules examined is exactly the state the commit lands on.
//
// ProfileCache fronts principal profile lookups with a local LRU and an
// optional Redis level, and is invalidated on user writes.
package store
