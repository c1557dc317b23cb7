package policy

import (
	"time"
)

// Role represents the baseline permission tier of a principal
type Role string

const (
	RoleAdmin   Role = "admin"   // Unrestricted access to every collection
	RoleManager Role = "manager" // Scoped to assigned sites
	RoleStaff   Role = "staff"   // Scoped to a single default site/stall
)

// Valid reports whether the role is one of the known tiers
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// Operation represents an operation against a collection
type Operation string

const (
	OperationRead   Operation = "read"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Collection identifies a document collection guarded by the engine
type Collection string

const (
	CollectionUsers             Collection = "users"
	CollectionSites             Collection = "sites"
	CollectionStalls            Collection = "stalls"
	CollectionStockItems        Collection = "stockItems"
	CollectionSalesTransactions Collection = "salesTransactions"
)

// Collections returns every collection the engine has rules for
func Collections() []Collection {
	return []Collection{
		CollectionUsers,
		CollectionSites,
		CollectionStalls,
		CollectionStockItems,
		CollectionSalesTransactions,
	}
}

// Document field names shared between the engine and its callers
const (
	FieldID                    = "id"
	FieldRole                  = "role"
	FieldManagedSiteIDs        = "managedSiteIds"
	FieldDefaultSiteID         = "defaultSiteId"
	FieldDefaultStallID        = "defaultStallId"
	FieldSiteID                = "siteId"
	FieldStallID               = "stallId"
	FieldStaffID               = "staffId"
	FieldQuantity              = "quantity"
	FieldLastUpdated           = "lastUpdated"
	FieldOriginalMasterItemID  = "originalMasterItemId"
	FieldIsDeleted             = "isDeleted"
	FieldDeletedAt             = "deletedAt"
	FieldDeletedBy             = "deletedBy"
	FieldDeletionJustification = "deletionJustification"
)

// Document is a schemaless record, keyed by field name. Values are the
// JSON-decoded representation of the stored document.
type Document map[string]interface{}

// GetString returns the string value of a field, or "" when the field is
// absent, null, or not a string.
func (d Document) GetString(field string) string {
	if d == nil {
		return ""
	}
	if v, ok := d[field].(string); ok {
		return v
	}
	return ""
}

// GetNumber returns the numeric value of a field. JSON decoding produces
// float64, but documents built in Go code may carry int or int64.
func (d Document) GetNumber(field string) float64 {
	if d == nil {
		return 0
	}
	switch v := d[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// IsNull reports whether a field is absent or explicitly null
func (d Document) IsNull(field string) bool {
	if d == nil {
		return true
	}
	v, ok := d[field]
	return !ok || v == nil
}

// Has reports whether the document carries the field at all, even when null
func (d Document) Has(field string) bool {
	if d == nil {
		return false
	}
	_, ok := d[field]
	return ok
}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Principal is the authenticated actor making a request. It is resolved once
// from the stored profile at sign-in and is immutable for the duration of a
// request; the engine never re-derives role from request data.
type Principal struct {
	UID            string   `json:"uid"`
	Role           Role     `json:"role"`
	ManagedSiteIDs []string `json:"managed_site_ids,omitempty"`
	DefaultSiteID  string   `json:"default_site_id,omitempty"`
	DefaultStallID string   `json:"default_stall_id,omitempty"`
}

// ManagesSite reports whether the principal's managed-site set contains siteID
func (p *Principal) ManagesSite(siteID string) bool {
	if p == nil || siteID == "" {
		return false
	}
	for _, id := range p.ManagedSiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}

// Reason classifies why a request was denied
type Reason string

const (
	ReasonUnauthenticated     Reason = "UNAUTHENTICATED"
	ReasonRoleInsufficient    Reason = "ROLE_INSUFFICIENT"
	ReasonSiteOutOfScope      Reason = "SITE_OUT_OF_SCOPE"
	ReasonFieldNotAllowed     Reason = "FIELD_NOT_ALLOWED"
	ReasonSelfOwnership       Reason = "SELF_OWNERSHIP_VIOLATION"
	ReasonRelationalIntegrity Reason = "RELATIONAL_INTEGRITY_VIOLATION"
)

// Request describes a single access decision to be made
type Request struct {
	Operation  Operation  `json:"operation"`
	Collection Collection `json:"collection"`

	// Principal is nil for unauthenticated callers.
	Principal *Principal `json:"principal,omitempty"`

	// Existing is the pre-image of the target document. It must be supplied
	// for update and delete; it is nil on create and on reads of missing
	// documents.
	Existing Document `json:"existing,omitempty"`

	// Proposed is the post-image of the write. It is nil on read and delete.
	Proposed Document `json:"proposed,omitempty"`
}

// Decision is the outcome of evaluating a Request
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Allow builds an allowing decision
func Allow() Decision {
	return Decision{Allowed: true, CheckedAt: time.Now()}
}

// Deny builds a denying decision with a coarse reason. The engine never
// reports which sub-check failed beyond this reason.
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason, CheckedAt: time.Now()}
}
