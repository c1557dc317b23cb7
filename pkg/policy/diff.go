package policy

import (
	"reflect"
	"sort"
)

// FieldSet is a set of document field names
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from a list of field names
func NewFieldSet(fields ...string) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Contains reports whether the set contains the field
func (s FieldSet) Contains(field string) bool {
	_, ok := s[field]
	return ok
}

// SubsetOf reports whether every field in s is also in allowed
func (s FieldSet) SubsetOf(allowed FieldSet) bool {
	for f := range s {
		if !allowed.Contains(f) {
			return false
		}
	}
	return true
}

// Intersects reports whether s shares any field with other
func (s FieldSet) Intersects(other FieldSet) bool {
	for f := range s {
		if other.Contains(f) {
			return true
		}
	}
	return false
}

// Sorted returns the field names in lexical order, for stable logging
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// CarryForwardPrivilegedUserFields copies any privileged user field absent
// from the proposed write forward from the existing document. Allowed
// self-updates omit those fields, and a stored profile must never lose its
// role or scope assignments on replacement.
func CarryForwardPrivilegedUserFields(existing, proposed Document) Document {
	merged := proposed.Clone()
	for field := range privilegedUserFields {
		if merged.Has(field) {
			continue
		}
		if value, ok := existing[field]; ok {
			merged[field] = value
		}
	}
	return merged
}

// ChangedFields computes the set of field names whose values differ between
// the existing document and the proposed write. A field present in proposed
// with a value equal to the existing one is not a change; a field removed by
// the proposed write is.
func ChangedFields(existing, proposed Document) FieldSet {
	changed := make(FieldSet)
	for field, after := range proposed {
		before, ok := existing[field]
		if !ok || !valueEqual(before, after) {
			changed[field] = struct{}{}
		}
	}
	for field := range existing {
		if _, ok := proposed[field]; !ok {
			changed[field] = struct{}{}
		}
	}
	return changed
}

// valueEqual compares two document values. Numbers are normalized first: a
// document decoded from JSON carries float64 where one built in Go code may
// carry int, and the two must compare equal.
func valueEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case Document:
		return normalize(map[string]interface{}(t))
	default:
		return v
	}
}

// Per-role field allow-lists. An update is permitted only when its changed
// field set is a subset of the allow-list that applies to the matched rule.
var (
	// staffStockFields is what a staff member may touch on a stock item in
	// their own stall.
	staffStockFields = NewFieldSet(FieldQuantity, FieldLastUpdated)

	// privilegedUserFields are admin-writable only. A self-update omits them
	// rather than echo them; role in particular may not even appear in a
	// self-update payload with an unchanged value (see updateUser).
	privilegedUserFields = NewFieldSet(
		FieldRole,
		FieldManagedSiteIDs,
		FieldDefaultSiteID,
		FieldDefaultStallID,
	)

	// saleSoftDeleteFields is the only field group mutable on a sales
	// transaction after creation, and only by admin.
	saleSoftDeleteFields = NewFieldSet(
		FieldIsDeleted,
		FieldDeletedAt,
		FieldDeletedBy,
		FieldDeletionJustification,
	)
)

