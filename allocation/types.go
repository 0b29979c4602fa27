/*
Package allocation provides the core usage-aggregation and quantity
allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for turning
  historical ingredient-issuance records into per-department proportions,
  and for distributing an available quantity across those departments so
  that the parts always sum exactly to the whole.

KEY CONCEPTS IN THIS FILE (types.go):
  - UsageRecord: One row of historical issuance data
  - History: The immutable table of records plus lookup helpers
  - Identifier: A tagged item lookup key (serial code or item name)
  - DepartmentShare: Aggregator output (proportion + weight per department)
  - AllocationResult: Allocator output (whole units per department)

DESIGN PRINCIPLES:
  1. Purity: Aggregate/Allocate are pure functions of the history snapshot
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Exactness: Allocated units are reconciled to sum to the requested total
  4. Determinism: All orderings have an explicit tie-break

USAGE:
  id := allocation.ParseIdentifier("Sugar")
  shares, err := allocation.Aggregate(history, id, allocation.AllDepartments,
      allocation.DefaultMinProportion)

SEE ALSO:
  - aggregate.go: Proportion computation, significance filter
  - allocate.go: Whole-unit distribution and drift reconciliation
  - errors.go: Error taxonomy
*/
package allocation

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// USAGE RECORD - One row of historical issuance data
// =============================================================================

// UsageRecord is a single historical issuance of an item to a department.
// Quantity is signed: negative values are returns or corrections.
type UsageRecord struct {
	Date       time.Time
	Serial     string
	Item       string
	Department string
	IssuedTo   string
	Quantity   decimal.Decimal
	Unit       string
	Category   string

	// Provenance fields, carried through for reporting only.
	Reference          string
	DepartmentCategory string
	Batch              string
	Store              string
	ReceivedBy         string
}

// History is the full historical table. It is treated as read-only for the
// duration of any aggregation or allocation call.
type History []UsageRecord

// ItemNames returns the unique item names in the history, sorted.
func (h History) ItemNames() []string {
	return h.uniqueSorted(func(r UsageRecord) string { return r.Item })
}

// Departments returns the unique department names in the history, sorted.
func (h History) Departments() []string {
	return h.uniqueSorted(func(r UsageRecord) string { return r.Department })
}

// Categories returns the unique item categories in the history, sorted.
func (h History) Categories() []string {
	return h.uniqueSorted(func(r UsageRecord) string { return r.Category })
}

func (h History) uniqueSorted(field func(UsageRecord) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range h {
		v := field(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// IDENTIFIER - Tagged item lookup key
// =============================================================================

// IdentifierKind says which column an identifier matches against.
type IdentifierKind string

const (
	// KindSerial matches the item serial column.
	KindSerial IdentifierKind = "serial"
	// KindName matches the item name column.
	KindName IdentifierKind = "name"
)

// Identifier selects historical rows for one item, either by serial code or
// by item name. Matching is case-insensitive in both cases.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

func NewSerial(s string) Identifier { return Identifier{Kind: KindSerial, Value: s} }
func NewName(s string) Identifier   { return Identifier{Kind: KindName, Value: s} }

// ParseIdentifier resolves a raw user-supplied identifier into a tagged
// Identifier. An all-digit string is a serial code; anything else is an
// item name. This sniffing happens here, at the edge, so the engine's
// contract stays explicit.
func ParseIdentifier(raw string) Identifier {
	raw = strings.TrimSpace(raw)
	if raw != "" && isNumeric(raw) {
		return NewSerial(raw)
	}
	return NewName(raw)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Matches reports whether a record belongs to the identified item.
func (id Identifier) Matches(r UsageRecord) bool {
	switch id.Kind {
	case KindSerial:
		return strings.EqualFold(r.Serial, id.Value)
	default:
		return strings.EqualFold(r.Item, id.Value)
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// AllDepartments is the sentinel department filter meaning "no filter".
const AllDepartments = "All Departments"

// DefaultMinProportion is the significance threshold, in percent, below
// which a department is dropped from aggregation results.
const DefaultMinProportion = 1.0

// DepartmentShare is one department's slice of an item's historical usage.
// Across a result set, Proportion sums to 100 and Weight sums to 1.
type DepartmentShare struct {
	Department string
	// Quantity is the signed sum of issued quantities.
	Quantity decimal.Decimal
	// Proportion is the percentage share of total usage, post-filter.
	Proportion decimal.Decimal
	// Weight is the absolute-quantity share of surviving departments.
	Weight decimal.Decimal
}

// AllocationResult is one department's whole-unit share of an available
// quantity. Across a result set, Allocated sums exactly to the rounded
// requested quantity.
type AllocationResult struct {
	Department string
	Proportion decimal.Decimal
	Allocated  int64
}
