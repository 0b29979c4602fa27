/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All engine errors in one place. Callers classify with errors.Is and the
  helpers below; no error here is ever fatal to the process.

ERROR CATEGORIES:
  1. Not found  - identifier matches nothing, or matched usage totals zero
  2. Bad input  - non-positive requested quantity, empty identifier
  3. Data error - malformed source rows that survived ingestion

PROPAGATION POLICY:
  Everything is value-returned. The engine never panics on bad data and
  never retries; retrying a source fetch belongs to the ingestion layer.

SEE ALSO:
  - aggregate.go, allocate.go: Producers of these errors
*/
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoUsage is returned when an identifier matches no historical rows
	// (optionally after department filtering), or when the matched rows sum
	// to exactly zero usage so no proportions can be formed.
	ErrNoUsage = errors.New("no usage data for item")

	// ErrInvalidQuantity is returned when the requested available quantity
	// is not positive. Callers should reject this before invoking the
	// engine; the engine re-checks defensively.
	ErrInvalidQuantity = errors.New("available quantity must be positive")

	// ErrInvalidIdentifier is returned for an empty identifier value.
	ErrInvalidIdentifier = errors.New("identifier must not be empty")

	// ErrBadRecord is returned when the historical table contains a row the
	// engine cannot use. Aggregation aborts for that request only.
	ErrBadRecord = errors.New("malformed usage record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoUsageError reports which lookup produced no usable data.
type NoUsageError struct {
	Identifier Identifier
	Department string
	Total      decimal.Decimal
}

func (e *NoUsageError) Error() string {
	if e.Department != "" && e.Department != AllDepartments {
		return fmt.Sprintf("no usage data for %s %q in department %q",
			e.Identifier.Kind, e.Identifier.Value, e.Department)
	}
	return fmt.Sprintf("no usage data for %s %q", e.Identifier.Kind, e.Identifier.Value)
}

func (e *NoUsageError) Unwrap() error { return ErrNoUsage }

// BadRecordError reports the first malformed row encountered.
type BadRecordError struct {
	Row    int
	Reason string
}

func (e *BadRecordError) Error() string {
	return fmt.Sprintf("malformed usage record at row %d: %s", e.Row, e.Reason)
}

func (e *BadRecordError) Unwrap() error { return ErrBadRecord }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error means "item not found / no usage".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoUsage)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidIdentifier)
}
