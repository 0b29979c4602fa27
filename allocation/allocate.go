/*
allocate.go - Whole-unit distribution of an available quantity

PURPOSE:
  Turns an item's per-department proportions into integer allocations of an
  available quantity, then reconciles rounding drift so the allocations sum
  exactly to the requested total.

ROUNDING RULE:
  Per department, proportion/100 * available is rounded half AWAY from
  zero (decimal.Round semantics). Independent per-row rounding can leave
  the total off by a few units; that drift is assigned wholly to the
  department with the largest allocation. Simple and deterministic beats
  spreading the error: drift is bounded by the department count and is
  small next to typical quantities.

INVARIANT:
  sum(Allocated) == round(available), always, by construction.

SEE ALSO:
  - aggregate.go: Produces the proportions consumed here
*/
package allocation

import "github.com/shopspring/decimal"

// Allocate distributes available across the departments that historically
// consumed the identified item, proportionally to their usage. available
// must be positive. The significance threshold is fixed at
// DefaultMinProportion for allocation.
//
// The result preserves the aggregator's ordering (largest proportion first).
func Allocate(history History, id Identifier, available decimal.Decimal, department string) ([]AllocationResult, error) {
	if !available.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	shares, err := Aggregate(history, id, department, DefaultMinProportion)
	if err != nil {
		return nil, err
	}

	// Per-row share, rounded half away from zero to whole units.
	results := make([]AllocationResult, len(shares))
	allocated := decimal.Zero
	for i, s := range shares {
		units := s.Proportion.Div(oneHundred).Mul(available).Round(0)
		results[i] = AllocationResult{
			Department: s.Department,
			Proportion: s.Proportion,
			Allocated:  units.IntPart(),
		}
		allocated = allocated.Add(units)
	}

	// Reconcile drift onto the largest allocation. Ties go to the first
	// result in sorted order.
	drift := available.Round(0).Sub(allocated).IntPart()
	if drift != 0 {
		largest := 0
		for i, r := range results {
			if r.Allocated > results[largest].Allocated {
				largest = i
			}
		}
		results[largest].Allocated += drift
	}

	return results, nil
}
