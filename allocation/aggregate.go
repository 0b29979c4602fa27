/*
aggregate.go - Usage aggregation: per-department proportions of an item

PURPOSE:
  Converts historical per-department usage for one item into percentage
  proportions, drops insignificant departments, and renormalizes so the
  surviving proportions still sum to exactly 100.

PIPELINE:
  filter rows -> group/sum by department -> proportions ->
  significance filter -> renormalize -> weights -> sort

SIGNIFICANCE FILTER:
  Departments below the minimum proportion threshold are dropped, UNLESS
  that would empty the result. In that degenerate case the single
  department with the maximum raw proportion is kept at 100%.

SIGN HANDLING:
  Quantities are summed signed (returns reduce a department's usage) but
  weighted by absolute value. A department whose net usage is negative
  ends up below any positive threshold and is filtered out.

SEE ALSO:
  - allocate.go: Consumes these shares to distribute whole units
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Aggregate computes each department's share of the historical usage of the
// item selected by id. department restricts the match set to one department;
// pass AllDepartments (or "") to keep all. minProportion is the significance
// threshold in percent.
//
// The result is sorted by proportion descending, department name ascending.
// Proportions sum to 100 and weights sum to 1 across the result.
func Aggregate(history History, id Identifier, department string, minProportion float64) ([]DepartmentShare, error) {
	if id.Value == "" {
		return nil, ErrInvalidIdentifier
	}

	// 1. Filter to rows for this item (and department, if restricted).
	restrict := department != "" && department != AllDepartments
	var matched []UsageRecord
	for _, r := range history {
		if !id.Matches(r) {
			continue
		}
		if restrict && r.Department != department {
			continue
		}
		matched = append(matched, r)
	}
	if len(matched) == 0 {
		return nil, &NoUsageError{Identifier: id, Department: department}
	}

	// 2. Group by department, summing signed quantities. Department names
	// are walked in sorted order so every later step is deterministic.
	sums := make(map[string]decimal.Decimal)
	for _, r := range matched {
		sums[r.Department] = sums[r.Department].Add(r.Quantity)
	}
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	// 3. Total usage. A zero total means proportions are undefined.
	total := decimal.Zero
	for _, name := range names {
		total = total.Add(sums[name])
	}
	if total.IsZero() {
		return nil, &NoUsageError{Identifier: id, Department: department, Total: total}
	}

	// 4. Raw proportions.
	shares := make([]DepartmentShare, 0, len(names))
	for _, name := range names {
		qty := sums[name]
		shares = append(shares, DepartmentShare{
			Department: name,
			Quantity:   qty,
			Proportion: qty.Div(total).Mul(oneHundred),
		})
	}

	// 5. Significance filter with single-survivor fallback.
	threshold := decimal.NewFromFloat(minProportion)
	survivors := shares[:0:0]
	for _, s := range shares {
		if s.Proportion.GreaterThanOrEqual(threshold) {
			survivors = append(survivors, s)
		}
	}
	if len(survivors) == 0 {
		best := shares[0]
		for _, s := range shares[1:] {
			if s.Proportion.GreaterThan(best.Proportion) {
				best = s
			}
		}
		survivors = []DepartmentShare{best}
	}

	// 6. Renormalize so surviving proportions sum to 100 again.
	propSum := decimal.Zero
	absSum := decimal.Zero
	for _, s := range survivors {
		propSum = propSum.Add(s.Proportion)
		absSum = absSum.Add(s.Quantity.Abs())
	}
	if propSum.IsZero() || absSum.IsZero() {
		// Only reachable with a non-positive threshold over all-zero rows.
		return nil, &NoUsageError{Identifier: id, Department: department, Total: total}
	}

	// 7. Weights from absolute quantities.
	for i := range survivors {
		survivors[i].Proportion = survivors[i].Proportion.Div(propSum).Mul(oneHundred)
		survivors[i].Weight = survivors[i].Quantity.Abs().Div(absSum)
	}

	// 8. Largest share first; name breaks ties deterministically.
	sort.SliceStable(survivors, func(i, j int) bool {
		if !survivors[i].Proportion.Equal(survivors[j].Proportion) {
			return survivors[i].Proportion.GreaterThan(survivors[j].Proportion)
		}
		return survivors[i].Department < survivors[j].Department
	})

	return survivors, nil
}
