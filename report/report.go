// Package report computes the tabular views served alongside allocation:
// filtered overview statistics, per-department usage distribution, and
// per-item historical usage trends. Everything here is a pure function of
// the history snapshot; presentation (tables, charts) is the caller's job.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spp/stock-engine/allocation"
)

// Filter narrows the history before computing overview statistics.
// Zero-value fields mean "no restriction".
type Filter struct {
	From        time.Time
	To          time.Time
	Categories  []string
	Items       []string
	Departments []string
}

// DepartmentUsage is one department's total usage within a filtered view.
type DepartmentUsage struct {
	Department string
	Quantity   decimal.Decimal
}

// Stats is the overview of a filtered slice of history.
type Stats struct {
	TotalQuantity decimal.Decimal
	UniqueItems   int
	Transactions  int
	// DepartmentUsage is sorted by quantity descending (pie-chart order).
	DepartmentUsage []DepartmentUsage
}

// TrendPoint is one issuance on an item's usage timeline.
type TrendPoint struct {
	Date     time.Time
	Quantity decimal.Decimal
}

func (f Filter) matches(r allocation.UsageRecord) bool {
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	if !contains(f.Categories, r.Category) {
		return false
	}
	if !contains(f.Items, r.Item) {
		return false
	}
	return contains(f.Departments, r.Department)
}

// contains treats an empty list as "accept everything".
func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Overview computes usage statistics over the filtered history.
func Overview(history allocation.History, f Filter) Stats {
	total := decimal.Zero
	items := make(map[string]bool)
	deptTotals := make(map[string]decimal.Decimal)
	transactions := 0

	for _, r := range history {
		if !f.matches(r) {
			continue
		}
		transactions++
		total = total.Add(r.Quantity)
		items[r.Item] = true
		deptTotals[r.Department] = deptTotals[r.Department].Add(r.Quantity)
	}

	usage := make([]DepartmentUsage, 0, len(deptTotals))
	for dept, qty := range deptTotals {
		usage = append(usage, DepartmentUsage{Department: dept, Quantity: qty})
	}
	sort.SliceStable(usage, func(i, j int) bool {
		if !usage[i].Quantity.Equal(usage[j].Quantity) {
			return usage[i].Quantity.GreaterThan(usage[j].Quantity)
		}
		return usage[i].Department < usage[j].Department
	})

	return Stats{
		TotalQuantity:   total,
		UniqueItems:     len(items),
		Transactions:    transactions,
		DepartmentUsage: usage,
	}
}

// Trend returns the dated issuances of one item, oldest first, for the
// historical usage chart. The item name match is case-insensitive, same as
// allocation lookups. Returns allocation.ErrNoUsage when the item has no
// history.
func Trend(history allocation.History, item string) ([]TrendPoint, error) {
	id := allocation.NewName(item)
	var points []TrendPoint
	for _, r := range history {
		if !id.Matches(r) {
			continue
		}
		points = append(points, TrendPoint{Date: r.Date, Quantity: r.Quantity})
	}
	if len(points) == 0 {
		return nil, &allocation.NoUsageError{Identifier: id}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}
