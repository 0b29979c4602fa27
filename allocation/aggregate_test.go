package allocation_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spp/stock-engine/allocation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func rec(item, dept string, qty float64) allocation.UsageRecord {
	return allocation.UsageRecord{
		Item:       item,
		Serial:     "",
		Department: dept,
		Quantity:   decimal.NewFromFloat(qty),
	}
}

func byName(name string) allocation.Identifier { return allocation.NewName(name) }

// proportionSum adds up proportions as float64 for tolerance checks.
func proportionSum(shares []allocation.DepartmentShare) float64 {
	sum := 0.0
	for _, s := range shares {
		f, _ := s.Proportion.Float64()
		sum += f
	}
	return sum
}

// =============================================================================
// IDENTIFIER PARSING
// =============================================================================

func TestParseIdentifier_NumericIsSerial(t *testing.T) {
	id := allocation.ParseIdentifier("1042")
	if id.Kind != allocation.KindSerial {
		t.Errorf("expected serial identifier, got %s", id.Kind)
	}
}

func TestParseIdentifier_TextIsName(t *testing.T) {
	for _, raw := range []string{"Sugar", "flour 00", "A12"} {
		id := allocation.ParseIdentifier(raw)
		if id.Kind != allocation.KindName {
			t.Errorf("expected name identifier for %q, got %s", raw, id.Kind)
		}
	}
}

func TestParseIdentifier_TrimsWhitespace(t *testing.T) {
	id := allocation.ParseIdentifier("  1042 ")
	if id.Kind != allocation.KindSerial || id.Value != "1042" {
		t.Errorf("expected trimmed serial 1042, got %s %q", id.Kind, id.Value)
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_ProportionsSumTo100(t *testing.T) {
	// GIVEN: Sugar issued 30 to A and 70 to B
	// WHEN: Aggregating
	// THEN: Proportions are 30/70 and sum to 100

	history := allocation.History{
		rec("Sugar", "A", 30),
		rec("Sugar", "B", 70),
	}

	shares, err := allocation.Aggregate(history, byName("Sugar"), allocation.AllDepartments, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
	if math.Abs(proportionSum(shares)-100) > 1e-6 {
		t.Errorf("proportions should sum to 100, got %v", proportionSum(shares))
	}
	// Sorted descending: B first
	if shares[0].Department != "B" || !shares[0].Proportion.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected B at 70%%, got %s at %v", shares[0].Department, shares[0].Proportion)
	}
	if shares[1].Department != "A" || !shares[1].Proportion.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected A at 30%%, got %s at %v", shares[1].Department, shares[1].Proportion)
	}
}

func TestAggregate_UnknownItem_NotFound(t *testing.T) {
	history := allocation.History{rec("Sugar", "A", 30)}

	_, err := allocation.Aggregate(history, byName("Cardamom"), "", 1.0)
	if !errors.Is(err, allocation.ErrNoUsage) {
		t.Fatalf("expected ErrNoUsage, got %v", err)
	}
	if !allocation.IsNotFound(err) {
		t.Error("IsNotFound should classify ErrNoUsage")
	}
}

func TestAggregate_ZeroTotalUsage_NotFound(t *testing.T) {
	// GIVEN: Issuances that net to exactly zero (issue + full return)
	// WHEN: Aggregating
	// THEN: NotFound, never a division error

	history := allocation.History{
		rec("Yeast", "A", 5),
		rec("Yeast", "A", -5),
	}

	_, err := allocation.Aggregate(history, byName("Yeast"), "", 1.0)
	if !errors.Is(err, allocation.ErrNoUsage) {
		t.Fatalf("expected ErrNoUsage for zero total, got %v", err)
	}
}

func TestAggregate_CaseInsensitiveName(t *testing.T) {
	history := allocation.History{
		rec("Flour", "A", 40),
		rec("Flour", "B", 60),
	}

	lower, err := allocation.Aggregate(history, byName("flour"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	upper, err := allocation.Aggregate(history, byName("FLOUR"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lower) != len(upper) {
		t.Fatalf("case variants disagree: %d vs %d shares", len(lower), len(upper))
	}
	for i := range lower {
		if lower[i].Department != upper[i].Department || !lower[i].Proportion.Equal(upper[i].Proportion) {
			t.Errorf("share %d differs between case variants", i)
		}
	}
}

func TestAggregate_SerialLookup(t *testing.T) {
	history := allocation.History{
		{Item: "Sugar", Serial: "SKU10", Department: "A", Quantity: decimal.NewFromInt(10)},
		{Item: "Salt", Serial: "SKU11", Department: "B", Quantity: decimal.NewFromInt(20)},
	}

	shares, err := allocation.Aggregate(history, allocation.NewSerial("sku10"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 1 || shares[0].Department != "A" {
		t.Fatalf("serial lookup should match SKU10 only, got %v", shares)
	}
}

func TestAggregate_DepartmentFilter(t *testing.T) {
	// GIVEN: Usage in two departments
	// WHEN: Filtering to one of them
	// THEN: Only that department remains, at 100%

	history := allocation.History{
		rec("Sugar", "Bakery", 30),
		rec("Sugar", "Kitchen", 70),
	}

	shares, err := allocation.Aggregate(history, byName("Sugar"), "Bakery", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 1 || shares[0].Department != "Bakery" {
		t.Fatalf("expected only Bakery, got %v", shares)
	}
	if !shares[0].Proportion.Equal(decimal.NewFromInt(100)) {
		t.Errorf("single department should hold 100%%, got %v", shares[0].Proportion)
	}
}

func TestAggregate_DepartmentFilter_NoRowsInDepartment(t *testing.T) {
	history := allocation.History{rec("Sugar", "Bakery", 30)}

	_, err := allocation.Aggregate(history, byName("Sugar"), "Kitchen", 1.0)
	if !errors.Is(err, allocation.ErrNoUsage) {
		t.Fatalf("expected ErrNoUsage, got %v", err)
	}
}

func TestAggregate_AllDepartmentsSentinel_NoFilter(t *testing.T) {
	history := allocation.History{
		rec("Sugar", "A", 30),
		rec("Sugar", "B", 70),
	}

	shares, err := allocation.Aggregate(history, byName("Sugar"), allocation.AllDepartments, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("sentinel should not restrict, got %d shares", len(shares))
	}
}

func TestAggregate_SignificanceFilter_DropsAndRenormalizes(t *testing.T) {
	// GIVEN: A department with 0.5% of usage, two with ~49.75% each
	// WHEN: Aggregating with the default 1% threshold
	// THEN: The noise department is dropped, survivors renormalize to 100

	history := allocation.History{
		rec("Butter", "Tasting", 1),
		rec("Butter", "Bakery", 99.5),
		rec("Butter", "Kitchen", 99.5),
	}

	shares, err := allocation.Aggregate(history, byName("Butter"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected Tasting dropped, got %d shares", len(shares))
	}
	for _, s := range shares {
		if s.Department == "Tasting" {
			t.Error("Tasting should be below the significance threshold")
		}
	}
	if math.Abs(proportionSum(shares)-100) > 1e-6 {
		t.Errorf("renormalized proportions should sum to 100, got %v", proportionSum(shares))
	}
}

func TestAggregate_ThresholdBoundary_ExactlyAtMinIsRetained(t *testing.T) {
	// GIVEN: A at exactly 1% and B at 99%
	// WHEN: Aggregating with min proportion 1.0
	// THEN: A sits at the threshold and is retained; sums still 100

	history := allocation.History{
		rec("Salt", "A", 1),
		rec("Salt", "B", 99),
	}

	shares, err := allocation.Aggregate(history, byName("Salt"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected both departments retained, got %d", len(shares))
	}
	if math.Abs(proportionSum(shares)-100) > 1e-6 {
		t.Errorf("proportions should sum to 100, got %v", proportionSum(shares))
	}
}

func TestAggregate_AllBelowThreshold_KeepsSingleMaxAt100(t *testing.T) {
	// GIVEN: Every department under the (raised) threshold
	// WHEN: Aggregating
	// THEN: Only the max-proportion department remains, at 100%

	history := allocation.History{
		rec("Vanilla", "A", 20),
		rec("Vanilla", "B", 30),
		rec("Vanilla", "C", 25),
		rec("Vanilla", "D", 25),
	}

	shares, err := allocation.Aggregate(history, byName("Vanilla"), "", 40.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected exactly one survivor, got %d", len(shares))
	}
	if shares[0].Department != "B" {
		t.Errorf("expected max department B, got %s", shares[0].Department)
	}
	if !shares[0].Proportion.Equal(decimal.NewFromInt(100)) {
		t.Errorf("sole survivor should renormalize to 100%%, got %v", shares[0].Proportion)
	}
}

func TestAggregate_NegativeNetDepartment_FilteredOut(t *testing.T) {
	// A department whose returns exceed issues has negative net usage and
	// falls below any positive threshold.
	history := allocation.History{
		rec("Cream", "A", 50),
		rec("Cream", "B", 60),
		rec("Cream", "B", -70),
	}

	shares, err := allocation.Aggregate(history, byName("Cream"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 1 || shares[0].Department != "A" {
		t.Fatalf("expected only A to survive, got %v", shares)
	}
}

func TestAggregate_WeightsSumToOne(t *testing.T) {
	history := allocation.History{
		rec("Sugar", "A", 30),
		rec("Sugar", "B", 70),
		rec("Sugar", "C", 50),
	}

	shares, err := allocation.Aggregate(history, byName("Sugar"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	weightSum := decimal.Zero
	for _, s := range shares {
		weightSum = weightSum.Add(s.Weight)
	}
	f, _ := weightSum.Float64()
	if math.Abs(f-1) > 1e-6 {
		t.Errorf("weights should sum to 1, got %v", f)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	// Pure function: identical inputs, identical outputs.
	history := allocation.History{
		rec("Sugar", "A", 30),
		rec("Sugar", "B", 70),
	}

	first, err := allocation.Aggregate(history, byName("Sugar"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := allocation.Aggregate(history, byName("Sugar"), "", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Department != second[i].Department ||
			!first[i].Proportion.Equal(second[i].Proportion) ||
			!first[i].Weight.Equal(second[i].Weight) {
			t.Errorf("share %d differs between identical calls", i)
		}
	}
}

func TestAggregate_EmptyIdentifier_InvalidInput(t *testing.T) {
	history := allocation.History{rec("Sugar", "A", 30)}

	_, err := allocation.Aggregate(history, byName(""), "", 1.0)
	if !errors.Is(err, allocation.ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if !allocation.IsClientError(err) {
		t.Error("IsClientError should classify ErrInvalidIdentifier")
	}
}

// =============================================================================
// HISTORY HELPERS
// =============================================================================

func TestHistory_UniqueSortedLookups(t *testing.T) {
	history := allocation.History{
		{Item: "Sugar", Department: "Kitchen", Category: "Dry"},
		{Item: "Flour", Department: "Bakery", Category: "Dry"},
		{Item: "Sugar", Department: "Bakery", Category: "Dry"},
	}

	items := history.ItemNames()
	if len(items) != 2 || items[0] != "Flour" || items[1] != "Sugar" {
		t.Errorf("unexpected item names: %v", items)
	}
	depts := history.Departments()
	if len(depts) != 2 || depts[0] != "Bakery" || depts[1] != "Kitchen" {
		t.Errorf("unexpected departments: %v", depts)
	}
	if cats := history.Categories(); len(cats) != 1 || cats[0] != "Dry" {
		t.Errorf("unexpected categories: %v", cats)
	}
}
