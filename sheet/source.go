/*
Package sheet ingests historical issuance records from spreadsheet-backed
sources (the upstream stock-management workbook, or CSV exports of it).

PURPOSE:
  Turns raw spreadsheet rows into allocation.History. This is the only
  place that knows the upstream column layout; the engine never sees a
  spreadsheet.

ROW CONTRACT (positional, matching the upstream CHECK_OUT worksheet):
  DATE, ITEM_SERIAL, ITEM NAME, DEPARTMENT, ISSUED_TO, QUANTITY,
  UNIT_OF_MEASURE, ITEM_CATEGORY, WEEK, REFERENCE, DEPARTMENT_CAT,
  BATCH NO., STORE, RECEIVED BY
  (WEEK is derived upstream and ignored here.)

COERCION POLICY:
  Rows with an unparseable quantity or date are dropped, not reported:
  the engine's inputs must be clean, and the upstream sheet is full of
  half-typed rows. Only records from the current and previous calendar
  year are retained.

SEE ALSO:
  - xlsx.go: Excel workbook source (excelize)
  - csv.go: CSV export source with delimiter detection
*/
package sheet

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spp/stock-engine/allocation"
)

// DefaultWorksheet is the upstream worksheet holding issuance records.
const DefaultWorksheet = "CHECK_OUT"

// Source fetches a fresh history snapshot from wherever the records live.
type Source interface {
	Fetch(ctx context.Context) (allocation.History, error)
}

// Column positions in the upstream sheet.
const (
	colDate = iota
	colSerial
	colItem
	colDepartment
	colIssuedTo
	colQuantity
	colUnit
	colCategory
	colWeek // derived upstream, ignored
	colReference
	colDepartmentCat
	colBatch
	colStore
	colReceivedBy
)

// dateLayouts are tried in order when parsing the DATE column.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2-Jan-2006",
	time.RFC3339,
}

func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseQuantity(s string) (decimal.Decimal, bool) {
	// Tolerate thousands separators from formatted sheet cells.
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parseRow converts one data row into a UsageRecord. ok is false when the
// row fails coercion and must be dropped.
func parseRow(row []string) (allocation.UsageRecord, bool) {
	date, ok := parseDate(getCell(row, colDate))
	if !ok {
		return allocation.UsageRecord{}, false
	}
	qty, ok := parseQuantity(getCell(row, colQuantity))
	if !ok {
		return allocation.UsageRecord{}, false
	}
	return allocation.UsageRecord{
		Date:               date,
		Serial:             getCell(row, colSerial),
		Item:               getCell(row, colItem),
		Department:         getCell(row, colDepartment),
		IssuedTo:           getCell(row, colIssuedTo),
		Quantity:           qty,
		Unit:               getCell(row, colUnit),
		Category:           getCell(row, colCategory),
		Reference:          getCell(row, colReference),
		DepartmentCategory: getCell(row, colDepartmentCat),
		Batch:              getCell(row, colBatch),
		Store:              getCell(row, colStore),
		ReceivedBy:         getCell(row, colReceivedBy),
	}, true
}

// fromRows is the shared ingestion path for both sources. The first row is
// skipped when it does not parse as data (header row). now anchors the
// two-calendar-year retention window.
func fromRows(rows [][]string, now time.Time) allocation.History {
	cutoffYear := now.Year() - 1

	var history allocation.History
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		rec, ok := parseRow(row)
		if !ok {
			// Header or garbage row. Either way it is dropped.
			continue
		}
		if rec.Date.Year() < cutoffYear {
			continue
		}
		history = append(history, rec)
	}
	return history
}
