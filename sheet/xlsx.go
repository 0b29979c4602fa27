package sheet

import (
	"context"
	"fmt"
	"time"

	"github.com/spp/stock-engine/allocation"
	"github.com/xuri/excelize/v2"
)

// XLSXSource reads issuance records from an Excel workbook, the same layout
// the upstream stock-management spreadsheet uses.
type XLSXSource struct {
	Path      string
	Worksheet string

	// Now anchors the retention window; defaults to time.Now. Tests inject
	// a fixed clock here.
	Now func() time.Time
}

// NewXLSXSource creates a source for the given workbook path. An empty
// worksheet name selects DefaultWorksheet.
func NewXLSXSource(path, worksheet string) *XLSXSource {
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	return &XLSXSource{Path: path, Worksheet: worksheet}
}

// Fetch loads and coerces the worksheet into a history snapshot.
func (s *XLSXSource) Fetch(ctx context.Context) (allocation.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", s.Path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(s.Worksheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", s.Worksheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet %q is empty", s.Worksheet)
	}

	history := fromRows(rows, s.now())
	if len(history) == 0 {
		return nil, fmt.Errorf("worksheet %q has no usable records", s.Worksheet)
	}
	return history, nil
}

func (s *XLSXSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
