package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/spp/stock-engine/allocation"
)

// CSVSource reads issuance records from a CSV export of the upstream sheet.
// Same positional column layout as the workbook.
type CSVSource struct {
	Path string
	Now  func() time.Time
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// DetectDelimiter picks the most likely CSV delimiter by scoring column
// count consistency across rows, for comma, semicolon, tab, and pipe.
func DetectDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	best := ','
	bestScore := 0

	for _, delim := range candidates {
		r := csv.NewReader(bytes.NewReader(data))
		r.Comma = delim
		r.LazyQuotes = true
		r.FieldsPerRecord = -1

		records, err := r.ReadAll()
		if err != nil || len(records) == 0 {
			continue
		}
		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}
		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}
		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			best = delim
		}
	}
	return best
}

// Fetch loads and coerces the CSV file into a history snapshot.
func (s *CSVSource) Fetch(ctx context.Context) (allocation.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s is empty", s.Path)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = DetectDelimiter(data)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Path, err)
	}

	history := fromRows(rows, s.now())
	if len(history) == 0 {
		return nil, fmt.Errorf("%s has no usable records", s.Path)
	}
	return history, nil
}

func (s *CSVSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
