/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the engine
  types (decimal quantities, tagged identifiers) from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DISPLAY RULES:
  Proportions are rounded to 2 decimals for display; allocated quantities
  are whole integers. Raw decimal quantities travel as strings so no
  precision is lost in JSON.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/spp/stock-engine/allocation"
	"github.com/spp/stock-engine/report"
	"github.com/spp/stock-engine/store/sqlite"
)

// =============================================================================
// AGGREGATION / ALLOCATION
// =============================================================================

// DepartmentShareDTO is one department's proportion of an item's usage.
type DepartmentShareDTO struct {
	Department string  `json:"department"`
	Proportion float64 `json:"proportion"`
	Quantity   string  `json:"quantity"`
	Weight     float64 `json:"weight"`
}

// AllocationRowDTO is one department's allocated share.
type AllocationRowDTO struct {
	Department        string  `json:"department"`
	Proportion        float64 `json:"proportion"`
	AllocatedQuantity int64   `json:"allocated_quantity"`
}

// AllocationEntry is one item+quantity pair to allocate.
type AllocationEntry struct {
	Identifier string  `json:"identifier"`
	Quantity   float64 `json:"quantity"`
}

// AllocationRequest asks for one or more items to be allocated, optionally
// restricted to a single department.
type AllocationRequest struct {
	Department string            `json:"department,omitempty"`
	Entries    []AllocationEntry `json:"entries"`
}

// AllocationEntryResult is the outcome for one requested entry. Entries
// matching no historical usage are reported, not failed, so one unknown
// item does not sink the whole batch.
type AllocationEntryResult struct {
	Identifier string             `json:"identifier"`
	Found      bool               `json:"found"`
	Error      string             `json:"error,omitempty"`
	Rows       []AllocationRowDTO `json:"rows,omitempty"`
}

// AllocationResponse wraps the per-entry results.
type AllocationResponse struct {
	Department string                  `json:"department,omitempty"`
	Results    []AllocationEntryResult `json:"results"`
}

// =============================================================================
// REPORTING
// =============================================================================

// DepartmentUsageDTO is one slice of the department usage distribution.
type DepartmentUsageDTO struct {
	Department string `json:"department"`
	Quantity   string `json:"quantity"`
}

// OverviewDTO is the filtered usage statistics view.
type OverviewDTO struct {
	TotalQuantity   string               `json:"total_quantity"`
	UniqueItems     int                  `json:"unique_items"`
	Transactions    int                  `json:"transactions"`
	DepartmentUsage []DepartmentUsageDTO `json:"department_usage"`
}

// TrendPointDTO is one dated issuance on an item's usage timeline.
type TrendPointDTO struct {
	Date     string `json:"date"`
	Quantity string `json:"quantity"`
}

// =============================================================================
// ISSUANCE LOG
// =============================================================================

// CreateIssuanceRequest records a draft issuance entry.
type CreateIssuanceRequest struct {
	Date               string  `json:"date,omitempty"`
	Item               string  `json:"item"`
	Department         string  `json:"department,omitempty"`
	IssuedTo           string  `json:"issued_to,omitempty"`
	Quantity           float64 `json:"quantity"`
	Unit               string  `json:"unit,omitempty"`
	Category           string  `json:"category,omitempty"`
	Reference          string  `json:"reference,omitempty"`
	DepartmentCategory string  `json:"department_category,omitempty"`
	Batch              string  `json:"batch,omitempty"`
	Store              string  `json:"store,omitempty"`
	ReceivedBy         string  `json:"received_by,omitempty"`
}

// IssuanceDTO is a stored draft issuance entry.
type IssuanceDTO struct {
	ID                 string `json:"id"`
	CreatedAt          string `json:"created_at"`
	Date               string `json:"date"`
	Item               string `json:"item"`
	Department         string `json:"department,omitempty"`
	IssuedTo           string `json:"issued_to,omitempty"`
	Quantity           string `json:"quantity"`
	Unit               string `json:"unit,omitempty"`
	Category           string `json:"category,omitempty"`
	Reference          string `json:"reference,omitempty"`
	DepartmentCategory string `json:"department_category,omitempty"`
	Batch              string `json:"batch,omitempty"`
	Store              string `json:"store,omitempty"`
	ReceivedBy         string `json:"received_by,omitempty"`
}

// RefreshDTO reports the outcome of a forced cache refresh.
type RefreshDTO struct {
	Records   int    `json:"records"`
	FetchedAt string `json:"fetched_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toShareDTO(s allocation.DepartmentShare) DepartmentShareDTO {
	return DepartmentShareDTO{
		Department: s.Department,
		Proportion: s.Proportion.Round(2).InexactFloat64(),
		Quantity:   s.Quantity.String(),
		Weight:     s.Weight.Round(4).InexactFloat64(),
	}
}

func toAllocationRowDTO(r allocation.AllocationResult) AllocationRowDTO {
	return AllocationRowDTO{
		Department:        r.Department,
		Proportion:        r.Proportion.Round(2).InexactFloat64(),
		AllocatedQuantity: r.Allocated,
	}
}

func toOverviewDTO(s report.Stats) OverviewDTO {
	usage := make([]DepartmentUsageDTO, len(s.DepartmentUsage))
	for i, u := range s.DepartmentUsage {
		usage[i] = DepartmentUsageDTO{Department: u.Department, Quantity: u.Quantity.String()}
	}
	return OverviewDTO{
		TotalQuantity:   s.TotalQuantity.String(),
		UniqueItems:     s.UniqueItems,
		Transactions:    s.Transactions,
		DepartmentUsage: usage,
	}
}

func toIssuanceDTO(e sqlite.Issuance) IssuanceDTO {
	return IssuanceDTO{
		ID:                 e.ID,
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
		Date:               e.Date.Format("2006-01-02"),
		Item:               e.Item,
		Department:         e.Department,
		IssuedTo:           e.IssuedTo,
		Quantity:           e.Quantity.String(),
		Unit:               e.Unit,
		Category:           e.Category,
		Reference:          e.Reference,
		DepartmentCategory: e.DepartmentCategory,
		Batch:              e.Batch,
		Store:              e.Store,
		ReceivedBy:         e.ReceivedBy,
	}
}
