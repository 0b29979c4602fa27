/*
handlers.go - HTTP API handlers for the allocation service

PURPOSE:
  Exposes the allocation engine and reports via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Lookups:
    GET  /api/items                 Unique item names
    GET  /api/departments           "All Departments" + unique departments

  Allocation:
    GET  /api/usage/proportions     Per-department proportions for an item
    POST /api/allocations           Allocate quantities for 1-10 items

  Reports:
    GET  /api/overview              Filtered usage statistics
    GET  /api/trend                 Historical usage points for an item

  Issuance log:
    GET  /api/issuances             List draft issuance entries
    POST /api/issuances             Record a draft issuance entry

  Admin:
    POST /api/admin/refresh         Force a re-fetch from the spreadsheet

REQUEST FLOW:
  1. Resolve the history snapshot (cache hit, or fetch + snapshot)
  2. Validate input
  3. Call the engine / report functions
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item not found / no usage data
  - 502: Upstream spreadsheet fetch failed
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spp/stock-engine/allocation"
	"github.com/spp/stock-engine/report"
	"github.com/spp/stock-engine/sheet"
	"github.com/spp/stock-engine/store/sqlite"
)

// maxAllocationEntries bounds a single allocation request, matching the
// upstream form's 1-10 item limit.
const maxAllocationEntries = 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Cache  *sqlite.Cache
	Source sheet.Source

	// TTL bounds how old the cached history may be before a request
	// triggers a re-fetch.
	TTL time.Duration
}

// NewHandler creates a new handler around the cache and source.
func NewHandler(cache *sqlite.Cache, source sheet.Source, ttl time.Duration) *Handler {
	return &Handler{Cache: cache, Source: source, TTL: ttl}
}

// history returns the current snapshot, re-fetching from the source when
// the cache is stale. Every request computes from one immutable snapshot.
func (h *Handler) history(r *http.Request) (allocation.History, error) {
	history, err := h.Cache.Load(r.Context(), h.TTL)
	if err == nil {
		return history, nil
	}
	if !errors.Is(err, sqlite.ErrStaleCache) {
		return nil, err
	}
	return h.refresh(r)
}

// refresh fetches a fresh table and snapshots it into the cache. A cache
// write failure is logged, not fatal: the fetched table still serves the
// current request.
func (h *Handler) refresh(r *http.Request) (allocation.History, error) {
	history, err := h.Source.Fetch(r.Context())
	if err != nil {
		return nil, &sourceError{err: err}
	}
	if err := h.Cache.Snapshot(r.Context(), history); err != nil {
		log.Printf("warning: failed to cache fetched history: %v", err)
	}
	return history, nil
}

// sourceError marks upstream fetch failures so they map to 502.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return fmt.Sprintf("source fetch failed: %v", e.err) }
func (e *sourceError) Unwrap() error { return e.err }

// =============================================================================
// LOOKUPS
// =============================================================================

// ListItems returns the unique item names in the history.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history.ItemNames()})
}

// ListDepartments returns the department filter choices, sentinel first.
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}
	departments := append([]string{allocation.AllDepartments}, history.Departments()...)
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

// =============================================================================
// AGGREGATION / ALLOCATION
// =============================================================================

// GetProportions returns per-department usage proportions for one item.
//
// Query params: identifier (required), department, min_proportion.
func (h *Handler) GetProportions(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required", nil)
		return
	}

	minProportion := allocation.DefaultMinProportion
	if raw := r.URL.Query().Get("min_proportion"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_proportion", err)
			return
		}
		minProportion = parsed
	}

	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}

	shares, err := allocation.Aggregate(history, allocation.ParseIdentifier(identifier),
		r.URL.Query().Get("department"), minProportion)
	if err != nil {
		writeError(w, statusFor(err), "aggregation failed", err)
		return
	}

	dtos := make([]DepartmentShareDTO, len(shares))
	for i, s := range shares {
		dtos[i] = toShareDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": dtos})
}

// CreateAllocations allocates available quantities for a batch of items.
func (h *Handler) CreateAllocations(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "at least one entry is required", nil)
		return
	}
	if len(req.Entries) > maxAllocationEntries {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d entries per request", maxAllocationEntries), nil)
		return
	}
	for _, e := range req.Entries {
		if strings.TrimSpace(e.Identifier) == "" {
			writeError(w, http.StatusBadRequest, "entry identifier must not be empty", nil)
			return
		}
		if e.Quantity <= 0 {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("quantity for %q must be positive", e.Identifier), nil)
			return
		}
	}

	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}

	resp := AllocationResponse{Department: req.Department}
	for _, e := range req.Entries {
		id := allocation.ParseIdentifier(e.Identifier)
		results, err := allocation.Allocate(history, id,
			decimal.NewFromFloat(e.Quantity), req.Department)

		entry := AllocationEntryResult{Identifier: e.Identifier}
		switch {
		case allocation.IsNotFound(err):
			entry.Error = "item not found in historical data or has no usage data for the selected department"
		case err != nil:
			writeError(w, statusFor(err), "allocation failed", err)
			return
		default:
			entry.Found = true
			entry.Rows = make([]AllocationRowDTO, len(results))
			for i, row := range results {
				entry.Rows[i] = toAllocationRowDTO(row)
			}
		}
		resp.Results = append(resp.Results, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// REPORTS
// =============================================================================

// GetOverview returns filtered usage statistics.
//
// Query params: from, to (YYYY-MM-DD), categories, items, departments
// (comma-separated).
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	var filter report.Filter
	q := r.URL.Query()

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date", err)
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date", err)
			return
		}
		// Inclusive end of day.
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Categories = splitList(q.Get("categories"))
	filter.Items = splitList(q.Get("items"))
	filter.Departments = splitList(q.Get("departments"))

	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}

	writeJSON(w, http.StatusOK, toOverviewDTO(report.Overview(history, filter)))
}

// GetTrend returns an item's dated issuances, oldest first.
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	item := strings.TrimSpace(r.URL.Query().Get("item"))
	if item == "" {
		writeError(w, http.StatusBadRequest, "item is required", nil)
		return
	}

	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}

	points, err := report.Trend(history, item)
	if err != nil {
		writeError(w, statusFor(err), "trend failed", err)
		return
	}

	dtos := make([]TrendPointDTO, len(points))
	for i, p := range points {
		dtos[i] = TrendPointDTO{
			Date:     p.Date.Format("2006-01-02"),
			Quantity: p.Quantity.String(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "points": dtos})
}

// =============================================================================
// ISSUANCE LOG
// =============================================================================

// CreateIssuance records a draft issuance entry. The item must exist in the
// historical data, same as the upstream console only offering known items.
func (h *Handler) CreateIssuance(w http.ResponseWriter, r *http.Request) {
	var req CreateIssuanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Item) == "" {
		writeError(w, http.StatusBadRequest, "item is required", nil)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive", nil)
		return
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		date = parsed
	}

	history, err := h.history(r)
	if err != nil {
		writeError(w, statusFor(err), "failed to load history", err)
		return
	}
	if !knownItem(history, req.Item) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown item %q", req.Item), nil)
		return
	}

	id, err := h.Cache.AppendIssuance(r.Context(), sqlite.Issuance{
		Date:               date,
		Item:               req.Item,
		Department:         req.Department,
		IssuedTo:           req.IssuedTo,
		Quantity:           decimal.NewFromFloat(req.Quantity),
		Unit:               req.Unit,
		Category:           req.Category,
		Reference:          req.Reference,
		DepartmentCategory: req.DepartmentCategory,
		Batch:              req.Batch,
		Store:              req.Store,
		ReceivedBy:         req.ReceivedBy,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record issuance", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// ListIssuances returns the draft issuance log, newest first.
func (h *Handler) ListIssuances(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Cache.ListIssuances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list issuances", err)
		return
	}
	dtos := make([]IssuanceDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toIssuanceDTO(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"issuances": dtos})
}

// =============================================================================
// ADMIN
// =============================================================================

// RefreshData forces a re-fetch from the source into the cache.
func (h *Handler) RefreshData(w http.ResponseWriter, r *http.Request) {
	history, err := h.refresh(r)
	if err != nil {
		writeError(w, statusFor(err), "refresh failed", err)
		return
	}
	fetchedAt, err := h.Cache.FetchedAt(r.Context())
	if err != nil {
		fetchedAt = time.Now().UTC()
	}
	writeJSON(w, http.StatusOK, RefreshDTO{
		Records:   len(history),
		FetchedAt: fetchedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func knownItem(history allocation.History, item string) bool {
	id := allocation.NewName(item)
	for _, r := range history {
		if id.Matches(r) {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// statusFor maps engine and infrastructure errors to HTTP status codes.
func statusFor(err error) int {
	var srcErr *sourceError
	switch {
	case allocation.IsNotFound(err):
		return http.StatusNotFound
	case allocation.IsClientError(err):
		return http.StatusBadRequest
	case errors.As(err, &srcErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
