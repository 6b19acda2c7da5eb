package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/JonMunkholm/material-finder/internal/web/templates"
)

// Query parameters of /api/materials that are not filter labels.
const (
	paramKeywords = "keywords"
	paramPage     = "page"
	paramPageSize = "pageSize"
)

// MaterialsResponse is one page of search results.
type MaterialsResponse struct {
	Items      []core.Record `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	Status     core.Status   `json:"status"`
	FetchedAt  time.Time     `json:"fetchedAt"`
}

// FilterResponse describes one filter and its selectable values.
type FilterResponse struct {
	Label   string        `json:"label"`
	Field   core.FieldKey `json:"field"`
	Options []string      `json:"options"`
}

// handleMaterials searches the catalog.
//
//	GET /api/materials?keywords=newton&Tipo=Teoría&page=2&pageSize=12
//
// Every parameter other than keywords, page and pageSize is a filter keyed
// by its label.
func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	page, err := parsePositiveInt(values.Get(paramPage), 1)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("invalid parameter %s: %w", paramPage, err), http.StatusBadRequest)
		return
	}
	pageSize, err := parsePositiveInt(values.Get(paramPageSize), s.cfg.Filters.PageSize)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("invalid parameter %s: %w", paramPageSize, err), http.StatusBadRequest)
		return
	}
	pageSize = min(pageSize, s.cfg.Filters.MaxPageSize)

	q := core.Query{
		Keywords: values.Get(paramKeywords),
		Filters:  make(map[string]string),
	}
	for label, vals := range values {
		switch label {
		case paramKeywords, paramPage, paramPageSize:
			continue
		}
		if len(vals) > 0 {
			q.Filters[label] = vals[0]
		}
	}

	res, err := s.engine.SearchResult(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	etag := strconv.Quote(res.Generation)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Data-Status", string(res.Status))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if isHTMX(r) && len(res.Records) == 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.EmptyState(core.SanitizeQuery(q).Keywords).Render(r.Context(), w); err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, paginate(res, page, pageSize))
}

// paginate slices res.Records to the requested page. Pages past the end are
// empty.
func paginate(res core.Result, page, pageSize int) MaterialsResponse {
	total := len(res.Records)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	return MaterialsResponse{
		Items:      res.Records[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		Status:     res.Status,
		FetchedAt:  res.FetchedAt,
	}
}

// handleFilters lists the enabled filters with their options.
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	options, err := s.engine.Options(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	enabled := core.EnabledFields(s.engine.Fields())
	filters := make([]FilterResponse, 0, len(options))
	if len(s.engine.Fields()) == 0 {
		// Auto-detected columns are labelled by their key.
		keys := make([]string, 0, len(options))
		for key := range options {
			keys = append(keys, string(key))
		}
		sort.Strings(keys)
		for _, key := range keys {
			filters = append(filters, FilterResponse{
				Label:   key,
				Field:   core.FieldKey(key),
				Options: options[core.FieldKey(key)],
			})
		}
	} else {
		for _, f := range enabled {
			opts := options[f.Field]
			if opts == nil {
				opts = []string{}
			}
			filters = append(filters, FilterResponse{Label: f.Label, Field: f.Field, Options: opts})
		}
	}

	writeJSON(w, r, http.StatusOK, filters)
}

// handleOptions returns the raw field → values map.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.engine.Options(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, options)
}

// handleCacheInfo reports the record cache state.
func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.cache.Info())
}

// handleCacheClear drops the cached records.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, r, http.StatusOK, s.cache.Info())
}

// RefreshResponse reports the outcome of a forced refresh.
type RefreshResponse struct {
	Status     core.Status `json:"status"`
	Records    int         `json:"records"`
	FetchedAt  time.Time   `json:"fetchedAt"`
	Generation string      `json:"generation"`
}

// handleCacheRefresh fetches the spreadsheet regardless of the cache window.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.cache.Refresh(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, RefreshResponse{
		Status:     res.Status,
		Records:    len(res.Records),
		FetchedAt:  res.FetchedAt,
		Generation: res.Generation,
	})
}

// handleSheetCSV forwards the raw spreadsheet CSV. Only GET is allowed;
// OPTIONS answers CORS preflight.
func (s *Server) handleSheetCSV(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeJSON(w, r, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	if err := s.slots.Acquire(r.Context()); err != nil {
		if errors.Is(err, ErrProxyBusy) {
			w.Header().Set("Retry-After", "5")
			s.respondError(w, r, err, http.StatusServiceUnavailable)
			return
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer s.slots.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Source.Timeout)
	defer cancel()

	body, err := s.proxy.FetchForProxy(ctx)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/csv; charset=utf-8")
	h.Set("Cache-Control", "public, max-age=300, s-maxage=300")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(body))
	}
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status   string `json:"status"`
	HasCache bool   `json:"hasCache"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", HasCache: s.cache.Info().HasCache})
}

// parsePositiveInt parses an integer query parameter with a default value.
func parsePositiveInt(val string, defaultVal int) (int, error) {
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", val)
	}
	if i < 1 {
		return 0, fmt.Errorf("%d must be at least 1", i)
	}
	return i, nil
}
