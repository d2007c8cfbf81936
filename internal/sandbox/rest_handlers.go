package sandbox

import (
	"net/http"
	"strings"

	"wafra.app/internal/ids"
)

// handleTable serves generic row reads and writes under /rest/v1/{table}.
// Every table access requires a bearer token, like row-level security.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if table == "" || strings.Contains(table, "/") {
		writeError(w, http.StatusNotFound, "unknown table")
		return
	}
	if _, ok := s.bearerUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if table == "investments" {
		s.settleInvestments()
	}

	switch r.Method {
	case http.MethodGet:
		s.tableGet(w, r, table)
	case http.MethodPost:
		s.tablePost(w, r, table)
	case http.MethodPatch:
		s.tablePatch(w, r, table)
	default:
		methodNotAllowed(w, "GET, POST, PATCH")
	}
}

// queryFilters extracts eq.-prefixed column filters from the query string.
func queryFilters(r *http.Request) map[string]string {
	filters := make(map[string]string)
	for col, vals := range r.URL.Query() {
		if col == "limit" || col == "single" || len(vals) == 0 {
			continue
		}
		if v, ok := strings.CutPrefix(vals[0], "eq."); ok {
			filters[col] = v
		}
	}
	return filters
}

func (s *Server) tableGet(w http.ResponseWriter, r *http.Request, table string) {
	rows := s.store.findAll(table, queryFilters(r))

	if r.URL.Query().Get("single") == "true" {
		if len(rows) == 0 {
			writeError(w, http.StatusNotFound, "no rows found")
			return
		}
		writeJSON(w, http.StatusOK, rows[0])
		return
	}
	if rows == nil {
		rows = []row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) tablePost(w http.ResponseWriter, r *http.Request, table string) {
	var rec row
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v, ok := rec["id"].(string); !ok || v == "" {
		rec["id"] = ids.New()
	}
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = s.now()
	}
	s.store.insert(table, rec)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) tablePatch(w http.ResponseWriter, r *http.Request, table string) {
	var patch row
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters := queryFilters(r)
	if len(filters) == 0 {
		writeError(w, http.StatusBadRequest, "unfiltered update rejected")
		return
	}

	updated := 0
	for _, rec := range s.store.tables[table] {
		if !matches(rec, filters) {
			continue
		}
		for k, v := range patch {
			// _delta columns increment instead of replace.
			if base, ok := strings.CutSuffix(k, "_delta"); ok {
				rec[base] = asInt64(rec[base]) + asInt64(v)
				continue
			}
			rec[k] = v
		}
		updated++
	}
	if updated == 0 {
		writeError(w, http.StatusNotFound, "no rows found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// asInt64 normalizes stored numerics; JSON decoding yields float64.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
