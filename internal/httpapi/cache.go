package httpapi

import "net/http"

// cacheStats handles GET /api/cache/stats (spec.md §4.2).
func (h *handlers) cacheStats(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, h.d.Cache.Stats())
}

// cacheClear handles POST /api/cache/clear?namespace=repo:<id> (spec.md
// §4.2). With no namespace query parameter, clears everything.
func (h *handlers) cacheClear(rw http.ResponseWriter, r *http.Request) {
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		h.d.Cache.ClearNamespace(ns)
	} else {
		h.d.Cache.ClearAll()
	}
	writeJSON(rw, http.StatusNoContent, nil)
}
