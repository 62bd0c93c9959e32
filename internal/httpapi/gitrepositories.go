package httpapi

import (
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/nerdfunk-net/cockpit/internal/gitrepo"
)

type repositoryPayload struct {
	Name           string           `json:"name"`
	Category       gitrepo.Category `json:"category"`
	URL            string           `json:"url"`
	Branch         string           `json:"branch"`
	Username       string           `json:"username"`
	Token          string           `json:"token"`
	CredentialName string           `json:"credential_name"`
	Path           string           `json:"path"`
	VerifySSL      bool             `json:"verify_ssl"`
	SSLCAInfo      string           `json:"ssl_cainfo"`
	SSLCert        string           `json:"ssl_cert"`
	IsActive       *bool            `json:"is_active"`
}

func (p repositoryPayload) toRepository() gitrepo.Repository {
	return gitrepo.Repository{
		Name: p.Name, Category: p.Category, URL: p.URL, Branch: p.Branch,
		Username: p.Username, Token: p.Token, CredentialName: p.CredentialName,
		Path: p.Path, VerifySSL: p.VerifySSL, SSLCAInfo: p.SSLCAInfo, SSLCert: p.SSLCert,
	}
}

// listRepositories handles GET /api/git-repositories.
func (h *handlers) listRepositories(rw http.ResponseWriter, r *http.Request) {
	recs, err := h.d.Repos.List()
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, recs)
}

// createRepository handles POST /api/git-repositories.
func (h *handlers) createRepository(rw http.ResponseWriter, r *http.Request) {
	var p repositoryPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	rec, err := h.d.Repos.Create(p.toRepository())
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusCreated, rec)
}

// updateRepository handles PUT /api/git-repositories/{id}.
func (h *handlers) updateRepository(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	var p repositoryPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	isActive := true
	if p.IsActive != nil {
		isActive = *p.IsActive
	}
	rec, err := h.d.Repos.Update(id, p.toRepository(), isActive)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, rec)
}

// deleteRepository handles DELETE /api/git-repositories/{id}.
func (h *handlers) deleteRepository(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if err := h.d.Repos.Delete(id); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusNoContent, nil)
}

// getSelectedRepository handles GET /api/git-repositories/selected.
func (h *handlers) getSelectedRepository(rw http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.d.Repos.Selected()
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if !ok {
		writeJSON(rw, http.StatusOK, nil)
		return
	}
	writeJSON(rw, http.StatusOK, rec)
}

// selectRepository handles POST /api/git-repositories/{id}/select.
func (h *handlers) selectRepository(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if err := h.d.Repos.SetSelected(id); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	rec, err := h.d.Repos.Get(id)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, rec)
}

// testRepository handles POST /api/git-repositories/{id}/test: a
// credential-resolving remote ref listing, no working tree touched.
func (h *handlers) testRepository(rw http.ResponseWriter, r *http.Request) {
	rec, err := h.repoByPathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if err := h.d.Git.TestConnection(rec.Repository); err != nil {
		writeJSON(rw, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

// syncRepository handles POST /api/git-repositories/{id}/sync.
func (h *handlers) syncRepository(rw http.ResponseWriter, r *http.Request) {
	rec, err := h.repoByPathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	result, err := h.d.Git.Sync(rec.Repository)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	status := "failed"
	if result.Success {
		status = "synced"
	}
	if setErr := h.d.Repos.SetSyncStatus(rec.ID, status); setErr != nil && h.log() != nil {
		h.log().WithError(setErr).Warn("failed to persist sync status")
	}
	if h.d.Cache != nil {
		h.d.Cache.ClearNamespace(repoCacheNamespace(rec.ID))
	}
	writeJSON(rw, http.StatusOK, result)
}

// repositoryStatus handles GET /api/git-repositories/{id}/status, cached
// under repo:<id>:status (spec.md §4.7).
func (h *handlers) repositoryStatus(rw http.ResponseWriter, r *http.Request) {
	rec, err := h.repoByPathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	key := repoCacheNamespace(rec.ID) + ":status"
	if h.d.Cache != nil {
		if cached, ok := h.d.Cache.Get(key); ok {
			writeJSON(rw, http.StatusOK, cached)
			return
		}
	}

	status, err := h.d.Git.Status(rec.Repository)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if h.d.Cache != nil {
		h.d.Cache.Set(key, status, 0)
	}
	writeJSON(rw, http.StatusOK, status)
}

// searchRepositoryFiles handles GET /api/git-repositories/{id}/files?q=&limit=.
func (h *handlers) searchRepositoryFiles(rw http.ResponseWriter, r *http.Request) {
	rec, err := h.repoByPathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	status, err := h.d.Git.Status(rec.Repository)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	queryStr := r.URL.Query().Get("q")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limit = n
		}
	}

	matches := rankFileMatches(status.ConfigFiles, queryStr)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	writeJSON(rw, http.StatusOK, map[string]any{"files": matches})
}

// fileMatch pairs a candidate path with its ranking tier (SPEC_FULL.md §4:
// "exact filename > prefix > substring > path-substring, then alphabetical",
// ported from the original's routers/files_new.py search endpoint).
type fileMatch struct {
	path string
	tier int
}

// matchTier classifies full against query: 0 exact filename, 1 filename
// prefix, 2 filename substring, 3 path substring (the query only appears
// outside the filename itself), -1 no match.
func matchTier(query, full string) int {
	q := strings.ToLower(query)
	base := strings.ToLower(path.Base(full))

	switch {
	case base == q:
		return 0
	case strings.HasPrefix(base, q):
		return 1
	case strings.Contains(base, q):
		return 2
	case strings.Contains(strings.ToLower(full), q):
		return 3
	default:
		return -1
	}
}

// rankFileMatches filters candidates by query and orders them into the four
// tiers, alphabetical within each tier. An empty query matches everything at
// tier 3, ordered alphabetically.
func rankFileMatches(candidates []string, query string) []string {
	var matches []fileMatch
	for _, f := range candidates {
		if query == "" {
			matches = append(matches, fileMatch{path: f, tier: 3})
			continue
		}
		if tier := matchTier(query, f); tier >= 0 {
			matches = append(matches, fileMatch{path: f, tier: tier})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].tier != matches[j].tier {
			return matches[i].tier < matches[j].tier
		}
		return matches[i].path < matches[j].path
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.path
	}
	return out
}

func (h *handlers) repoByPathID(r *http.Request) (gitrepo.Record, error) {
	id, err := pathID(r)
	if err != nil {
		return gitrepo.Record{}, err
	}
	return h.d.Repos.Get(id)
}

func repoCacheNamespace(id int64) string {
	return "repo:" + strconv.FormatInt(id, 10)
}
