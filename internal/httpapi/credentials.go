package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/vault"
)

type credentialPayload struct {
	Name       string     `json:"name"`
	Username   string     `json:"username"`
	Type       vault.Type `json:"type"`
	Password   string     `json:"password"`
	ValidUntil *time.Time `json:"valid_until"`
}

type credentialUpdatePayload struct {
	Username   *string     `json:"username"`
	Type       *vault.Type `json:"type"`
	Password   *string     `json:"password"`
	ValidUntil **time.Time `json:"valid_until"`
	IsActive   *bool       `json:"is_active"`
}

// listCredentials handles GET /api/credentials (spec.md §6: includes the
// derived status; supports ?include_expired=true).
func (h *handlers) listCredentials(rw http.ResponseWriter, r *http.Request) {
	includeExpired := r.URL.Query().Get("include_expired") == "true"
	creds, err := h.d.Vault.List(includeExpired)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, creds)
}

// createCredential handles POST /api/credentials.
func (h *handlers) createCredential(rw http.ResponseWriter, r *http.Request) {
	var p credentialPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	cred, err := h.d.Vault.Create(p.Name, p.Username, p.Type, p.Password, p.ValidUntil)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusCreated, cred)
}

// updateCredential handles PUT /api/credentials/{id}.
func (h *handlers) updateCredential(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	var p credentialUpdatePayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	cred, err := h.d.Vault.Update(id, vault.Update{
		Username:    p.Username,
		Type:        p.Type,
		NewPassword: p.Password,
		ValidUntil:  p.ValidUntil,
		IsActive:    p.IsActive,
	})
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, cred)
}

// deleteCredential handles DELETE /api/credentials/{id}.
func (h *handlers) deleteCredential(rw http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	if err := h.d.Vault.Delete(id); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusNoContent, nil)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.New(errs.KindValidation, "id must be an integer")
	}
	return id, nil
}
