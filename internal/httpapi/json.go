// Package httpapi is the HTTP/JSON surface (spec.md §6): gorilla/mux
// routing over the Credential Vault, Git Working-Tree Orchestrator, Scan
// Subsystem, Device-Set Query Engine, Inventory Generator and Cache.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		logrus.WithError(err).Error("httpapi: failed to encode response body")
	}
}

// writeError maps err to its spec-mandated status code and writes a
// {"error": "..."} body (spec.md §7).
func writeError(rw http.ResponseWriter, log *logrus.Logger, err error) {
	status := errs.HTTPStatus(errs.KindOf(err))
	if log != nil {
		log.WithError(err).WithField("status", status).Warn("request failed")
	}
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errs.Wrap(errs.KindValidation, "invalid request body", err)
	}
	return nil
}
