package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/scan"
)

type startScanPayload struct {
	CIDRs             []string `json:"cidrs"`
	CredentialIDs     []int64  `json:"credential_ids"`
	DiscoveryMode     string   `json:"discovery_mode"`
	ParserTemplateIDs []int64  `json:"parser_template_ids"`
}

// startScan handles POST /api/scan/start (spec.md §4.4, §6).
func (h *handlers) startScan(rw http.ResponseWriter, r *http.Request) {
	var p startScanPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}
	job, err := h.d.Scan.Start(p.CIDRs, p.CredentialIDs, p.DiscoveryMode, p.ParserTemplateIDs, h.d.ScanDeps)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusAccepted, job.Status())
}

// listScanJobs handles GET /api/scan/jobs.
func (h *handlers) listScanJobs(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, h.d.Scan.List())
}

// scanStatus handles GET /api/scan/{job_id}/status.
func (h *handlers) scanStatus(rw http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, ok := h.d.Scan.Get(jobID)
	if !ok {
		writeError(rw, h.log(), errs.New(errs.KindNotFound, "scan job not found"))
		return
	}
	writeJSON(rw, http.StatusOK, job.Status())
}

// deleteScanJob handles DELETE /api/scan/{job_id}: best-effort cooperative
// cancellation (spec.md §4.4 "deletion marks the job; running workers check
// and stop at their next safe point").
func (h *handlers) deleteScanJob(rw http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	h.d.Scan.Delete(jobID)
	writeJSON(rw, http.StatusNoContent, nil)
}

type onboardPayload struct {
	Devices       []scan.OnboardDevice `json:"devices"`
	TemplateBody  string               `json:"template_body"`
	RepositoryID  *int64               `json:"repository_id"`
	Filename      string               `json:"filename"`
	AutoCommit    bool                 `json:"auto_commit"`
	AutoPush      bool                 `json:"auto_push"`
	CommitMessage string               `json:"commit_message"`
}

// onboardScan handles POST /api/scan/{job_id}/onboard.
func (h *handlers) onboardScan(rw http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	var p onboardPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}

	opts := scan.OnboardOptions{
		TemplateBody:  p.TemplateBody,
		Filename:      p.Filename,
		AutoCommit:    p.AutoCommit,
		AutoPush:      p.AutoPush,
		CommitMessage: p.CommitMessage,
	}
	if p.RepositoryID != nil {
		rec, err := h.d.Repos.Get(*p.RepositoryID)
		if err != nil {
			writeError(rw, h.log(), err)
			return
		}
		repo := rec.Repository
		opts.Repository = &repo
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := h.d.Scan.Onboard(ctx, jobID, p.Devices, h.d.SMS, h.d.Inventory, opts, h.log())
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, result)
}

