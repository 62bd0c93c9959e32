package httpapi

import (
	"net/http"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/inventory"
	"github.com/nerdfunk-net/cockpit/internal/query"
	"github.com/nerdfunk-net/cockpit/internal/smsclient"
	"github.com/nerdfunk-net/cockpit/internal/template"
)

type ansibleInventoryPayload struct {
	Operations    []query.Operation      `json:"operations"`
	Devices       []smsclient.Device     `json:"devices"` // optional: skip the query engine and use this set directly
	TemplateBody  string                 `json:"template_body"`
	TemplateKind  template.Kind          `json:"template_kind"`
	Vars          map[string]any         `json:"vars"`
	RepositoryID  *int64                 `json:"repository_id"`
	Filename      string                 `json:"filename"`
	AutoCommit    bool                   `json:"auto_commit"`
	AutoPush      bool                   `json:"auto_push"`
	CommitMessage string                 `json:"commit_message"`
}

func (h *handlers) resolveDevices(r *http.Request, p ansibleInventoryPayload) ([]smsclient.Device, int, error) {
	if len(p.Devices) > 0 {
		return p.Devices, 0, nil
	}
	if h.d.Query == nil {
		return nil, 0, errs.New(errs.KindValidation, "no devices or operations supplied")
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	result, err := h.d.Query.Evaluate(ctx, p.Operations)
	if err != nil {
		return nil, 0, err
	}
	return result.Devices, result.OperationsExecuted, nil
}

func devicesToMaps(devices []smsclient.Device) []map[string]any {
	out := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		out = append(out, map[string]any{
			"id":            d.ID,
			"name":          d.Name,
			"location":      d.Location,
			"role":          d.Role,
			"device_type":   d.DeviceType,
			"manufacturer":  d.Manufacturer,
			"platform":      d.Platform,
			"status":        d.Status,
			"primary_ip":    d.PrimaryIP,
			"tags":          d.Tags,
			"custom_fields": d.CustomFields,
		})
	}
	return out
}

// previewInventory handles POST /api/ansible-inventory/preview: renders
// without writing anything to a working tree (spec.md §4.6).
func (h *handlers) previewInventory(rw http.ResponseWriter, r *http.Request) {
	var p ansibleInventoryPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}

	devices, opsExecuted, err := h.resolveDevices(r, p)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	rendered, usedFallback, err := template.Render(p.TemplateBody, devicesToMaps(devices), template.Vars(p.Vars))
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"rendered":            rendered,
		"used_fallback":       usedFallback,
		"total_devices":       len(devices),
		"operations_executed": opsExecuted,
	})
}

// generateInventory handles POST /api/ansible-inventory/generate: renders
// and writes the result into the target repository or data_root/inventory,
// optionally committing and pushing (spec.md §4.6).
func (h *handlers) generateInventory(rw http.ResponseWriter, r *http.Request) {
	var p ansibleInventoryPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}

	devices, _, err := h.resolveDevices(r, p)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	req := inventory.Request{
		TemplateBody:  p.TemplateBody,
		TemplateKind:  p.TemplateKind,
		Devices:       devicesToMaps(devices),
		Vars:          template.Vars(p.Vars),
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
		req.Repository = &repo
	}

	result, err := h.d.Inventory.Generate(req)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}
	writeJSON(rw, http.StatusOK, result)
}

// downloadInventory handles POST /api/ansible-inventory/download: the same
// body as /generate (spec.md §6), but renders and streams the result as a
// ".yaml" attachment instead of writing it into a working tree.
func (h *handlers) downloadInventory(rw http.ResponseWriter, r *http.Request) {
	var p ansibleInventoryPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(rw, h.log(), err)
		return
	}

	devices, _, err := h.resolveDevices(r, p)
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	rendered, _, err := template.Render(p.TemplateBody, devicesToMaps(devices), template.Vars(p.Vars))
	if err != nil {
		writeError(rw, h.log(), err)
		return
	}

	rw.Header().Set("Content-Type", "application/x-yaml")
	rw.Header().Set("Content-Disposition", "attachment; filename=\"inventory.yaml\"")
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte(rendered))
}
