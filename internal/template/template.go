// Package template implements the Inventory Generator's rendering contract
// (spec.md §4.6): a Jinja2-equivalent template rendered with
// `all_devices`/`devices`/`total_devices`, falling back to a JSON
// serialization of the device lists on any render error.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Source enumerates where a Template's content originated (spec.md §3);
// rendering itself does not care, but callers (internal/inventory) log it.
type Source string

const (
	SourceGit        Source = "git"
	SourceFile       Source = "file"
	SourceWebEditor  Source = "webeditor"
)

// Kind enumerates the recognized template content types (spec.md §3).
// Render takes no Kind: every body, whatever its kind, is executed as a Go
// text/template with sprig functions; no kind is passed through raw.
type Kind string

const (
	KindJinja2  Kind = "jinja2"
	KindText    Kind = "text"
	KindYAML    Kind = "yaml"
	KindJSON    Kind = "json"
	KindTextFSM Kind = "textfsm"
)

// Vars is the operator-entered field set merged into the render context
// alongside the device lists.
type Vars map[string]any

// Render renders body against devices and vars, binding `all_devices`,
// `devices` (both the same list), and `total_devices` (spec.md §4.6
// "Rendering contract"). On any failure it falls back to a JSON
// serialization of {all_devices, devices} rather than propagating the
// error (spec.md: "never fails the onboarding call solely because of a
// template error"); the second return value reports whether the fallback
// was used.
func Render(body string, devices []map[string]any, vars Vars) (out string, usedFallback bool, renderErr error) {
	data := map[string]any{
		"all_devices":   devices,
		"devices":       devices,
		"total_devices": len(devices),
	}
	for k, v := range vars {
		data[k] = v
	}

	rendered, err := renderJinja2Equivalent(body, data)
	if err == nil {
		return rendered, false, nil
	}

	fallback, jsonErr := json.MarshalIndent(map[string]any{
		"all_devices": devices,
		"devices":     devices,
	}, "", "  ")
	if jsonErr != nil {
		return "", true, fmt.Errorf("template render failed (%w) and json fallback failed (%v)", err, jsonErr)
	}
	return string(fallback), true, nil
}

// renderJinja2Equivalent compiles body as a Go text/template using sprig's
// function set (the teacher's Helm-value-templating stack, spec.md
// SPEC_FULL §3) and executes it against data.
func renderJinja2Equivalent(body string, data map[string]any) (string, error) {
	tmpl, err := template.New("inventory").Funcs(sprig.TxtFuncMap()).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
