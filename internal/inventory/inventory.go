// Package inventory implements the Inventory Generator (spec.md §4.6):
// renders a template against a device list, writes it into a Git working
// tree (or the data_root inventory/ fallback), and optionally commits and
// pushes via internal/gitrepo.
package inventory

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/gitrepo"
	"github.com/nerdfunk-net/cockpit/internal/template"
)

// GitWriter is the subset of the Git Working-Tree Orchestrator the
// generator needs: resolving a repository's working tree path and
// committing/pushing the written file into it.
type GitWriter interface {
	OpenOrClone(repo gitrepo.Repository) (string, error)
	CommitAndPush(repo gitrepo.Repository, relpath, message string, push bool) (string, error)
}

// Generator renders templates and writes the result into a chosen Git
// working tree or the data_root fallback directory.
type Generator struct {
	dataRoot string
	git      GitWriter
	log      *logrus.Logger
}

// New builds a Generator. Without a repository, Generate writes under
// dataRoot/inventory.
func New(dataRoot string, git GitWriter, log *logrus.Logger) *Generator {
	return &Generator{dataRoot: dataRoot, git: git, log: log}
}

// Request is one Generate call's input (spec.md §4.6 "Inputs").
type Request struct {
	TemplateBody    string
	TemplateKind    template.Kind
	Devices         []map[string]any
	Vars            template.Vars
	Repository      *gitrepo.Repository // nil: write to data_root/inventory/
	Filename        string
	AutoCommit      bool
	AutoPush        bool
	CommitMessage   string
}

// Result is what Generate reports back to the onboarding/preview callers.
type Result struct {
	Path         string
	Rendered     string
	UsedFallback bool
	CommitHash   string
}

// Generate renders Request.TemplateBody, path-cleanses Filename, writes
// the artifact, and performs the requested Git actions (spec.md §4.6).
func (g *Generator) Generate(req Request) (Result, error) {
	rendered, usedFallback, err := template.Render(req.TemplateBody, req.Devices, req.Vars)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, "render inventory template", err)
	}
	if usedFallback && g.log != nil {
		g.log.WithField("filename", req.Filename).Warn("inventory template render failed; wrote JSON fallback")
	}

	cleanName := cleanseRelPath(req.Filename)

	var root string
	var repoForCommit gitrepo.Repository
	haveRepo := req.Repository != nil
	if haveRepo {
		repoForCommit = *req.Repository
		path, err := g.git.OpenOrClone(repoForCommit)
		if err != nil {
			return Result{}, err
		}
		root = path
	} else {
		root = filepath.Join(g.dataRoot, "inventory")
	}

	fullPath := filepath.Join(root, cleanName)
	if err := writeAtomicEnough(fullPath, rendered); err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, "write inventory artifact", err)
	}

	result := Result{Path: fullPath, Rendered: rendered, UsedFallback: usedFallback}

	if haveRepo && req.AutoCommit {
		hash, err := g.git.CommitAndPush(repoForCommit, cleanName, req.CommitMessage, req.AutoPush)
		if err != nil {
			// Errors in commit/push are recovered locally; the file
			// remains on disk (spec.md §4.6, §7).
			if g.log != nil {
				g.log.WithError(err).WithField("path", fullPath).Error("inventory commit/push failed")
			}
		} else {
			result.CommitHash = hash
		}
	}

	return result, nil
}

// cleanseRelPath strips a leading "/" and drops "..", "." and empty
// segments (an empty result becomes "inventory.txt"), so a
// destination filename crossing the API boundary can never escape its
// working tree (spec.md §4.6 "Inputs", §9 "Path handling").
func cleanseRelPath(name string) string {
	name = strings.TrimPrefix(name, "/")
	cleaned := filepath.Clean(name)
	parts := strings.Split(cleaned, string(filepath.Separator))
	safe := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == ".." || p == "." || p == "" {
			continue
		}
		safe = append(safe, p)
	}
	if len(safe) == 0 {
		return "inventory.txt"
	}
	return filepath.Join(safe...)
}

// writeAtomicEnough creates parent directories, then writes to a temp file
// in the same directory and renames it over the destination, so no
// partial file is ever visible under the destination name (spec.md §4.6
// "Filesystem contract").
func writeAtomicEnough(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".inventory-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
