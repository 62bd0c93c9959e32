package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/cache"
	"github.com/nerdfunk-net/cockpit/internal/gitrepo"
	"github.com/nerdfunk-net/cockpit/internal/inventory"
	"github.com/nerdfunk-net/cockpit/internal/query"
	"github.com/nerdfunk-net/cockpit/internal/scan"
	"github.com/nerdfunk-net/cockpit/internal/smsclient"
	"github.com/nerdfunk-net/cockpit/internal/vault"
)

// Deps bundles every collaborator the HTTP surface dispatches into. It is
// built once in cmd/cockpitd and handed to NewRouter.
type Deps struct {
	Vault     *vault.Vault
	Repos     *gitrepo.Store
	Git       *gitrepo.Orchestrator
	DataRoot  string
	Scan      *scan.Registry
	ScanDeps  scan.Deps
	SMS       *smsclient.Client
	Query     *query.Engine
	Inventory *inventory.Generator
	Cache     *cache.Cache
	Log       *logrus.Logger
}

// NewRouter builds the full gorilla/mux route table (spec.md §6), grounded
// on rancher-fleet's gitjob webhook handler (mux.NewRouter + one handler
// func per route, JSON in/out).
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.UseEncodedPath()

	api := r.PathPrefix("/api").Subrouter()

	h := &handlers{d: d}

	creds := api.PathPrefix("/credentials").Subrouter()
	creds.HandleFunc("", h.listCredentials).Methods(http.MethodGet)
	creds.HandleFunc("", h.createCredential).Methods(http.MethodPost)
	creds.HandleFunc("/{id}", h.updateCredential).Methods(http.MethodPut)
	creds.HandleFunc("/{id}", h.deleteCredential).Methods(http.MethodDelete)

	repos := api.PathPrefix("/git-repositories").Subrouter()
	repos.HandleFunc("", h.listRepositories).Methods(http.MethodGet)
	repos.HandleFunc("", h.createRepository).Methods(http.MethodPost)
	repos.HandleFunc("/selected", h.getSelectedRepository).Methods(http.MethodGet)
	repos.HandleFunc("/{id}", h.updateRepository).Methods(http.MethodPut)
	repos.HandleFunc("/{id}", h.deleteRepository).Methods(http.MethodDelete)
	repos.HandleFunc("/{id}/select", h.selectRepository).Methods(http.MethodPost)
	repos.HandleFunc("/{id}/test", h.testRepository).Methods(http.MethodPost)
	repos.HandleFunc("/{id}/sync", h.syncRepository).Methods(http.MethodPost)
	repos.HandleFunc("/{id}/status", h.repositoryStatus).Methods(http.MethodGet)
	repos.HandleFunc("/{id}/files", h.searchRepositoryFiles).Methods(http.MethodGet)

	scanAPI := api.PathPrefix("/scan").Subrouter()
	scanAPI.HandleFunc("/start", h.startScan).Methods(http.MethodPost)
	scanAPI.HandleFunc("/jobs", h.listScanJobs).Methods(http.MethodGet)
	scanAPI.HandleFunc("/{job_id}/status", h.scanStatus).Methods(http.MethodGet)
	scanAPI.HandleFunc("/{job_id}/onboard", h.onboardScan).Methods(http.MethodPost)
	scanAPI.HandleFunc("/{job_id}", h.deleteScanJob).Methods(http.MethodDelete)

	inv := api.PathPrefix("/ansible-inventory").Subrouter()
	inv.HandleFunc("/preview", h.previewInventory).Methods(http.MethodPost)
	inv.HandleFunc("/generate", h.generateInventory).Methods(http.MethodPost)
	inv.HandleFunc("/download", h.downloadInventory).Methods(http.MethodPost)

	cacheAPI := api.PathPrefix("/cache").Subrouter()
	cacheAPI.HandleFunc("/stats", h.cacheStats).Methods(http.MethodGet)
	cacheAPI.HandleFunc("/clear", h.cacheClear).Methods(http.MethodPost)

	return r
}

type handlers struct {
	d Deps
}

func (h *handlers) log() *logrus.Logger { return h.d.Log }

// requestTimeout bounds every handler's own downstream calls so a stuck
// collaborator (git remote, SMS, vault) cannot hang a connection forever.
const requestTimeout = 60 * time.Second

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
