package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerdfunk-net/cockpit/internal/cache"
	"github.com/nerdfunk-net/cockpit/internal/config"
	"github.com/nerdfunk-net/cockpit/internal/gitrepo"
	"github.com/nerdfunk-net/cockpit/internal/httpapi"
	"github.com/nerdfunk-net/cockpit/internal/inventory"
	"github.com/nerdfunk-net/cockpit/internal/logging"
	"github.com/nerdfunk-net/cockpit/internal/query"
	"github.com/nerdfunk-net/cockpit/internal/scan"
	"github.com/nerdfunk-net/cockpit/internal/smsclient"
	"github.com/nerdfunk-net/cockpit/internal/templatestore"
	"github.com/nerdfunk-net/cockpit/internal/vault"
)

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "cockpitd",
		Short:         "Network-operator dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file (optional; env vars are read regardless)")
	return cmd
}

// run wires every component and serves until an interrupt or terminate
// signal arrives (spec.md §9: "a single process exposing an HTTP surface").
func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	settingsDir := filepath.Join(cfg.DataRoot, "settings")
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", settingsDir, err)
	}

	credVault, err := vault.Open(filepath.Join(settingsDir, "credentials.db"), cfg.ProcessSecret)
	if err != nil {
		return fmt.Errorf("opening credential vault: %w", err)
	}
	defer credVault.Close()

	repoStore, err := gitrepo.OpenStore(filepath.Join(settingsDir, "repositories.db"))
	if err != nil {
		return fmt.Errorf("opening git repository store: %w", err)
	}
	defer repoStore.Close()

	templates, err := templatestore.Open(filepath.Join(settingsDir, "templates.db"))
	if err != nil {
		return fmt.Errorf("opening template store: %w", err)
	}
	defer templates.Close()

	orchestrator := gitrepo.New(cfg.DataRoot, credVault, log)
	orchestrator.CloneTimeout = cfg.GitCloneTimeout
	orchestrator.PullTimeout = cfg.GitPullTimeout
	orchestrator.RemoteTimeout = cfg.GitRemoteTimeout

	scanRegistry := scan.NewRegistry(cfg.ScanJobTTL)
	scanDeps := scan.Deps{
		Creds:       credVault,
		Templates:   templates,
		Concurrency: cfg.ScanMaxConcurrency,
		PingTimeout: cfg.PingTimeout,
		PingRetries: cfg.PingRetries,
		AuthTimeout: cfg.AuthTimeout,
		Log:         log,
	}

	smsClient := smsclient.New(cfg.SMSBaseURL, cfg.SMSToken, cfg.SMSTimeout, log)
	queryEngine := query.New(smsClient)
	inventoryGen := inventory.New(cfg.DataRoot, orchestrator, log)

	memCache := cache.New(cfg.CacheDefaultTTL)
	refresher := cache.NewRefresher(memCache, cfg.CacheDefaultTTL)
	go refresher.Start()
	defer refresher.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Vault:     credVault,
		Repos:     repoStore,
		Git:       orchestrator,
		DataRoot:  cfg.DataRoot,
		Scan:      scanRegistry,
		ScanDeps:  scanDeps,
		SMS:       smsClient,
		Query:     queryEngine,
		Inventory: inventoryGen,
		Cache:     memCache,
		Log:       log,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("cockpitd listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	return nil
}
