// allowancev2 - Allowance templates with criteria-based eligibility.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Izone425/allowancev2/internal/api"
	"github.com/Izone425/allowancev2/internal/bus"
	"github.com/Izone425/allowancev2/internal/cache"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
	"github.com/Izone425/allowancev2/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("ALLOWANCE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting allowancev2",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("ALLOWANCE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the audit worker. Every tenant the deployment serves needs a
	// subscription; the list comes from the environment.
	tenantIDs := tenantList(os.Getenv("ALLOWANCE_TENANTS"))
	auditWorker := worker.NewWorker(busImpl, repo)
	if err := auditWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}
	slog.Info("audit worker started", "tenant_count", len(tenantIDs))

	// Initialize Server
	srv, err := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, cfg.Preview.Debounce, Version)
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("allowancev2 is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the audit worker first so in-flight events drain
	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("allowancev2 shutdown complete")
}

// DefaultTenantID is used when no tenant list is configured.
const DefaultTenantID = "default"

// tenantList parses a comma-separated tenant list from the environment.
func tenantList(env string) []string {
	if env == "" {
		return []string{DefaultTenantID}
	}
	var out []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{DefaultTenantID}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Printf("  allowancev2 %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET    /allowance-templates                       - List templates")
	fmt.Println("    POST   /allowance-templates                       - Create a template")
	fmt.Println("    GET    /allowance-templates/check-code            - Check code availability")
	fmt.Println("    GET    /allowance-templates/{id}                  - Get a template")
	fmt.Println("    PUT    /allowance-templates/{id}                  - Update a template")
	fmt.Println("    DELETE /allowance-templates/{id}                  - Delete a template")
	fmt.Println("    POST   /allowance-templates/{id}/archive          - Archive")
	fmt.Println("    POST   /allowance-templates/{id}/unarchive        - Restore")
	fmt.Println("    POST   /allowance-templates/{id}/duplicate        - Duplicate")
	fmt.Println("    POST   /allowance-templates/{id}/criteria/preview - Preview eligibility")
	fmt.Println("    GET    /allowance-templates/{id}/assignments      - List assignments")
	fmt.Println("    POST   /allowance-templates/{id}/assignments      - Bulk assign")
	fmt.Println("    GET    /allowance-templates/{id}/audit            - Audit trail")
	fmt.Println("    POST   /criteria/preview                          - Ad-hoc preview")
	fmt.Println("    GET    /lookups                                   - Lookup data")
	fmt.Println("    GET    /users                                     - Employee population")
	fmt.Println("    PUT    /users/sync                                - Sync employees")
	fmt.Println("    GET    /health                                    - Health check")
	fmt.Println()
}
