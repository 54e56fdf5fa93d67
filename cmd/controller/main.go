// Package main is the controller process: the multi-tenant HTTP API and
// background machinery (quota, machine pool, event polling, retention)
// driving pkg/orchestrator's agent state machine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/api"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/blobstore"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/cleanup"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/config"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/database"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/eventpoller"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/events"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machinepool"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/machineprovider"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/orchestrator"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/quota"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/repo/pg"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/snapshot"
	"github.com/ariana-dot-dev/ariana-sub004/pkg/workerapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("controller: fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string
	var listenAddr string

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Controller process for the agent orchestration platform",
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", envOr("CONFIG_DIR", "."), "directory containing agentctl.yaml and .env")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the controller's HTTP API and background services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configDir, listenAddr)
		},
	}
	serve.Flags().StringVar(&listenAddr, "listen", "", "override the configured listen address")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configDir)
		},
	}

	root.AddCommand(serve, migrate)
	return root
}

func runMigrate(ctx context.Context, configDir string) error {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	slog.Info("controller: migrations applied")
	return nil
}

func runServe(ctx context.Context, configDir, listenOverride string) error {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenOverride != "" {
		cfg.ListenAddr = listenOverride
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	agents := pg.NewAgentRepository(dbClient.Pool)
	prompts := pg.NewPromptRepository(dbClient.Pool)
	messages := pg.NewMessageRepository(dbClient.Pool)
	commits := pg.NewCommitRepository(dbClient.Pool)
	machines := pg.NewMachineRepository(dbClient.Pool)
	snapshots := pg.NewSnapshotRepository(dbClient.Pool)
	environments := pg.NewEnvironmentRepository(dbClient.Pool)
	automations := pg.NewAutomationRepository(dbClient.Pool)
	usage := pg.NewUsageRepository(dbClient.Pool)
	usageIP := pg.NewUsageIPRepository(dbClient.Pool)

	quotaGuard := quota.NewGuard(cfg.Quota, usage, usageIP)

	var provider machineprovider.Provider
	if cfg.Machine.Provider == "http" {
		provider = machineprovider.NewHTTPProvider(cfg.Machine.BaseURL)
	} else {
		provider = machineprovider.NewFake()
	}
	pool := machinepool.New(cfg.MachinePool, provider, machines)

	secret := os.Getenv(cfg.BlobStore.SecretEnv)
	blobs := blobstore.NewFileStore(cfg.BlobStore.BaseDir, cfg.BlobStore.BaseURL, []byte(secret))

	snapshotSvc := snapshot.NewService(snapshots, blobs, provider)
	publisher := events.NewEventPublisher(dbClient.Pool)

	poller := eventpoller.New(cfg.EventPoller, agents, messages, commits, publisher, &multiAgentWorkerClient{machines: machines})
	cleanupSvc := cleanup.NewService(cfg.Retention, agents, snapshots, blobs)

	orch := orchestrator.New(orchestrator.Deps{
		Agents:       agents,
		Prompts:      prompts,
		Messages:     messages,
		Commits:      commits,
		Machines:     machines,
		Snapshots:    snapshots,
		Environments: environments,
		Automations:  automations,
		Quota:        quotaGuard,
		Pool:         pool,
		Snapshot:     snapshotSvc,
		Publisher:    publisher,
	}, orchestrator.DefaultConfig())

	server := api.NewServer(dbClient, orch)
	server.SetEventPublisher(publisher)
	if err := server.ValidateWiring(); err != nil {
		return fmt.Errorf("api server wiring: %w", err)
	}

	serveCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool.Start(serveCtx)
	cleanupSvc.Start(serveCtx)
	poller.Start(serveCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("controller: listening", "addr", cfg.ListenAddr)
	select {
	case <-serveCtx.Done():
		slog.Info("controller: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		pool.Stop()
		cleanupSvc.Stop()
		poller.Stop()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// multiAgentWorkerClient implements eventpoller.WorkerClient by resolving
// each agent's current machine address and deriving its sealing key
// per-call, since one controller polls many agents across many workers
// where pkg/workerapi.Client addresses a single worker.
type multiAgentWorkerClient struct {
	machines repo.MachineRepository
}

func (m *multiAgentWorkerClient) FetchSnapshot(ctx context.Context, agent *models.Agent) (*eventpoller.WorkerSnapshot, error) {
	if agent.MachineID == nil {
		return &eventpoller.WorkerSnapshot{IsReady: false, IsRunning: false}, nil
	}
	machine, err := m.machines.FindByID(ctx, *agent.MachineID)
	if err != nil {
		errMsg := err.Error()
		return &eventpoller.WorkerSnapshot{IsReady: false, IsRunning: false, ErrorMessage: &errMsg}, nil
	}
	key, err := workerapi.DeriveKey(agent.WorkerSecret)
	if err != nil {
		errMsg := err.Error()
		return &eventpoller.WorkerSnapshot{IsReady: false, IsRunning: false, ErrorMessage: &errMsg}, nil
	}
	baseURL := fmt.Sprintf("http://%s:7070", machine.IPv4)
	if machine.URL != nil && *machine.URL != "" {
		baseURL = *machine.URL
	}
	client := workerapi.NewClient(baseURL, key)
	return client.FetchSnapshot(ctx, agent)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
