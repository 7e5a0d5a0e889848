package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/serval-mesh/agent/internal/config"
	"github.com/serval-mesh/agent/pkg/api"
	"github.com/serval-mesh/agent/pkg/blob"
	"github.com/serval-mesh/agent/pkg/client"
	"github.com/serval-mesh/agent/pkg/engine"
	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/mesh"
	"github.com/serval-mesh/agent/pkg/metrics"
	"github.com/serval-mesh/agent/pkg/runner"
	"github.com/serval-mesh/agent/pkg/scheduler"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/storage"
	"github.com/serval-mesh/agent/pkg/types"
)

// Version information, set via ldflags during build.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "agentd",
	Short:   "serval-mesh agent: a peer-to-peer fleet node for sandboxed Wasm jobs",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("agentd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().StringSlice("join", nil, "Existing mesh member addresses (host:port) to join")
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this node as a mesh agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		join, _ := cmd.Flags().GetStringSlice("join")
		return runAgent(join)
	},
}

func runAgent(join []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("mesh", false, "initializing")
	metrics.RegisterComponent("storage", false, "initializing")
	metrics.RegisterComponent("scheduler", false, "initializing")

	storageRole := cfg.ResolveStorageRole()
	roles := append([]types.Role{}, config.BaseRoles...)
	if storageRole {
		roles = append(roles, types.RoleStorage)
	}

	instanceID := uuid.NewString()
	httpPort := uint16(cfg.Port)

	bindAddr := cfg.MeshInterface
	if resolved, err := mesh.ResolveBindAddr(cfg.MeshInterface); err == nil {
		bindAddr = resolved
	}

	m, err := mesh.New(mesh.Config{
		Identity: types.PeerIdentity{InstanceID: instanceID, HTTPPort: &httpPort, Roles: roles},
		BindAddr: bindAddr,
		BindPort: cfg.MeshPort,
	})
	if err != nil {
		return fmt.Errorf("start mesh: %w", err)
	}
	if err := m.Join(join); err != nil {
		return fmt.Errorf("join mesh: %w", err)
	}
	metrics.RegisterComponent("mesh", true, fmt.Sprintf("joined as %s", instanceID))
	log.WithComponent("agentd").Info().Str("instance_id", instanceID).Strs("roles", roleStrings(roles)).Msg("mesh joined")

	st, err := buildStorage(cfg, storageRole, m)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	metrics.RegisterComponent("storage", true, string(cfg.StorageRoleMode))

	sched := scheduler.New()
	sched.Start()
	metrics.RegisterComponent("scheduler", true, "ticking")

	eng, err := engine.New(cfg.ExtensionsPath)
	if err != nil {
		return fmt.Errorf("start wasm engine: %w", err)
	}
	rn := runner.New(st, eng)

	collector := metrics.NewCollector(sched, m)
	collector.Start()

	server := api.NewServer(m, st, sched, rn, roles)
	httpAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("agentd").Info().Str("addr", httpAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.WithComponent("agentd").Info().Msg("shutting down")
	case err := <-errCh:
		log.WithComponent("agentd").Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	collector.Stop()
	sched.Stop()
	return m.Leave()
}

// buildStorage assembles the local/bucket tiers this node carries, plus a
// proxy dialer to the first known Storage peer for when it carries none.
func buildStorage(cfg config.Config, storageRole bool, m *mesh.Mesh) (*storage.Storage, error) {
	if !storageRole {
		cfg.BlobStore, cfg.StorageBucket = "", ""
	}

	var local *blob.Store
	if cfg.BlobStore != "" {
		var err error
		local, err = blob.New(cfg.BlobStore)
		if err != nil {
			return nil, err
		}
	}

	var bucket storage.Backend
	if cfg.StorageBucket != "" {
		s3, err := storage.NewS3Backend(context.Background(), cfg.StorageBucket)
		if err != nil {
			return nil, err
		}
		bucket = s3
	}

	dialer := func() (storage.ProxyClient, error) {
		peers := m.PeersWithRole(types.RoleStorage)
		if len(peers) == 0 {
			return nil, servalerr.New(servalerr.KindServiceUnavailable, "no peer advertises the storage role")
		}
		return client.NewClient(peers[0].HTTPAddress()), nil
	}

	return storage.New(local, bucket, dialer), nil
}

func roleStrings(roles []types.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
