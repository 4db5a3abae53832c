package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/codelaboratoryltd/hotroute/internal/api"
	"github.com/codelaboratoryltd/hotroute/internal/audit"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
	"github.com/codelaboratoryltd/hotroute/internal/routing"
	"github.com/codelaboratoryltd/hotroute/internal/topology"
)

var (
	// Build info (set at compile time)
	BuildVersion = "dev"
	BuildCommit  = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var cfg Config

	root := &cobra.Command{
		Use:   "hotroute",
		Short: "hotroute - hash-aware connection routing for cache clusters",
		Long: `hotroute routes cache requests to the cluster member that owns a key:
  - Consistent hash directory pushed by the cluster
  - Bounded connection pool per server
  - Topology updates without interrupting in-flight requests`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if v := os.Getenv("HOTROUTE_LOG_LEVEL"); v != "" && !cmd.Flags().Changed("log-level") {
				cfg.LogLevel = v
			}
			return logging.SetLogLevel("*", cfg.LogLevel)
		},
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the router with its admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Allow environment variables to override flags
			cfg.applyEnv()
			return runServer(cfg)
		},
	}

	serve.Flags().StringVar(&cfg.ConfigFile, "config", "", "YAML config file")
	serve.Flags().StringVar(&cfg.Servers, "servers", "", "Initial servers, host[:port] separated by ';'")
	serve.Flags().IntVar(&cfg.HTTPPort, "http-port", 9000, "Admin API port")
	serve.Flags().IntVar(&cfg.MetricsPort, "metrics-port", 9002, "Prometheus metrics port")
	serve.Flags().StringVar(&cfg.TopologyFile, "topology-file", "", "Topology document applied whenever it changes")
	serve.Flags().DurationVar(&cfg.TopologyPoll, "topology-poll", topology.DefaultPollInterval, "How often to check the topology file")
	serve.Flags().StringVar(&cfg.APIKey, "api-key", "", "Key required to change the topology over the API")
	serve.Flags().IntVar(&cfg.RateLimit, "rate-limit", 600, "Maximum API requests per minute per client (0 to disable)")
	serve.Flags().StringVar(&cfg.AuditLog, "audit-log", "", "Audit log file for admin API changes (\"-\" for stdout)")
	serve.Flags().BoolVar(&cfg.AuditText, "audit-text", false, "Write the audit log as text instead of JSON")
	serve.Flags().IntVar(&cfg.MaxActive, "max-active", 0, "Maximum connections per server (overrides config file)")
	serve.Flags().DurationVar(&cfg.MaxWait, "max-wait", 0, "How long to wait on an exhausted pool (overrides config file)")
	serve.Flags().StringVar(&cfg.Fallback, "fallback", "", "Fallback policy: all-owners, primary-only")

	root.AddCommand(serve, ownersCommand(), versionCommand())
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hotroute %s (%s)\n", BuildVersion, BuildCommit)
		},
	}
}

// ownersCommand resolves keys against a topology document without
// connecting to any server.
func ownersCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "owners KEY...",
		Short: "Print the owners of keys for a topology document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := topology.Load(path)
			if err != nil {
				return err
			}
			if !doc.HasHashInfo() {
				return fmt.Errorf("topology %s has no ring", path)
			}
			hashes, err := doc.ServerHashes()
			if err != nil {
				return err
			}
			dir, err := hashring.Build(hashes, doc.NumOwners, hashring.HashVersion(doc.HashVersion), doc.HashSpace)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, key := range args {
				fmt.Fprintf(out, "%s\t%d\t%v\n", key, dir.PositionOf([]byte(key)), dir.OwnersOf([]byte(key)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "topology", "topology.yaml", "Topology document (YAML or JSON)")
	return cmd
}

func runServer(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc, servers, err := cfg.routingConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Starting hotroute %s (%s)\n", BuildVersion, BuildCommit)
	fmt.Printf("  Servers:  %v\n", servers)
	fmt.Printf("  Pool:     max %d, wait %s\n", rc.Pool.MaxActive, rc.Pool.MaxWait)
	fmt.Printf("  Fallback: %s\n", rc.Fallback)
	fmt.Printf("  HTTP:     http://localhost:%d\n", cfg.HTTPPort)
	fmt.Printf("  Metrics:  http://localhost:%d/metrics\n", cfg.MetricsPort)

	auditLogger, auditFile, err := cfg.auditLogger()
	if err != nil {
		return err
	}
	if auditFile != nil {
		defer auditFile.Close()
	}

	factory := routing.New(routing.WithRegisterer(prometheus.DefaultRegisterer))
	if err := factory.Start(rc, servers); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}
	defer factory.Destroy()

	hub := topology.NewHub(0)
	if cfg.TopologyFile != "" {
		fmt.Printf("  Topology: %s (poll: %s)\n", cfg.TopologyFile, cfg.TopologyPoll)
		watcher := topology.NewFileWatcher(cfg.TopologyFile, cfg.TopologyPoll, topology.NewNotifier(factory, hub))
		go watcher.Run(ctx)
	}

	apiServer := api.NewServer(factory)
	apiServer.SetHub(hub)

	router := mux.NewRouter()
	if auditLogger != nil {
		auditLogger.Start()
		defer auditLogger.Stop()
		router.Use(audit.Middleware(auditLogger))
		fmt.Printf("  Audit:    %s\n", cfg.AuditLog)
	}
	if cfg.RateLimit > 0 {
		limiter := api.NewRateLimiter(cfg.RateLimit, time.Minute)
		defer limiter.Stop()
		router.Use(limiter.Middleware())
		fmt.Printf("  Rate limit: %d req/min\n", cfg.RateLimit)
	}
	router.Use(api.RequireAPIKey(cfg.APIKey))
	apiServer.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsRouter,
	}

	errCh := make(chan error, 2)

	go func() {
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	fmt.Println("hotroute ready!")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
	case err := <-errCh:
		fmt.Printf("Server error: %v\n", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	httpServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	fmt.Println("hotroute stopped")
	return nil
}
