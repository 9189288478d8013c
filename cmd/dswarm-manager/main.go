package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/dswarm/pkg/httpapi"
	"github.com/cuemby/dswarm/pkg/log"
	"github.com/cuemby/dswarm/pkg/manager"
	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/security"
	"github.com/cuemby/dswarm/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dswarm-manager",
	Short:   "dswarm manager - resource-aware distributed task dispatch",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dswarm-manager version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the manager, accepting worker connections and tasks",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("bind-addr", ":9123", "Address workers connect to")
	serveCmd.Flags().String("http-addr", "127.0.0.1:9090", "Address for the status/health/metrics HTTP surface")
	serveCmd.Flags().String("data-dir", "./dswarm-data", "Data directory for bbolt state and the transaction log")
	serveCmd.Flags().String("password", "", "Shared password for worker authentication; empty disables it")
	serveCmd.Flags().String("policy", "FCFS", "Scheduling policy: FILES, TIME, WORST_FIT, FCFS, RANDOM")
	serveCmd.Flags().Float64("overcommit", 1.0, "Resource overcommit multiplier (cores/memory/gpus only; disk is never overcommitted)")
	serveCmd.Flags().String("project", "", "Catalog project name; empty disables catalog advertisement")
	serveCmd.Flags().StringSlice("catalog-host", nil, "Catalog server host:port (repeatable)")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file; empty disables TLS")
	serveCmd.Flags().String("tls-key", "", "TLS key file")
	serveCmd.Flags().Int64("max-stdout-bytes", manager.DefaultConfig().MaxStdoutBytes, "Cap on stdout bytes retrieved per task; excess is discarded and flagged")
	serveCmd.Flags().Int64("transfer-bytes-per-sec", 0, "Aggregate input/output transfer rate limit in bytes/sec; 0 disables throttling")
}

func runServe(cmd *cobra.Command, args []string) error {
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	password, _ := cmd.Flags().GetString("password")
	policy, _ := cmd.Flags().GetString("policy")
	overcommit, _ := cmd.Flags().GetFloat64("overcommit")
	project, _ := cmd.Flags().GetString("project")
	catalogHosts, _ := cmd.Flags().GetStringSlice("catalog-host")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")
	maxStdoutBytes, _ := cmd.Flags().GetInt64("max-stdout-bytes")
	transferBytesPerSec, _ := cmd.Flags().GetInt64("transfer-bytes-per-sec")

	cfg := manager.DefaultConfig()
	cfg.BindAddr = bindAddr
	cfg.DataDir = dataDir
	cfg.Password = password
	cfg.Policy = types.SchedulingPolicy(policy)
	cfg.Overcommit = resources.Overcommit{Multiplier: overcommit}
	cfg.Project = project
	cfg.CatalogHosts = catalogHosts
	cfg.MaxStdoutBytes = maxStdoutBytes
	cfg.TransferBytesPerSec = transferBytesPerSec
	if tlsCert != "" {
		cfg.TLS = security.TLSConfig{CertFile: tlsCert, KeyFile: tlsKey, Enabled: true}
	}

	mgr, err := manager.New(cfg)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpapi.New(mgr)
	go func() {
		if err := srv.Start(httpAddr); err != nil {
			log.Logger.Warn().Err(err).Msg("http status server stopped")
		}
	}()
	log.Logger.Info().Str("addr", httpAddr).Msg("status/health/metrics endpoint listening")

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("manager run: %w", err)
		}
	case <-ctx.Done():
		log.Logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-runErr
	}
	return nil
}
