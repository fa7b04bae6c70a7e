package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quarrylabs/quarry/internal/binding"
	"github.com/quarrylabs/quarry/internal/cache"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/connector"
	"github.com/quarrylabs/quarry/internal/db"
	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/server"
	"github.com/spf13/cobra"
)

var serverFlags struct {
	apiPort          int
	dbPath           string
	tlsCert          string
	tlsKey           string
	connectorTimeout time.Duration
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the quarry API server.

TLS is enabled when both --tls-cert and --tls-key are provided;
otherwise the server listens on plain HTTP.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	defaults := config.Load()
	serverCmd.Flags().IntVar(&serverFlags.apiPort, "api-port", defaults.APIPort, "API port to listen on")
	serverCmd.Flags().StringVar(&serverFlags.dbPath, "db", defaults.DBPath, "database path")
	serverCmd.Flags().StringVar(&serverFlags.tlsCert, "tls-cert", defaults.TLSCertFile, "path to TLS certificate file")
	serverCmd.Flags().StringVar(&serverFlags.tlsKey, "tls-key", defaults.TLSKeyFile, "path to TLS key file")
	serverCmd.Flags().DurationVar(&serverFlags.connectorTimeout, "connector-timeout", defaults.ConnectorTimeout, "per-request backend execution timeout")
}

func runServer(cmd *cobra.Command, args []string) error {
	database, err := db.Open(serverFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	cacheController := cache.NewController(database)
	bindings := binding.NewStore(database, cacheController, logger)

	sqlConnector := connector.NewSQLConnector()
	defer sqlConnector.Close()

	registry := connector.NewRegistry(
		connector.NewHTTPConnector(),
		connector.NewRealtimeDBConnector(),
		connector.NewDocumentConnector(),
		sqlConnector,
	)
	orchestrator := engine.NewOrchestrator(database, bindings, cacheController, registry, serverFlags.connectorTimeout, logger)

	apiSrv := server.NewAPIServer(database, orchestrator, bindings, cacheController, logger)

	cfg := server.DefaultServerConfig(fmt.Sprintf(":%d", serverFlags.apiPort), apiSrv.Handler(), logger.Named("api"))
	cfg.TLSCertFile = serverFlags.tlsCert
	cfg.TLSKeyFile = serverFlags.tlsKey

	managed, err := server.NewManagedServer(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting api server", logging.Port(serverFlags.apiPort))
	managed.Start()
	if err := managed.WaitForStartup(500 * time.Millisecond); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	managed.Shutdown(ctx)

	return nil
}
