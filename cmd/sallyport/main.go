package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aixtiv/sallyport/internal/common/config"
	"github.com/aixtiv/sallyport/internal/identity"
	"github.com/aixtiv/sallyport/internal/mcp"
	"github.com/aixtiv/sallyport/internal/oauth"
	"github.com/aixtiv/sallyport/internal/server"
	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/internal/tenant"
	"github.com/aixtiv/sallyport/pkg/logger"
	"github.com/aixtiv/sallyport/pkg/metrics"
	"github.com/aixtiv/sallyport/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "sallyport",
		Short: "Multi-tenant OAuth2 gateway with MCP provisioning",
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Get())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "sallyport.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	cfg, cfgPath, err := config.LoadConfig[config.GatewayConfig](configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	cfg.SetDefaults()

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting sallyport",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	gin.SetMode(gin.ReleaseMode)

	m := metrics.New(cfg.Metrics)

	store, err := storage.NewStore(log, &cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		_ = store.Close()
	}()

	deployer, err := mcp.NewDeployer(log, &cfg.Deployer)
	if err != nil {
		log.Fatal("failed to initialize deployer", zap.Error(err))
	}

	orchestrator := mcp.NewOrchestrator(store, deployer, m, log, cfg.Server.PlatformDomain)
	users := identity.NewProvisioner(store, orchestrator, m, log, cfg.Server.PlatformDomain)
	tenants := tenant.NewRegistry(store, users, log)
	engine := oauth.NewEngine(store, m, log)

	srv := server.NewServer(cfg, log, m, tenants, users, engine, orchestrator)
	sweeper := mcp.NewSweeper(store, m, log, cfg.Deployer.SweepInterval, cfg.Deployer.StaleTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
	}
}
