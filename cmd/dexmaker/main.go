package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregtusar/dexmaker/api"
	"github.com/gregtusar/dexmaker/internal/config"
	"github.com/gregtusar/dexmaker/pkg/horizon"
	"github.com/gregtusar/dexmaker/pkg/maker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	logger  *logrus.Logger
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dexmaker",
		Short: "Stellar DEX market maker",
		Long:  `Keeps one sell and one buy offer resting around the best bid and ask of a Stellar DEX order book`,
		Run:   runMaker,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runMaker(cmd *cobra.Command, args []string) {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)

	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load .env")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	signer, err := horizon.NewSigner(cfg.Stellar.Seed)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load signing key")
	}
	opts, err := cfg.HorizonOptions()
	if err != nil {
		logger.WithError(err).Fatal("Invalid Stellar settings")
	}
	ledger := horizon.NewClient(opts, signer, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := maker.NewMetrics(registry)

	marketMaker := maker.NewMarketMaker(ledger, signer.Address(), cfg.MakerConfig(), metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var apiServer *api.Server
	if cfg.Server.Enabled {
		hub := api.NewHub(logger)
		marketMaker.AddObserver(hub)

		var auth *api.Authenticator
		if cfg.Server.AuthSecret != "" {
			auth = api.NewAuthenticator(cfg.Server.AuthSecret)
		}

		apiServer = api.NewServer(marketMaker, hub, registry, auth, logger, fmt.Sprintf(":%d", cfg.Server.Port))
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.WithError(err).Fatal("Failed to start API server")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	runErr := marketMaker.Run(ctx)

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown")
		}
		shutdownCancel()
	}

	if runErr != nil {
		logger.WithError(runErr).Fatal("Market maker failed")
	}
	logger.Info("Shutdown complete")
}
