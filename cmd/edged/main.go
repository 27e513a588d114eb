package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pos-edge/config"
	"pos-edge/internal/api"
	"pos-edge/internal/cloud"
	"pos-edge/internal/edgesync"
	"pos-edge/internal/printer"
	"pos-edge/internal/printq"
	"pos-edge/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/edged.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", configPath).Msg("failed to load configuration")
	}
	cfg.Log.ConfigureZerolog()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().Str("config_path", configPath).Str("data_dir", cfg.Storage.DataDir).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewFileStore(cfg.Storage.ConfigFile(), cfg.Storage.OutboxFile())
	client := cloud.NewClient(cfg.Cloud.Timeout)
	sender := printer.NewTCPSender()
	pusher := edgesync.NewPusher(appStore, client, cfg.Cloud.BaseURL, cfg.Sync.BatchSize)

	deps := api.Deps{
		Config:  cfg,
		Store:   appStore,
		Cloud:   client,
		Sender:  sender,
		Scanner: printer.NewScanner(),
		Pusher:  pusher,
	}

	if cfg.PrintQueue.Enabled {
		jobs, err := printq.Open(cfg.Storage.JobsDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open print job queue")
		}
		defer jobs.Close()

		pool := printq.NewWorkerPool(jobs, appStore, sender, printq.Options{
			Workers:      cfg.PrintQueue.Workers,
			PollInterval: time.Duration(cfg.PrintQueue.PollIntervalSeconds) * time.Second,
			SendTimeout:  cfg.Printer.SendTimeout,
			Retention:    time.Duration(cfg.PrintQueue.RetentionHours) * time.Hour,
		})
		pool.Start(ctx)
		deps.Jobs, deps.Pool = jobs, pool
		log.Info().Int("workers", cfg.PrintQueue.Workers).Msg("print queue started")
	}

	go pusher.Run(ctx, time.Duration(cfg.Sync.PushIntervalSeconds)*time.Second)

	router := api.NewRouter(deps)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("edge gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server Shutdown")
	}
	log.Info().Msg("edge gateway stopped")
}
