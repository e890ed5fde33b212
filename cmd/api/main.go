package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/policyradar/protocols/internal/api"
	"github.com/policyradar/protocols/internal/bootstrap"
	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/service"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}
	appLogger := bootstrap.NewLogger(cfg.Log, "protocols-api")
	defer func() { _ = logger.Sync() }()

	index := bootstrap.NewIndex(cfg.OpenSearch)

	runs, err := bootstrap.NewRunStore(cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize run ledger")
	}

	deps := api.Deps{
		Search: service.NewSearchService(index),
		Index:  index,
	}
	if runs != nil {
		deps.Runs = runs
	}
	router := api.SetupRouter(deps, cfg.Server)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":  cfg.Server.Port,
			"mode":  cfg.Server.Mode,
			"index": index.Index(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
