package main

import (
	"context"
	"flag"
	"time"

	"github.com/policyradar/protocols/internal/bootstrap"
	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	recreate := flag.Bool("recreate", false, "Drop and recreate the index (deletes every document)")
	ping := flag.Bool("ping", false, "Only check that the search engine answers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}
	appLogger := bootstrap.NewLogger(cfg.Log, "protocols-index")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	index := bootstrap.NewIndex(cfg.OpenSearch)
	log := appLogger.WithFields(logger.Fields{"index": index.Index(), "url": cfg.OpenSearch.URL()})

	if err := index.Ping(ctx); err != nil {
		log.WithError(err).Fatal("Search engine unreachable")
	}
	if *ping {
		log.Info("Search engine reachable")
		return
	}

	if *recreate {
		if err := index.RecreateIndex(ctx); err != nil {
			log.WithError(err).Fatal("Failed to recreate index")
		}
		log.Warn("Index recreated; all documents were removed")
		return
	}

	created, err := index.EnsureIndex(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to ensure index")
	}
	log.WithField("created", created).Info("Index ready")
}
