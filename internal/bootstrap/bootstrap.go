// Package bootstrap builds the application components from configuration.
// Both binaries share it so ingest and API talk to the same index the same way.
package bootstrap

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/logger"
	"github.com/policyradar/protocols/internal/repository"
	"github.com/policyradar/protocols/internal/service"
	"github.com/policyradar/protocols/internal/source"
	"github.com/policyradar/protocols/internal/source/bundestag"
	"github.com/policyradar/protocols/internal/source/europarl"
	"github.com/policyradar/protocols/internal/source/staging"
	"github.com/policyradar/protocols/internal/storage"
)

// NewLogger creates the process logger and installs it as the default.
func NewLogger(cfg config.LogConfig, serviceName string) *logger.Logger {
	lc := logger.DefaultConfig()
	lc.ServiceName = serviceName
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	if cfg.Format != "" {
		lc.Format = cfg.Format
	}
	lc.File = cfg.File
	lc.MaxSizeMB = cfg.MaxSizeMB
	lc.MaxBackups = cfg.MaxBackups
	lc.MaxAgeDays = cfg.MaxAgeDays
	lc.Compress = cfg.Compress

	l := logger.New(lc)
	logger.SetDefaultLogger(l)
	return l
}

// NewIndex creates the search index client.
func NewIndex(cfg config.OpenSearchConfig) *repository.OpenSearchRepository {
	return repository.NewOpenSearchRepository(repository.OpenSearchConfig{
		URL:        cfg.URL(),
		User:       cfg.User,
		Password:   cfg.Password,
		Index:      cfg.Index,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryWait:  cfg.RetryWait,
	})
}

// NewRunStore opens the run ledger. It returns nil when the ledger is disabled.
func NewRunStore(cfg config.DatabaseConfig) (*repository.RunRepository, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	db, err := repository.InitDB(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open run ledger")
	}
	return repository.NewRunRepository(db), nil
}

// NewArchive connects the raw archive and makes sure its bucket exists.
// It returns nil when archiving is disabled.
func NewArchive(ctx context.Context, cfg config.ArchiveConfig) (*storage.S3Storage, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	archive, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create raw archive")
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure raw archive bucket")
	}
	return archive, nil
}

// NewRegistry registers every enabled source adapter. archive may be nil.
func NewRegistry(cfg config.SourcesConfig, archive *storage.S3Storage) (*source.Registry, error) {
	registry := source.NewRegistry()

	if cfg.Bundestag.Enabled {
		registry.Register(bundestag.NewAdapter(bundestag.Config{
			BaseURL:      cfg.Bundestag.BaseURL,
			APIKey:       cfg.Bundestag.APIKey,
			Timeout:      cfg.Bundestag.Timeout,
			RetryCount:   cfg.Bundestag.RetryCount,
			RetryWait:    cfg.Bundestag.RetryWait,
			RetryMaxWait: cfg.Bundestag.RetryMaxWait,
		}))
	}

	if cfg.Europarl.Enabled {
		var archiver europarl.Archiver
		if archive != nil {
			archiver = archive
		}
		prober := europarl.NewDoceoProber(europarl.DoceoConfig{
			BaseURL:    cfg.Europarl.BaseURL,
			Timeout:    cfg.Europarl.Timeout,
			RetryCount: cfg.Europarl.RetryCount,
			RetryWait:  cfg.Europarl.RetryWait,
		}, archiver)
		registry.Register(europarl.NewCrawler(europarl.CrawlerConfig{
			Term:                   cfg.Europarl.Term,
			DocumentTypes:          cfg.Europarl.DocumentTypes,
			Languages:              cfg.Europarl.Languages,
			StartIndex:             cfg.Europarl.StartIndex,
			MaxPerSequence:         cfg.Europarl.MaxPerSequence,
			MaxConsecutiveFailures: cfg.Europarl.MaxConsecutiveFailures,
			BatchSize:              cfg.Europarl.BatchSize,
			RequestDelay:           cfg.Europarl.RequestDelay,
			RequestJitter:          cfg.Europarl.RequestJitter,
		}, prober))
	}

	if cfg.Staging.Enabled {
		tags, err := staging.ListStagingSources(cfg.Staging.Path)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if _, err := registry.Get(tag); err == nil {
				return nil, errors.Newf("staging source %q shadows a live source", tag)
			}
			registry.Register(staging.NewAdapter(cfg.Staging.Path, tag))
		}
	}

	return registry, nil
}

// NewIngestService wires the ingestion pipeline. runs may be nil.
func NewIngestService(cfg config.IngestConfig, index *repository.OpenSearchRepository, runs *repository.RunRepository, registry *source.Registry) (*service.IngestService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var ledger service.RunStore
	if runs != nil {
		ledger = runs
	}

	return service.NewIngestService(
		registry,
		service.NewNormalizer(nil),
		service.NewResolver(index),
		service.NewIndexer(index, service.IndexerConfig{
			MaxAttempts:     cfg.IndexMaxAttempts,
			InitialInterval: cfg.IndexBackoff,
		}),
		ledger,
		service.IngestConfig{Workers: cfg.Workers, Location: loc},
	), nil
}
