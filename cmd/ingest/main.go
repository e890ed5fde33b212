package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/policyradar/protocols/internal/bootstrap"
	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/domain"
	"github.com/policyradar/protocols/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	sourceTag := flag.String("source", "", "Source tag to ingest (bundestag, eu, or a staging tag)")
	mode := flag.String("mode", string(domain.RunModeDaily), "Run mode: daily or backfill")
	start := flag.String("start", "", "Backfill start date (YYYY-MM-DD); defaults to BACKFILL_START")
	end := flag.String("end", "", "Backfill end date (YYYY-MM-DD); defaults to BACKFILL_END")
	date := flag.String("date", "", "Daily run date (YYYY-MM-DD); defaults to DAILY_DATE or yesterday")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}
	appLogger := bootstrap.NewLogger(cfg.Log, "protocols-ingest")
	defer func() { _ = logger.Sync() }()

	params, err := runParams(cfg, *sourceTag, *mode, *start, *end, *date)
	if err != nil {
		flag.Usage()
		appLogger.WithError(err).Fatal("Invalid run parameters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	index := bootstrap.NewIndex(cfg.OpenSearch)
	created, err := index.EnsureIndex(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure search index")
	}
	if created {
		appLogger.WithField("index", index.Index()).Info("Created search index")
	}

	runs, err := bootstrap.NewRunStore(cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize run ledger")
	}

	archive, err := bootstrap.NewArchive(ctx, cfg.Archive)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize raw archive")
	}

	registry, err := bootstrap.NewRegistry(cfg.Sources, archive)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to register sources")
	}

	ingestService, err := bootstrap.NewIngestService(cfg.Ingest, index, runs, registry)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize ingest service")
	}

	run, err := ingestService.Run(ctx, params)
	if err != nil {
		fields := logger.Fields{"source": params.Source, "mode": string(params.Mode)}
		if run != nil {
			fields[logger.FieldRunID] = run.ID
			fields["indexed"] = run.Indexed
			fields["failed"] = run.Failed
		}
		appLogger.WithFields(fields).WithError(err).Fatal("Ingestion run failed")
	}

	if err := index.Refresh(context.WithoutCancel(ctx)); err != nil {
		appLogger.WithError(err).Warn("Failed to refresh search index")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldRunID:   run.ID,
		"window":            run.Window().String(),
		"fetched":           run.Fetched,
		"indexed":           run.Indexed,
		"skipped_unchanged": run.SkippedUnchanged,
		"failed":            run.Failed,
	}).Info("Ingestion completed")
}

// runParams merges flags over the BACKFILL_* and DAILY_DATE settings.
func runParams(cfg *config.Config, sourceTag, mode, start, end, date string) (domain.RunParams, error) {
	loc, err := cfg.Ingest.Location()
	if err != nil {
		return domain.RunParams{}, err
	}
	params := domain.RunParams{Source: sourceTag, Mode: domain.RunMode(mode)}
	if params.Source == "" {
		return params, errors.New("-source is required")
	}

	switch params.Mode {
	case domain.RunModeBackfill:
		if start == "" {
			start = cfg.Ingest.BackfillStart
		}
		if end == "" {
			end = cfg.Ingest.BackfillEnd
		}
		if start == "" || end == "" {
			return params, errors.New("backfill needs -start and -end (or BACKFILL_START and BACKFILL_END)")
		}
		window, err := domain.ParseWindow(start, end, loc)
		if err != nil {
			return params, err
		}
		params.Start, params.End = &window.Start, &window.End
	case domain.RunModeDaily:
		if date == "" {
			date = cfg.Ingest.DailyDate
		}
		if date != "" {
			day, err := time.ParseInLocation(domain.DateLayout, date, loc)
			if err != nil {
				return params, errors.Newf("invalid -date %q", date)
			}
			params.Date = &day
		}
	default:
		return params, errors.New("-mode must be daily or backfill")
	}
	return params, nil
}
