package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/domain"
)

func TestRunParams(t *testing.T) {
	cfg := &config.Config{Ingest: config.IngestConfig{
		DailyTimezone: "UTC",
		BackfillStart: "2024-01-01",
		BackfillEnd:   "2024-01-31",
	}}

	p, err := runParams(cfg, "bundestag", "backfill", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", p.Start.Format(domain.DateLayout))
	assert.Equal(t, "2024-01-31", p.End.Format(domain.DateLayout))

	p, err = runParams(cfg, "bundestag", "backfill", "2024-03-01", "2024-03-02", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", p.Start.Format(domain.DateLayout))

	p, err = runParams(cfg, "eu", "daily", "", "", "")
	require.NoError(t, err)
	assert.Nil(t, p.Date)

	p, err = runParams(cfg, "eu", "daily", "", "", "2024-02-29")
	require.NoError(t, err)
	require.NotNil(t, p.Date)
	assert.Equal(t, "2024-02-29", p.Date.Format(domain.DateLayout))

	cfg.Ingest.DailyDate = "2024-02-28"
	p, err = runParams(cfg, "eu", "daily", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-28", p.Date.Format(domain.DateLayout))
}

func TestRunParams_Errors(t *testing.T) {
	cfg := &config.Config{}

	_, err := runParams(cfg, "", "daily", "", "", "")
	assert.Error(t, err)

	_, err = runParams(cfg, "bundestag", "backfill", "2024-01-01", "", "")
	assert.Error(t, err)

	_, err = runParams(cfg, "bundestag", "backfill", "2024-02-01", "2024-01-01", "")
	assert.Error(t, err)

	_, err = runParams(cfg, "bundestag", "weekly", "", "", "")
	assert.Error(t, err)

	_, err = runParams(cfg, "bundestag", "daily", "", "", "31.12.2024")
	assert.Error(t, err)
}
