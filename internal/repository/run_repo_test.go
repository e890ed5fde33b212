package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyradar/protocols/internal/config"
	"github.com/policyradar/protocols/internal/domain"
)

func newRunRepo(t *testing.T) *RunRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	return NewRunRepository(db)
}

func TestRunRepository_CreateSaveGet(t *testing.T) {
	repo := newRunRepo(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 3, 6, 0, 0, 0, time.UTC)
	run := &domain.IngestionRun{
		ID:          "run-1",
		Mode:        domain.RunModeDaily,
		Source:      "bundestag",
		WindowStart: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Status:      domain.RunStatusRunning,
		StartedAt:   started,
	}
	require.NoError(t, repo.Create(ctx, run))

	completed := started.Add(time.Minute)
	run.Status = domain.RunStatusCompleted
	run.Fetched = 10
	run.Indexed = 9
	run.Failed = 1
	run.Failures = domain.FailureList{{Identity: "x", Stage: domain.StageNormalize, Reason: "missing title"}}
	run.CompletedAt = &completed
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, int64(9), got.Indexed)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "missing title", got.Failures[0].Reason)
	require.NotNil(t, got.CompletedAt)
}

func TestRunRepository_GetByIDMissing(t *testing.T) {
	_, err := newRunRepo(t).GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRunRepository_ListRecent(t *testing.T) {
	repo := newRunRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, src := range []string{"bundestag", "eu", "bundestag"} {
		require.NoError(t, repo.Create(ctx, &domain.IngestionRun{
			ID:        "run-" + string(rune('a'+i)),
			Mode:      domain.RunModeDaily,
			Source:    src,
			Status:    domain.RunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := repo.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].ID)

	bt, err := repo.ListRecent(ctx, "bundestag", 1)
	require.NoError(t, err)
	require.Len(t, bt, 1)
	assert.Equal(t, "run-c", bt[0].ID)
}
