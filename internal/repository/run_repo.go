package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/policyradar/protocols/internal/domain"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunRepository persists ingestion run history.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, run *domain.IngestionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Save writes every field of run.
func (r *RunRepository) Save(ctx context.Context, run *domain.IngestionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	var run domain.IngestionRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrRunNotFound, "%s", id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent returns the newest runs first, optionally for one source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source tag filter; empty lists every source.
//   - limit: maximum number of runs.
//
// Returns:
//   - []domain.IngestionRun: runs ordered by start time, newest first.
//   - error: non-nil if the query fails.
func (r *RunRepository) ListRecent(ctx context.Context, source string, limit int) ([]domain.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var runs []domain.IngestionRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
