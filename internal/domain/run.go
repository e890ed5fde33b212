package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// RunMode selects how an ingestion run chooses its window.
// Values include RunModeBackfill and RunModeDaily.
type RunMode string

const (
	RunModeBackfill RunMode = "backfill"
	RunModeDaily    RunMode = "daily"
)

// RunStatus represents the state of an ingestion run.
// Values include RunStatusRunning, RunStatusCompleted, and RunStatusFailed.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Decision is the resolver's classification of a normalized document.
type Decision string

const (
	DecisionNew       Decision = "new"
	DecisionChanged   Decision = "changed"
	DecisionUnchanged Decision = "unchanged"
)

// Pipeline stages a record can fail in.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageResolve   = "resolve"
	StageIndex     = "index"
)

// RecordFailure identifies one record that did not make it into the index.
type RecordFailure struct {
	Identity string `json:"identity"` // document id or url
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// FailureList is a custom type for storing record failures as JSON in the database.
type FailureList []RecordFailure

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the list.
//   - error: non-nil if marshaling fails.
func (l FailureList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
//
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (l *FailureList) Scan(value interface{}) error {
	if value == nil {
		*l = FailureList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FailureList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// RunParams is the explicit parameter object for one scheduler invocation.
type RunParams struct {
	Source string
	Mode   RunMode
	Start  *time.Time // backfill only
	End    *time.Time // backfill only
	Date   *time.Time // daily override; nil means yesterday
}

// IngestionRun is the bookkeeping record of one scheduler invocation.
type IngestionRun struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	Mode             RunMode     `gorm:"type:text;not null" json:"mode"`
	Source           string      `gorm:"type:text;not null;index" json:"source"`
	WindowStart      time.Time   `json:"window_start"`
	WindowEnd        time.Time   `json:"window_end"`
	Status           RunStatus   `gorm:"type:text;index;default:running" json:"status"`
	Fetched          int64       `json:"fetched"`
	Indexed          int64       `json:"indexed"`
	Created          int64       `json:"created"`
	Updated          int64       `json:"updated"`
	SkippedUnchanged int64       `json:"skipped_unchanged"`
	Failed           int64       `json:"failed"`
	Unextracted      int64       `json:"unextracted"`
	Failures         FailureList `gorm:"type:text" json:"failures"`
	Error            string      `gorm:"type:text" json:"error,omitempty"`
	StartedAt        time.Time   `gorm:"index" json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// TableName returns the database table name for IngestionRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}

// Window returns the run's day window.
func (r *IngestionRun) Window() Window {
	return Window{Start: r.WindowStart, End: r.WindowEnd}
}
