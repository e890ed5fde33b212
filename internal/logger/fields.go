package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRunID is the ingestion run ID (UUID)
	FieldRunID = "run_id"

	// FieldSource is the upstream source tag
	FieldSource = "source"

	// FieldMode is the ingestion run mode (backfill, daily)
	FieldMode = "mode"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldDocumentID is the protocol document id
	FieldDocumentID = "document_id"

	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"
)

// Metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
