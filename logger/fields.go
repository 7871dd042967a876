package logger

// Standard field names for consistent structured logging across skein.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldTaskID      = "task_id"
	FieldExecutionID = "execution_id"
	FieldEndpointID  = "endpoint_id"

	// Components
	FieldComponent = "component"
	FieldPlugin    = "plugin"

	// Operations
	FieldOperation = "operation"
	FieldTrigger   = "trigger"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldFetchedAt  = "fetched_at"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount     = "count"
	FieldItemCount = "items_processed"

	// Status
	FieldStatus = "status"
	FieldState  = "state"
)
