package ingest

import (
	"database/sql"
	"time"

	"github.com/skeinhq/skein/errors"
)

// Execution statuses for the history store.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution is one row of pipeline invocation history: timing, terminal
// status, item count, and error detail. History is best-effort
// observability; store failures are logged, never fatal to a run.
type Execution struct {
	ID             string  `json:"id"`
	TaskID         string  `json:"task_id"`
	TriggerKind    string  `json:"trigger_kind"`
	Status         string  `json:"status"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	DurationMs     *int    `json:"duration_ms,omitempty"`
	ItemsProcessed *int    `json:"items_processed,omitempty"`
	ResultSummary  *string `json:"result_summary,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ExecutionStore persists execution history rows in SQLite.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates an execution history store.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution inserts a new execution record.
func (s *ExecutionStore) CreateExecution(exec *Execution) error {
	query := `
		INSERT INTO task_executions (
			id, task_id, trigger_kind, status, started_at, completed_at,
			duration_ms, items_processed, result_summary, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		exec.ID,
		exec.TaskID,
		exec.TriggerKind,
		exec.Status,
		exec.StartedAt,
		exec.CompletedAt,
		exec.DurationMs,
		exec.ItemsProcessed,
		exec.ResultSummary,
		exec.ErrorMessage,
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution record")
	}
	return nil
}

// UpdateExecution updates an execution record's terminal fields.
func (s *ExecutionStore) UpdateExecution(exec *Execution) error {
	query := `
		UPDATE task_executions
		SET status = ?, completed_at = ?, duration_ms = ?,
		    items_processed = ?, result_summary = ?, error_message = ?,
		    updated_at = ?
		WHERE id = ?
	`

	exec.UpdatedAt = time.Now().Format(time.RFC3339)
	result, err := s.db.Exec(query,
		exec.Status,
		exec.CompletedAt,
		exec.DurationMs,
		exec.ItemsProcessed,
		exec.ResultSummary,
		exec.ErrorMessage,
		exec.UpdatedAt,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.Newf("execution not found: %s", exec.ID)
	}
	return nil
}

// GetExecution retrieves one execution by id.
func (s *ExecutionStore) GetExecution(id string) (*Execution, error) {
	query := `
		SELECT id, task_id, trigger_kind, status, started_at, completed_at,
		       duration_ms, items_processed, result_summary, error_message,
		       created_at, updated_at
		FROM task_executions
		WHERE id = ?
	`

	exec, err := scanExecution(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf("execution not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return exec, nil
}

// ListExecutions returns the most recent executions for a task, newest
// first, bounded by limit.
func (s *ExecutionStore) ListExecutions(taskID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, task_id, trigger_kind, status, started_at, completed_at,
		       duration_ms, items_processed, result_summary, error_message,
		       created_at, updated_at
		FROM task_executions
		WHERE task_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, taskID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var completedAt, resultSummary, errorMessage sql.NullString
	var durationMs, itemsProcessed sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&exec.TaskID,
		&exec.TriggerKind,
		&exec.Status,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
		&itemsProcessed,
		&resultSummary,
		&errorMessage,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		exec.CompletedAt = &completedAt.String
	}
	if durationMs.Valid {
		v := int(durationMs.Int64)
		exec.DurationMs = &v
	}
	if itemsProcessed.Valid {
		v := int(itemsProcessed.Int64)
		exec.ItemsProcessed = &v
	}
	if resultSummary.Valid {
		exec.ResultSummary = &resultSummary.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = &errorMessage.String
	}
	return &exec, nil
}
