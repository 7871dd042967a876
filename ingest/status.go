// Package ingest implements the content ingestion lifecycle: task
// registry and scheduling, trigger evaluation, and the per-task
// fetch/transform/deliver pipeline.
package ingest

import (
	"fmt"
)

// Status is the uniform result type returned by every pipeline-facing
// operation. Expected failures (unknown task, unregistered plugin,
// connector errors) are reported through a failed Status, never panics.
type Status struct {
	Success bool           `json:"success"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// DataKeyItems is the Status.Data key under which sources return their
// raw item array and pipeline results report their processed count.
const (
	DataKeyItems          = "items"
	DataKeyResult         = "result"
	DataKeyItemsProcessed = "items_processed"
)

// OK returns a successful status.
func OK(message string) *Status {
	return &Status{Success: true, Code: 200, Message: message}
}

// OKWithData returns a successful status carrying result data.
func OKWithData(message string, data map[string]any) *Status {
	return &Status{Success: true, Code: 200, Message: message, Data: data}
}

// Failure returns a failed status with the given code.
func Failure(code int, message string) *Status {
	return &Status{Success: false, Code: code, Message: message}
}

// Failuref returns a failed status with a formatted message.
func Failuref(code int, format string, args ...any) *Status {
	return &Status{Success: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError converts an unexpected error into a failed status.
func FromError(err error) *Status {
	return &Status{Success: false, Code: 500, Message: err.Error()}
}

// ItemsProcessed reads the processed-item count from the status data.
// Returns 0 when absent.
func (s *Status) ItemsProcessed() int {
	if s == nil || s.Data == nil {
		return 0
	}
	switch v := s.Data[DataKeyItemsProcessed].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s *Status) String() string {
	if s == nil {
		return "<nil status>"
	}
	if s.Success {
		return fmt.Sprintf("OK(%d): %s", s.Code, s.Message)
	}
	return fmt.Sprintf("FAILED(%d): %s", s.Code, s.Message)
}
