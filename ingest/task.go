package ingest

import (
	"time"

	"github.com/skeinhq/skein/errors"
)

// TaskStatus is the task state machine:
// SCHEDULED -> RUNNING -> {COMPLETED | FAILED}, with DISABLED reachable
// from any state and SCHEDULED as the re-entry state on re-enable.
type TaskStatus string

const (
	TaskScheduled TaskStatus = "SCHEDULED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskDisabled  TaskStatus = "DISABLED"
)

// TriggerKind discriminates the trigger tagged union.
type TriggerKind string

const (
	TriggerCron    TriggerKind = "cron"
	TriggerWebhook TriggerKind = "webhook"
	TriggerManual  TriggerKind = "manual"
)

// Trigger is the closed tagged union of trigger variants. Exactly one
// of the variant fields is meaningful, selected by Kind.
type Trigger struct {
	Kind TriggerKind `json:"kind" yaml:"kind"`
	// Expression is the cron expression (Kind == cron).
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	// EndpointID identifies the webhook endpoint (Kind == webhook).
	// Multiple tasks may share an endpoint.
	EndpointID string `json:"endpoint_id,omitempty" yaml:"endpoint_id,omitempty"`
}

// Validate checks the trigger's shape. Cron expression parseability is
// checked at evaluation time, not here, so one bad expression cannot
// block scheduling of sibling tasks.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerCron:
		if t.Expression == "" {
			return errors.New("cron trigger requires an expression")
		}
	case TriggerWebhook:
		if t.EndpointID == "" {
			return errors.New("webhook trigger requires an endpoint_id")
		}
	case TriggerManual:
		// No configuration.
	default:
		return errors.Newf("unknown trigger kind: %q", t.Kind)
	}
	return nil
}

// PluginRef references a registered plugin by type name plus its opaque
// configuration.
type PluginRef struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Task is the unit of schedulable work: one source bound to zero-or-one
// destination via a transformer, plus trigger and runtime status.
//
// ID is immutable after creation. A disabled task is never triggered
// until re-enabled. A nil Destination means a transform-only dry run,
// which is valid.
type Task struct {
	ID          string     `json:"id"`
	Enabled     bool       `json:"enabled"`
	Trigger     Trigger    `json:"trigger"`
	Source      PluginRef  `json:"source"`
	Destination *PluginRef `json:"destination,omitempty"`

	// Mutable runtime fields, owned by the manager.
	Status        TaskStatus `json:"status"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastRunStatus *Status    `json:"last_run_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy safe to hand to event subscribers
// and read-path callers without exposing manager-owned state.
func (t *Task) Clone() *Task {
	clone := *t
	if t.Destination != nil {
		dst := *t.Destination
		clone.Destination = &dst
	}
	if t.LastRun != nil {
		lr := *t.LastRun
		clone.LastRun = &lr
	}
	if t.LastRunStatus != nil {
		st := *t.LastRunStatus
		clone.LastRunStatus = &st
	}
	return &clone
}

// TaskUpdate carries partial updates for UpdateTask. Nil fields are
// left unchanged; non-nil fields replace the existing value wholesale
// (shallow merge - supply complete nested objects to change them).
type TaskUpdate struct {
	Enabled     *bool      `json:"enabled,omitempty"`
	Trigger     *Trigger   `json:"trigger,omitempty"`
	Source      *PluginRef `json:"source,omitempty"`
	Destination *PluginRef `json:"destination,omitempty"`
}
