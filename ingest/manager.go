package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/internal/util"
)

var errNoHistory = errors.New("execution history not configured")

// failureSummary formats the aggregate message for multi-task trigger
// results.
func failureSummary(failed, total int) string {
	return fmt.Sprintf("%d of %d triggered tasks failed", failed, total)
}

// Manager owns the task store, the plugin registry, and trigger
// evaluation. It is explicitly constructed and passed; there is no
// ambient singleton. All task-store and registry mutation happens
// inside manager methods, never from orchestrators.
type Manager struct {
	mu            sync.RWMutex
	tasks         map[string]*Task
	orchestrators map[string]*Orchestrator
	started       bool

	// running tracks in-flight invocations per task id. A trigger for a
	// task that is already running is rejected, not queued.
	runMu   sync.Mutex
	running map[string]bool

	registry *Registry
	bus      *Bus
	cron     *CronEvaluator
	history  *ExecutionStore // optional
	logger   *zap.SugaredLogger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithExecutionStore enables persistent execution history.
func WithExecutionStore(store *ExecutionStore) ManagerOption {
	return func(m *Manager) { m.history = store }
}

// WithCronTolerance overrides the due-slot recency window.
func WithCronTolerance(tolerance time.Duration) ManagerOption {
	return func(m *Manager) { m.cron = NewCronEvaluator(tolerance) }
}

// NewManager creates a lifecycle manager with its own registry and
// event bus.
func NewManager(logger *zap.SugaredLogger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{
		tasks:         make(map[string]*Task),
		orchestrators: make(map[string]*Orchestrator),
		running:       make(map[string]bool),
		registry:      NewRegistry(logger),
		bus:           NewBus(logger),
		cron:          NewCronEvaluator(0),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bus returns the shared event bus.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Registry returns the plugin registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RegisterSource registers a source plugin type.
func (m *Manager) RegisterSource(name string, factory SourceFactory, transformer Transformer) {
	m.registry.RegisterSource(name, factory, transformer)
}

// RegisterDestination registers a destination plugin type.
func (m *Manager) RegisterDestination(name string, factory DestinationFactory) {
	m.registry.RegisterDestination(name, factory)
}

// Start arms triggers for every enabled task and flips the manager into
// lifecycle-started mode. Idempotent; calling twice is a no-op with a
// warning.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warnw("Manager already started, ignoring")
		return
	}
	m.started = true
	enabled := 0
	for _, task := range m.tasks {
		if task.Enabled {
			enabled++
		}
	}
	m.mu.Unlock()

	m.logger.Infow("Ingestion lifecycle manager started", "enabled_tasks", enabled)
}

// Stop disarms every trigger and flips lifecycle mode off.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.logger.Infow("Ingestion lifecycle manager stopped")
}

// ScheduleTask registers a new task. The id is generated when absent;
// an explicit duplicate id is rejected with a failed status and the
// original definition stays untouched.
func (m *Manager) ScheduleTask(def *Task) *Status {
	if def == nil {
		return Failure(400, "task definition is required")
	}
	if def.Source.Type == "" {
		return Failure(400, "task source plugin type is required")
	}
	if err := def.Trigger.Validate(); err != nil {
		return Failuref(400, "invalid trigger: %v", err)
	}

	m.mu.Lock()
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if _, exists := m.tasks[def.ID]; exists {
		m.mu.Unlock()
		return Failuref(409, "task already exists: %s", def.ID)
	}

	task := def.Clone()
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.LastRun = nil
	task.LastRunStatus = nil
	if task.Enabled {
		task.Status = TaskScheduled
	} else {
		task.Status = TaskDisabled
	}
	m.tasks[task.ID] = task
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Infow("Task scheduled",
		"task_id", task.ID,
		"trigger", task.Trigger.Kind,
		"source", task.Source.Type,
	)
	m.bus.Publish(EventTaskScheduled, task.ID, snapshot)
	return OKWithData("task scheduled", map[string]any{"task_id": task.ID})
}

// UpdateTask merges partial updates over an existing definition.
// Nested objects (trigger, source, destination) replace wholesale.
// The cached orchestrator is discarded so changed plugin configuration
// takes effect on the next run.
func (m *Manager) UpdateTask(id string, upd TaskUpdate) *Status {
	if upd.Trigger != nil {
		if err := upd.Trigger.Validate(); err != nil {
			return Failuref(400, "invalid trigger: %v", err)
		}
	}
	if upd.Source != nil && upd.Source.Type == "" {
		return Failure(400, "task source plugin type is required")
	}

	m.mu.Lock()
	task, exists := m.tasks[id]
	if !exists {
		m.mu.Unlock()
		return Failuref(404, "task not found: %s", id)
	}

	if upd.Trigger != nil {
		task.Trigger = *upd.Trigger
	}
	if upd.Source != nil {
		task.Source = *upd.Source
	}
	if upd.Destination != nil {
		task.Destination = upd.Destination
	}
	if upd.Enabled != nil {
		task.Enabled = *upd.Enabled
		if task.Enabled {
			task.Status = TaskScheduled
		} else {
			task.Status = TaskDisabled
		}
	}
	task.UpdatedAt = time.Now()
	delete(m.orchestrators, id)
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Infow("Task updated", "task_id", id)
	m.bus.Publish(EventTaskUpdated, id, snapshot)
	return OK("task updated")
}

// EnableTask enables a task. Enabling an already-enabled task is a
// no-op success.
func (m *Manager) EnableTask(id string) *Status {
	m.mu.Lock()
	task, exists := m.tasks[id]
	if !exists {
		m.mu.Unlock()
		return Failuref(404, "task not found: %s", id)
	}
	if task.Enabled {
		m.mu.Unlock()
		return OK("task already enabled")
	}
	task.Enabled = true
	task.Status = TaskScheduled
	task.UpdatedAt = time.Now()
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Infow("Task enabled", "task_id", id)
	m.bus.Publish(EventTaskEnabled, id, snapshot)
	return OK("task enabled")
}

// DisableTask disables a task, immediately disarming its trigger.
// Disabling an already-disabled task is a no-op success.
func (m *Manager) DisableTask(id string) *Status {
	m.mu.Lock()
	task, exists := m.tasks[id]
	if !exists {
		m.mu.Unlock()
		return Failuref(404, "task not found: %s", id)
	}
	if !task.Enabled {
		m.mu.Unlock()
		return OK("task already disabled")
	}
	task.Enabled = false
	task.Status = TaskDisabled
	task.UpdatedAt = time.Now()
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Infow("Task disabled", "task_id", id)
	m.bus.Publish(EventTaskDisabled, id, snapshot)
	return OK("task disabled")
}

// DeleteTask removes a task and any cached orchestrator bound to it.
func (m *Manager) DeleteTask(id string) *Status {
	m.mu.Lock()
	task, exists := m.tasks[id]
	if !exists {
		m.mu.Unlock()
		return Failuref(404, "task not found: %s", id)
	}
	snapshot := task.Clone()
	delete(m.tasks, id)
	delete(m.orchestrators, id)
	m.mu.Unlock()

	m.runMu.Lock()
	delete(m.running, id)
	m.runMu.Unlock()

	m.logger.Infow("Task deleted", "task_id", id)
	m.bus.Publish(EventTaskDeleted, id, snapshot)
	return OK("task deleted")
}

// GetTask returns a snapshot of one task.
func (m *Manager) GetTask(id string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, exists := m.tasks[id]
	if !exists {
		return nil, false
	}
	return task.Clone(), true
}

// ListTasks returns snapshots of all tasks, sorted by id.
func (m *Manager) ListTasks() []*Task {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// TriggerManualTask executes one task immediately. Fails if the task is
// unknown or disabled, without touching the source.
func (m *Manager) TriggerManualTask(ctx context.Context, id string, payload map[string]any) *Status {
	m.mu.RLock()
	task, exists := m.tasks[id]
	var enabled bool
	if exists {
		enabled = task.Enabled
	}
	m.mu.RUnlock()

	if !exists {
		return Failuref(404, "task not found: %s", id)
	}
	if !enabled {
		return Failuref(409, "task is disabled: %s", id)
	}
	return m.executeTask(ctx, id, payload, TriggerManual)
}

// TriggerWebhookTask executes every enabled task whose webhook trigger
// matches endpointID, each with the payload attached under
// "webhookPayload". The aggregate status succeeds only if every
// triggered task succeeded. Zero matching tasks is a failure so callers
// can distinguish misrouted webhooks from intentional no-ops.
func (m *Manager) TriggerWebhookTask(ctx context.Context, endpointID string, payload any) *Status {
	m.mu.RLock()
	var matched []string
	for id, task := range m.tasks {
		if task.Enabled && task.Trigger.Kind == TriggerWebhook && task.Trigger.EndpointID == endpointID {
			matched = append(matched, id)
		}
	}
	m.mu.RUnlock()

	if len(matched) == 0 {
		return Failuref(404, "no enabled webhook task found for endpoint: %s", endpointID)
	}
	sort.Strings(matched)

	results := make(map[string]*Status, len(matched))
	failures := 0
	for _, id := range matched {
		st := m.executeTask(ctx, id, map[string]any{"webhookPayload": payload}, TriggerWebhook)
		results[id] = st
		if !st.Success {
			failures++
		}
	}

	data := map[string]any{
		"endpoint_id": endpointID,
		"triggered":   len(matched),
		"results":     results,
	}
	if failures > 0 {
		return &Status{
			Success: false,
			Code:    500,
			Message: failureSummary(failures, len(matched)),
			Data:    data,
		}
	}
	return OKWithData("all webhook tasks succeeded", data)
}

// TriggerAllEnabledCronTasks evaluates every enabled cron task against
// referenceTime and executes those that are due. An unparseable cron
// expression fails that task's entry in the result list without
// aborting evaluation of siblings.
func (m *Manager) TriggerAllEnabledCronTasks(ctx context.Context, referenceTime time.Time) *Status {
	m.mu.RLock()
	if !m.started {
		m.mu.RUnlock()
		return OKWithData("lifecycle not started; no tasks evaluated", map[string]any{
			"triggered": 0,
		})
	}
	type cronTask struct {
		id         string
		expression string
		lastRun    *time.Time
	}
	var candidates []cronTask
	for id, task := range m.tasks {
		if task.Enabled && task.Trigger.Kind == TriggerCron {
			ct := cronTask{id: id, expression: task.Trigger.Expression}
			if task.LastRun != nil {
				ct.lastRun = util.Ptr(*task.LastRun)
			}
			candidates = append(candidates, ct)
		}
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

	results := make(map[string]*Status)
	triggered, failures := 0, 0
	for _, ct := range candidates {
		due, slot, err := m.cron.IsDue(ct.expression, ct.lastRun, referenceTime)
		if err != nil {
			m.logger.Errorw("Cron expression evaluation failed",
				"task_id", ct.id,
				"expression", ct.expression,
				"error", err,
			)
			results[ct.id] = Failuref(400, "cron evaluation failed: %v", err)
			failures++
			continue
		}
		if !due {
			continue
		}

		m.logger.Debugw("Cron task due",
			"task_id", ct.id,
			"slot", slot.Format(time.RFC3339),
		)
		st := m.executeTask(ctx, ct.id, nil, TriggerCron)
		results[ct.id] = st
		triggered++
		if !st.Success {
			failures++
		}
	}

	data := map[string]any{
		"evaluated": len(candidates),
		"triggered": triggered,
		"results":   results,
	}
	if failures > 0 {
		return &Status{
			Success: false,
			Code:    500,
			Message: failureSummary(failures, len(results)),
			Data:    data,
		}
	}
	return OKWithData("cron evaluation complete", data)
}

// ListExecutions returns recent execution history for a task, newest
// first. Fails when history persistence is not configured.
func (m *Manager) ListExecutions(taskID string, limit int) ([]*Execution, error) {
	if m.history == nil {
		return nil, errNoHistory
	}
	return m.history.ListExecutions(taskID, limit)
}

// executeTask is the single execution routine all three trigger paths
// converge on, so status and event semantics are trigger-independent.
func (m *Manager) executeTask(ctx context.Context, id string, payload map[string]any, kind TriggerKind) (status *Status) {
	// Per-task run lock: a trigger racing an in-flight run of the same
	// task is rejected outright. No events fire and the task's status
	// stays RUNNING, owned by the in-flight invocation.
	m.runMu.Lock()
	if m.running[id] {
		m.runMu.Unlock()
		return Failuref(409, "task is already running: %s", id)
	}
	m.running[id] = true
	m.runMu.Unlock()

	defer func() {
		m.runMu.Lock()
		delete(m.running, id)
		m.runMu.Unlock()
	}()

	startedAt := time.Now()

	m.mu.Lock()
	task, exists := m.tasks[id]
	if !exists {
		m.mu.Unlock()
		return Failuref(404, "task not found: %s", id)
	}
	task.Status = TaskRunning
	task.LastRun = util.Ptr(startedAt)
	taskSnapshot := task.Clone()
	m.mu.Unlock()

	m.bus.Publish(EventTaskTriggered, id, map[string]any{
		"trigger": string(kind),
		"payload": payload,
	})

	exec := m.recordExecutionStart(id, kind, startedAt)

	// The manager boundary is the backstop: no invocation may leave the
	// task stuck in RUNNING, whatever the pipeline does.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("Task execution panicked", "task_id", id, "panic", r)
			status = Failuref(500, "unexpected error during task execution: %v", r)
			m.bus.Publish(EventTaskFailed, id, status)
		}
		m.finishTask(id, status)
		m.recordExecutionEnd(exec, status, startedAt)
	}()

	orch, failure := m.orchestratorFor(taskSnapshot)
	if failure != nil {
		// Configuration errors emit the terminal event here; the
		// pipeline never ran.
		m.logger.Errorw("Task execution rejected",
			"task_id", id,
			"error", failure.Message,
		)
		m.bus.Publish(EventTaskFailed, id, failure)
		status = failure
		return status
	}

	m.logger.Infow("Executing task",
		"task_id", id,
		"trigger", string(kind),
		"source", taskSnapshot.Source.Type,
	)
	status = orch.Execute(ctx, payload)
	return status
}

// finishTask records the terminal status on the task.
func (m *Manager) finishTask(id string, status *Status) {
	if status == nil {
		status = Failure(500, "task execution returned no status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, exists := m.tasks[id]
	if !exists {
		// Deleted mid-run; nothing to record.
		return
	}
	task.LastRunStatus = status
	if status.Success {
		task.Status = TaskCompleted
	} else {
		task.Status = TaskFailed
	}
}

// orchestratorFor returns the cached orchestrator for a task, lazily
// constructing source and destination instances on first execution.
// Returns a failed status for unregistered plugin types.
func (m *Manager) orchestratorFor(task *Task) (*Orchestrator, *Status) {
	m.mu.RLock()
	orch, ok := m.orchestrators[task.ID]
	m.mu.RUnlock()
	if ok {
		return orch, nil
	}

	entry, ok := m.registry.source(task.Source.Type)
	if !ok {
		return nil, Failuref(400, "source plugin type not registered: %s", task.Source.Type)
	}
	source, err := entry.factory(task.Source.Config)
	if err != nil {
		return nil, Failuref(500, "failed to construct source %q: %v", task.Source.Type, err)
	}

	var destination Destination
	if task.Destination != nil {
		factory, ok := m.registry.destination(task.Destination.Type)
		if !ok {
			return nil, Failuref(400, "destination plugin type not registered: %s", task.Destination.Type)
		}
		destination, err = factory(task.Destination.Config)
		if err != nil {
			return nil, Failuref(500, "failed to construct destination %q: %v", task.Destination.Type, err)
		}
		if err := destination.Init(task.Destination.Config); err != nil {
			return nil, Failuref(500, "failed to initialize destination %q: %v", task.Destination.Type, err)
		}
	}

	orch = NewOrchestrator(task.ID, source, entry.transformer, destination, m.bus, m.logger)

	m.mu.Lock()
	// Another invocation may have built one concurrently; keep the
	// first so plugin instances stay stable.
	if existing, ok := m.orchestrators[task.ID]; ok {
		orch = existing
	} else {
		m.orchestrators[task.ID] = orch
	}
	m.mu.Unlock()

	return orch, nil
}

// recordExecutionStart writes a running history row. Best-effort.
func (m *Manager) recordExecutionStart(taskID string, kind TriggerKind, startedAt time.Time) *Execution {
	if m.history == nil {
		return nil
	}
	now := startedAt.Format(time.RFC3339)
	exec := &Execution{
		ID:          "exec-" + uuid.NewString(),
		TaskID:      taskID,
		TriggerKind: string(kind),
		Status:      ExecutionRunning,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.history.CreateExecution(exec); err != nil {
		m.logger.Errorw("Failed to record execution start",
			"task_id", taskID,
			"error", err,
		)
		return nil
	}
	return exec
}

// recordExecutionEnd finalizes a history row. Best-effort.
func (m *Manager) recordExecutionEnd(exec *Execution, status *Status, startedAt time.Time) {
	if exec == nil || m.history == nil {
		return
	}
	completedAt := time.Now()
	exec.CompletedAt = util.Ptr(completedAt.Format(time.RFC3339))
	exec.DurationMs = util.Ptr(int(completedAt.Sub(startedAt).Milliseconds()))
	if status != nil && status.Success {
		exec.Status = ExecutionCompleted
		exec.ItemsProcessed = util.Ptr(status.ItemsProcessed())
		exec.ResultSummary = util.Ptr(status.Message)
	} else {
		exec.Status = ExecutionFailed
		if status != nil {
			exec.ErrorMessage = util.Ptr(status.Message)
		}
	}
	if err := m.history.UpdateExecution(exec); err != nil {
		m.logger.Errorw("Failed to record execution end",
			"execution_id", exec.ID,
			"error", err,
		)
	}
}
