package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skeintesting "github.com/skeinhq/skein/internal/testing"
	"github.com/skeinhq/skein/internal/util"
)

func newTestExecution(id, taskID string, startedAt time.Time) *Execution {
	ts := startedAt.Format(time.RFC3339)
	return &Execution{
		ID:          id,
		TaskID:      taskID,
		TriggerKind: string(TriggerManual),
		Status:      ExecutionRunning,
		StartedAt:   ts,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	startedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateExecution(newTestExecution("exec-1", "T1", startedAt)))

	got, err := store.GetExecution("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TaskID)
	assert.Equal(t, ExecutionRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ItemsProcessed)
	assert.Nil(t, got.ErrorMessage)
}

func TestExecutionUpdateTerminalFields(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	startedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	exec := newTestExecution("exec-1", "T1", startedAt)
	require.NoError(t, store.CreateExecution(exec))

	exec.Status = ExecutionCompleted
	exec.CompletedAt = util.Ptr(startedAt.Add(2 * time.Second).Format(time.RFC3339))
	exec.DurationMs = util.Ptr(2000)
	exec.ItemsProcessed = util.Ptr(7)
	exec.ResultSummary = util.Ptr("records delivered")
	require.NoError(t, store.UpdateExecution(exec))

	got, err := store.GetExecution("exec-1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, got.Status)
	require.NotNil(t, got.ItemsProcessed)
	assert.Equal(t, 7, *got.ItemsProcessed)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, 2000, *got.DurationMs)
	require.NotNil(t, got.ResultSummary)
	assert.Equal(t, "records delivered", *got.ResultSummary)
}

func TestUpdateUnknownExecutionFails(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	exec := newTestExecution("exec-missing", "T1", time.Now())
	err := store.UpdateExecution(exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution not found")
}

func TestGetUnknownExecutionFails(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	_, err := store.GetExecution("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution not found")
}

func TestListExecutionsNewestFirst(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("exec-%d", i)
		require.NoError(t, store.CreateExecution(newTestExecution(id, "T1", base.Add(time.Duration(i)*time.Minute))))
	}
	// A row for another task must not leak into the listing.
	require.NoError(t, store.CreateExecution(newTestExecution("exec-other", "T2", base)))

	executions, err := store.ListExecutions("T1", 3)
	require.NoError(t, err)
	require.Len(t, executions, 3)
	assert.Equal(t, "exec-4", executions[0].ID)
	assert.Equal(t, "exec-3", executions[1].ID)
	assert.Equal(t, "exec-2", executions[2].ID)
}

func TestListExecutionsDefaultLimit(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))

	require.NoError(t, store.CreateExecution(newTestExecution("exec-1", "T1", time.Now())))

	executions, err := store.ListExecutions("T1", 0)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestManagerRecordsExecutionHistory(t *testing.T) {
	store := NewExecutionStore(skeintesting.CreateTestDB(t))
	src := &fakeSource{status: sourceItems("one", "two")}
	m := NewManager(nil, WithExecutionStore(store))
	m.RegisterSource("fake",
		func(config map[string]any) (Source, error) { return src, nil },
		passthroughTransformer,
	)
	require.True(t, m.ScheduleTask(manualTask("T1")).Success)

	require.True(t, m.TriggerManualTask(context.Background(), "T1", nil).Success)

	executions, err := m.ListExecutions("T1", 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	exec := executions[0]
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Equal(t, string(TriggerManual), exec.TriggerKind)
	require.NotNil(t, exec.ItemsProcessed)
	assert.Equal(t, 2, *exec.ItemsProcessed)
	require.NotNil(t, exec.CompletedAt)
}

func TestListExecutionsWithoutHistoryFails(t *testing.T) {
	m := NewManager(nil)
	_, err := m.ListExecutions("T1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution history not configured")
}
