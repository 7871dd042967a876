package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinhq/skein/internal/util"
)

func TestDueSlotWithinWindow(t *testing.T) {
	e := NewCronEvaluator(65 * time.Second)

	// Reference 30s past the minute: the slot at :00 is within window.
	ref := time.Date(2026, 8, 28, 10, 15, 30, 0, time.UTC)
	slot, ok, err := e.DueSlot("*/1 * * * *", ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 15, 0, 0, time.UTC), slot)
}

func TestDueSlotOutsideWindow(t *testing.T) {
	e := NewCronEvaluator(65 * time.Second)

	// Hourly schedule, reference 30 minutes past: last fire at :00 is
	// far outside the 65s window.
	ref := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	_, ok, err := e.DueSlot("0 * * * *", ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDueSlotBoundary(t *testing.T) {
	e := NewCronEvaluator(65 * time.Second)

	// Fire time exactly at the reference instant counts.
	ref := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	slot, ok, err := e.DueSlot("0 * * * *", ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref, slot)
}

func TestDueSlotInvalidExpression(t *testing.T) {
	e := NewCronEvaluator(0)

	_, _, err := e.DueSlot("not a cron", time.Now())
	assert.Error(t, err)
}

func TestIsDueIdempotentPerSlot(t *testing.T) {
	e := NewCronEvaluator(65 * time.Second)

	ref := time.Date(2026, 8, 28, 10, 15, 10, 0, time.UTC)
	slot := time.Date(2026, 8, 28, 10, 15, 0, 0, time.UTC)

	// First evaluation: no lastRun, due.
	due, got, err := e.IsDue("*/1 * * * *", nil, ref)
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, slot, got)

	// Second evaluation in the same slot with lastRun from the first
	// run: not due again.
	lastRun := slot.Add(2 * time.Second)
	due, _, err = e.IsDue("*/1 * * * *", util.Ptr(lastRun), ref.Add(20*time.Second))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestIsDueNextSlotFiresAgain(t *testing.T) {
	e := NewCronEvaluator(65 * time.Second)

	lastRun := time.Date(2026, 8, 28, 10, 15, 1, 0, time.UTC)
	ref := time.Date(2026, 8, 28, 10, 16, 5, 0, time.UTC)

	due, slot, err := e.IsDue("*/1 * * * *", util.Ptr(lastRun), ref)
	require.NoError(t, err)
	require.True(t, due)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 16, 0, 0, time.UTC), slot)
}

func TestZeroToleranceDefaults(t *testing.T) {
	e := NewCronEvaluator(0)
	assert.Equal(t, DefaultCronTolerance, e.Tolerance())
}
