package fsdest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinhq/skein/ingest"
)

func buildDestination(t *testing.T, root string) *Destination {
	t.Helper()
	dst, err := Factory(nil)(nil)
	require.NoError(t, err)
	require.NoError(t, dst.Init(map[string]any{"path": root}))
	return dst.(*Destination)
}

func TestInitRequiresPath(t *testing.T) {
	dst, err := Factory(nil)(nil)
	require.NoError(t, err)
	err = dst.Init(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a path")
}

func TestInitCreatesRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "out")
	buildDestination(t, root)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestProcessDataWritesOneFilePerRecord(t *testing.T) {
	root := t.TempDir()
	dst := buildDestination(t, root)

	fetchedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	records := []ingest.Record{
		{ID: "doc-1", Content: "first", Metadata: map[string]any{"kind": "note"}, FetchedAt: fetchedAt},
		{ID: "doc-2", Content: "second", FetchedAt: fetchedAt},
	}

	st, err := dst.ProcessData(context.Background(), records)
	require.NoError(t, err)
	require.True(t, st.Success)
	assert.Equal(t, 2, st.Data["written"])
	assert.Equal(t, 0, st.Data["removed"])

	data, err := os.ReadFile(filepath.Join(root, "doc-1.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "doc-1", doc["id"])
	assert.Equal(t, "first", doc["content"])
	assert.Equal(t, "2024-03-10T09:00:00Z", doc["fetchedAt"])
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "note", meta["kind"])
}

func TestRemovalDeletesFile(t *testing.T) {
	root := t.TempDir()
	dst := buildDestination(t, root)

	write := []ingest.Record{{ID: "doc-1", Content: "body"}}
	_, err := dst.ProcessData(context.Background(), write)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, "doc-1.json"))

	remove := []ingest.Record{{
		ID:       "doc-1",
		Metadata: map[string]any{ingest.MetaChangeType: ingest.ChangeRemoved},
	}}
	st, err := dst.ProcessData(context.Background(), remove)
	require.NoError(t, err)
	require.True(t, st.Success)
	assert.Equal(t, 1, st.Data["removed"])
	assert.NoFileExists(t, filepath.Join(root, "doc-1.json"))
}

func TestRemovalOfUnknownRecordSucceeds(t *testing.T) {
	dst := buildDestination(t, t.TempDir())

	records := []ingest.Record{{
		ID:       "never-written",
		Metadata: map[string]any{ingest.MetaChangeType: ingest.ChangeRemoved},
	}}
	st, err := dst.ProcessData(context.Background(), records)
	require.NoError(t, err)
	assert.True(t, st.Success)
}

func TestFileNameSanitization(t *testing.T) {
	assert.Equal(t, "commit-abc123.json", fileNameFor("commit-abc123"))
	assert.Equal(t, "a_b_c.json", fileNameFor("a/b/c"))
	assert.Equal(t, "record.json", fileNameFor("..."))
	// Parent traversal cannot escape the root.
	assert.NotContains(t, fileNameFor("../../etc/passwd"), "/")
}
