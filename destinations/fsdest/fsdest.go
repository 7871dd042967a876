// Package fsdest implements a filesystem destination. Each record is
// materialized as one JSON file under a root directory; records marked
// as removals delete their file instead.
package fsdest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
)

// PluginType is the registry name for this destination.
const PluginType = "filesystem"

// Destination writes records to disk.
type Destination struct {
	root   string
	logger *zap.SugaredLogger
}

// Factory returns a DestinationFactory for registration. Task
// configuration:
//
//	path: "/var/lib/skein/out"   root directory, created if absent
func Factory(logger *zap.SugaredLogger) ingest.DestinationFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return func(config map[string]any) (ingest.Destination, error) {
		return &Destination{logger: logger}, nil
	}
}

// Init creates the root directory.
func (d *Destination) Init(config map[string]any) error {
	root, _ := config["path"].(string)
	if root == "" {
		return errors.New("filesystem destination requires a path configuration")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", root)
	}
	d.root = root
	return nil
}

// ProcessData writes one file per record. A record whose metadata marks
// it removed deletes the file; deleting a file that never existed is
// fine. The returned status counts writes and removals separately.
func (d *Destination) ProcessData(ctx context.Context, records []ingest.Record) (*ingest.Status, error) {
	written, removed := 0, 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(d.root, fileNameFor(record.ID))
		if record.IsRemoval() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "failed to remove %q", path)
			}
			removed++
			continue
		}

		doc := map[string]any{
			"id":        record.ID,
			"content":   record.Content,
			"metadata":  record.Metadata,
			"fetchedAt": record.FetchedAt.Format(time.RFC3339),
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal record %q", record.ID)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, errors.Wrapf(err, "failed to write %q", path)
		}
		written++
	}

	d.logger.Infow("Filesystem delivery complete",
		"root", d.root,
		"written", written,
		"removed", removed,
	)
	return ingest.OKWithData(
		fmt.Sprintf("wrote %d files, removed %d", written, removed),
		map[string]any{"written": written, "removed": removed},
	), nil
}

// fileNameFor maps a record id to a safe flat filename. Path
// separators and parent references must not escape the root.
func fileNameFor(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	safe = strings.Trim(safe, ".")
	if safe == "" {
		safe = "record"
	}
	return safe + ".json"
}
