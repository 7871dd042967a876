// Package taskfile loads declarative task definitions from a YAML file
// and applies them to the lifecycle manager. With watching enabled the
// file is re-applied on change, so edits take effect without a restart.
package taskfile

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
)

// File is the top-level YAML document.
//
//	tasks:
//	  - id: nightly-docs
//	    enabled: true
//	    trigger:
//	      kind: cron
//	      expression: "0 2 * * *"
//	    source:
//	      type: web
//	      config:
//	        url: https://docs.example.com/changelog
//	    destination:
//	      type: filesystem
//	      config:
//	        path: /var/lib/skein/out
type File struct {
	Tasks []Definition `yaml:"tasks"`
}

// Definition is one declarative task entry. Enabled defaults to true
// when omitted.
type Definition struct {
	ID          string            `yaml:"id"`
	Enabled     *bool             `yaml:"enabled"`
	Trigger     ingest.Trigger    `yaml:"trigger"`
	Source      ingest.PluginRef  `yaml:"source"`
	Destination *ingest.PluginRef `yaml:"destination"`
}

// Load parses a task file. Parsing validates document shape only;
// trigger and plugin validation happens when the definitions are
// applied to the manager.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read task file %q", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse task file %q", path)
	}

	for i, def := range f.Tasks {
		if def.ID == "" {
			return nil, errors.Newf("task file %q: entry %d is missing an id", path, i)
		}
	}
	return &f, nil
}

// Apply reconciles the file's definitions into the manager. Unknown ids
// are scheduled; existing ids are updated in place. One bad definition
// is logged and skipped so the rest of the file still applies. Returns
// the number of definitions applied.
func Apply(m *ingest.Manager, f *File, logger *zap.SugaredLogger) int {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	applied := 0
	for _, def := range f.Tasks {
		enabled := true
		if def.Enabled != nil {
			enabled = *def.Enabled
		}

		var st *ingest.Status
		if _, exists := m.GetTask(def.ID); exists {
			trigger := def.Trigger
			source := def.Source
			st = m.UpdateTask(def.ID, ingest.TaskUpdate{
				Enabled:     &enabled,
				Trigger:     &trigger,
				Source:      &source,
				Destination: def.Destination,
			})
		} else {
			st = m.ScheduleTask(&ingest.Task{
				ID:          def.ID,
				Enabled:     enabled,
				Trigger:     def.Trigger,
				Source:      def.Source,
				Destination: def.Destination,
			})
		}

		if !st.Success {
			logger.Errorw("Task file entry rejected",
				"task_id", def.ID,
				"error", st.Message,
			)
			continue
		}
		applied++
	}

	logger.Infow("Task file applied", "defined", len(f.Tasks), "applied", applied)
	return applied
}

// LoadAndApply is the startup path: parse then reconcile.
func LoadAndApply(path string, m *ingest.Manager, logger *zap.SugaredLogger) (int, error) {
	f, err := Load(path)
	if err != nil {
		return 0, err
	}
	return Apply(m, f, logger), nil
}
