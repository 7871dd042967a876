package taskfile

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
)

// Watcher re-applies a task file whenever it changes on disk. Editors
// that write via rename (vim, sed -i) generate Create events, so both
// Write and Create trigger a reload. Rapid successive events are
// debounced.
type Watcher struct {
	path    string
	manager *ingest.Manager
	watcher *fsnotify.Watcher
	logger  *zap.SugaredLogger

	mu            sync.Mutex
	debounceTimer *time.Timer
	debounce      time.Duration

	done chan struct{}
}

// NewWatcher creates a task file watcher. Call Start to begin watching.
func NewWatcher(path string, m *ingest.Manager, logger *zap.SugaredLogger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch task file %q", path)
	}

	return &Watcher{
		path:     path,
		manager:  m,
		watcher:  fsw,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Infow("Task file watcher started", "path", w.path)
}

// Stop closes the watcher. Pending debounced reloads are dropped.
func (w *Watcher) Stop() error {
	close(w.done)
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Infow("Task file changed",
					"path", event.Name,
					"op", event.Op.String(),
				)
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Task file watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		if _, err := LoadAndApply(w.path, w.manager, w.logger); err != nil {
			w.logger.Errorw("Task file reload failed",
				"path", w.path,
				"error", err,
			)
		}
	})
}
