// Package watch observes the library directory for out-of-band changes and
// notifies the engine so an integrity check can reconcile the catalog.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher debounces filesystem event bursts into single change notifications.
// Worker jobs write artifacts in many small steps, so raw events arrive in
// clusters; the callback fires once per quiet period instead.
type Watcher struct {
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	dir     string
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	// timerMu is separate from mu: the event loop calls bump while teardown
	// holds mu waiting for that loop to exit.
	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a watcher that invokes onChange after the library directory has
// been quiet for the debounce window. The watcher starts idle; call SetDir to
// begin observing a directory.
func New(debounce time.Duration, onChange func(), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// SetDir points the watcher at a new library directory, replacing any
// previous watch. An empty dir stops observation without closing the watcher.
func (w *Watcher) SetDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir == w.dir && w.running {
		return nil
	}

	w.teardownLocked()

	if dir == "" {
		w.dir = ""
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path is not a directory: %s", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.dir = dir
	w.running = true
	w.wg.Add(1)
	go w.loop(fsw)

	w.logger.Info("watching library directory", "dir", dir, "debounce", w.debounce)
	return nil
}

// Close stops observation and releases the underlying watcher.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.teardownLocked()
	w.mu.Unlock()
	close(w.stopCh)
}

func (w *Watcher) teardownLocked() {
	if !w.running {
		return
	}
	w.fsw.Close()
	w.wg.Wait()
	w.fsw = nil
	w.running = false

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			w.logger.Debug("library change observed", "path", event.Name, "op", event.Op.String())
			w.bump()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("library watch error", "error", err)
		}
	}
}

// bump resets the debounce timer. The callback runs on the timer goroutine
// once no further events arrive within the window.
func (w *Watcher) bump() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.onChange()
	})
}
