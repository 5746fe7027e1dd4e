// Package engine orchestrates download, chat and metadata jobs against the
// worker gateway. All queue state is owned by a single dispatch loop that
// consumes typed commands and gateway events in arrival order, so no lock
// guards the queues: concurrency comes from outstanding worker processes,
// not from parallel orchestration.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vodvault/vodvault/internal/diskfree"
	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
	"github.com/vodvault/vodvault/internal/library"
)

// ErrShutdownTimeout is returned when the engine doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("engine shutdown timed out")

// Notifier is the engine's user-facing notification channel.
type Notifier interface {
	Info(source, message string, itemID domain.ItemID)
	Success(source, message string, itemID domain.ItemID)
	Warning(source, message string, itemID domain.ItemID)
	Error(source, message string, itemID domain.ItemID)
}

// Config holds engine configuration.
type Config struct {
	// LibraryDir is the initial library directory. It may be empty;
	// downloads are rejected until one is set.
	LibraryDir string

	// MinFreeBytes rejects dispatch below this free-space floor. 0 disables.
	MinFreeBytes int64

	// Quality is passed through to the download worker.
	Quality string

	// MetadataWaitTimeout bounds the metadata-resolution wait before an
	// ad-hoc download of an unresolved item.
	MetadataWaitTimeout time.Duration

	// CoalesceWindow batches metadata patches for the same item.
	CoalesceWindow time.Duration

	// MetadataDispatchDelay defers metadata dispatch off the command path.
	MetadataDispatchDelay time.Duration

	// JobTimeout bounds download and chat jobs. 0 disables the watchdog.
	JobTimeout time.Duration
}

type bulkPhase string

const (
	bulkPhaseNone     bulkPhase = ""
	bulkPhaseVideo    bulkPhase = "video"
	bulkPhaseComments bulkPhase = "comments"
)

type singleState struct {
	queue     []domain.ItemID
	activeID  domain.ItemID
	bulkOwned bool
}

type bulkState struct {
	active            bool
	waitingForSingles bool
	stopRequested     bool
	queue             []domain.ItemID
	total             int
	completed         int
	currentID         domain.ItemID
	currentPhase      bulkPhase
}

type metaEntry struct {
	id  domain.ItemID
	url string
}

type metaState struct {
	queue         []metaEntry
	activeID      domain.ItemID
	paused        bool
	pauseReason   string
	total         int
	completed     int
	dispatchArmed bool
	scanning      bool
	waiters       map[domain.ItemID][]chan error
}

type watchKey struct {
	id    domain.ItemID
	phase domain.ErrorPhase
}

// Engine is the job orchestration and reconciliation core.
type Engine struct {
	cfg      Config
	store    *library.Store
	gw       gateway.Gateway
	notifier Notifier
	logger   *slog.Logger

	// freeSpace is replaceable in tests.
	freeSpace func(path string) int64

	// dirChanged, when set, is invoked off the loop after the library
	// directory changes (relink); the server re-points the fs watcher here.
	dirChanged func(dir string)

	cmds   chan command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State below is owned by the dispatch loop.
	libraryDir       string
	single           singleState
	bulk             bulkState
	meta             metaState
	progress         map[domain.ItemID]string
	commentsProgress map[domain.ItemID]string
	pendingComments  map[domain.ItemID]bool
	patches          coalescer
	watchdogs        map[watchKey]*time.Timer
	integrityRunning bool
}

// New creates an engine. Start must be called before commands are accepted.
func New(cfg Config, store *library.Store, gw gateway.Gateway, notifier Notifier, logger *slog.Logger) *Engine {
	if cfg.MetadataWaitTimeout <= 0 {
		cfg.MetadataWaitTimeout = 15 * time.Second
	}
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = 250 * time.Millisecond
	}
	if cfg.MetadataDispatchDelay <= 0 {
		cfg.MetadataDispatchDelay = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:              cfg,
		store:            store,
		gw:               gw,
		notifier:         notifier,
		logger:           logger,
		freeSpace:        diskfree.Free,
		cmds:             make(chan command, 64),
		ctx:              ctx,
		cancel:           cancel,
		libraryDir:       cfg.LibraryDir,
		progress:         make(map[domain.ItemID]string),
		commentsProgress: make(map[domain.ItemID]string),
		pendingComments:  make(map[domain.ItemID]bool),
		patches:          newCoalescer(),
		watchdogs:        make(map[watchKey]*time.Timer),
		meta:             metaState{waiters: make(map[domain.ItemID][]chan error)},
	}
}

// OnLibraryDirChange registers a hook run after every successful library
// directory change. Must be called before Start.
func (e *Engine) OnLibraryDirChange(fn func(dir string)) {
	e.dirChanged = fn
}

// Start launches the dispatch loop.
func (e *Engine) Start() {
	e.logger.Info("starting engine", "library_dir", e.libraryDir)
	e.wg.Add(1)
	go e.run()
}

// Stop shuts the loop down.
func (e *Engine) Stop(timeout time.Duration) error {
	e.logger.Info("stopping engine")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	events := e.gw.Events()
	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(ev)
		}
	}
}

// post delivers a command to the loop, honoring both contexts.
func (e *Engine) post(ctx context.Context, cmd command) error {
	select {
	case e.cmds <- cmd:
		return nil
	case <-e.ctx.Done():
		return domain.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postInternal delivers a timer-originated command, dropped on shutdown.
func (e *Engine) postInternal(cmd command) {
	select {
	case e.cmds <- cmd:
	case <-e.ctx.Done():
	}
}

// --- watchdog ---------------------------------------------------------------

func (e *Engine) armWatchdog(id domain.ItemID, phase domain.ErrorPhase) {
	if e.cfg.JobTimeout <= 0 {
		return
	}
	key := watchKey{id, phase}
	e.stopWatchdog(id, phase)
	e.watchdogs[key] = time.AfterFunc(e.cfg.JobTimeout, func() {
		e.postInternal(cmdJobTimeout{id: id, phase: phase})
	})
}

func (e *Engine) stopWatchdog(id domain.ItemID, phase domain.ErrorPhase) {
	key := watchKey{id, phase}
	if t, ok := e.watchdogs[key]; ok {
		t.Stop()
		delete(e.watchdogs, key)
	}
}

// handleJobTimeout converts worker silence into a failure transition. The
// worker is asked to stop but never force-killed locally; a terminal event
// arriving later is dropped by the ownership checks.
func (e *Engine) handleJobTimeout(cmd cmdJobTimeout) {
	delete(e.watchdogs, watchKey{cmd.id, cmd.phase})

	switch cmd.phase {
	case domain.PhaseVideo:
		if e.single.activeID != cmd.id {
			return
		}
		e.logger.Warn("download worker timed out", "item_id", cmd.id)
		go func() {
			if err := e.gw.StopDownload(context.Background(), cmd.id); err != nil {
				e.logger.Warn("cancel of hung download failed", "item_id", cmd.id, "error", err)
			}
		}()
		e.handleDownloadFinished(gateway.DownloadFinished{
			ID:      cmd.id,
			Stderr:  "worker did not report within the job timeout",
			Success: false,
		})
	case domain.PhaseComments:
		if !e.pendingComments[cmd.id] {
			return
		}
		e.logger.Warn("comments worker timed out", "item_id", cmd.id)
		e.handleCommentsFinished(gateway.CommentsFinished{
			ID:      cmd.id,
			Stderr:  "worker did not report within the job timeout",
			Success: false,
		})
	}
}
