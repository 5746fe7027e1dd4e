package engine

import (
	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

// command is a message consumed by the dispatch loop. Replies are delivered
// on buffered channels so the loop never blocks on a slow caller.
type command interface{ isCommand() }

type requestOpts struct {
	// allowDuringBulk lets dispatch proceed while a batch is running.
	// Set only by the bulk coordinator itself.
	allowDuringBulk bool
	// trackInQueue enqueues the request when the slot is busy instead of
	// failing it.
	trackInQueue bool
}

type requestResult struct {
	queued bool
	// metadataWait is non-nil when the item's metadata is still unresolved;
	// the caller must wait on it and re-post the request once it resolves.
	metadataWait <-chan error
	err          error
}

type cmdRequestDownload struct {
	id    domain.ItemID
	opts  requestOpts
	reply chan requestResult
}

type cmdCancelDownload struct {
	id    domain.ItemID
	reply chan error
}

type cmdRequestComments struct {
	id    domain.ItemID
	reply chan error
}

type cmdAbandonRequest struct {
	id      domain.ItemID
	details string
}

type cmdBulkStart struct {
	reply chan bulkStartResult
}

type bulkStartResult struct {
	status BulkStatus
	err    error
}

type cmdBulkStop struct {
	reply chan error
}

type cmdScheduleMetadata struct {
	ids   []domain.ItemID
	reply chan int
}

type cmdRetryMetadata struct {
	reply chan error
}

type cmdKickMetadata struct{}

type cmdFlushPatches struct{}

type cmdJobTimeout struct {
	id    domain.ItemID
	phase domain.ErrorPhase
}

type cmdAddItems struct {
	candidates []domain.ItemCandidate
	reply      chan addItemsResult
}

type addItemsResult struct {
	added int
	err   error
}

type cmdSetLibraryDir struct {
	dir   string
	reply chan error
}

type cmdStats struct {
	reply chan Stats
}

type cmdIntegrityBegin struct {
	overrideDir string
	reply       chan integrityBeginResult
}

type integrityBeginResult struct {
	plan integrityPlan
	err  error
}

type cmdIntegrityAbort struct{}

type cmdIntegrityApply struct {
	plan    integrityPlan
	results map[domain.ItemID]gateway.VerifyResult
	index   *domain.MetadataIndex
	reply   chan *domain.IntegrityReport
}

type cmdScanBegin struct {
	force bool
	reply chan scanBeginResult
}

type scanBeginResult struct {
	plan scanPlan
	err  error
}

type cmdScanAbort struct{}

type cmdScanApply struct {
	metas      map[domain.ItemID]domain.Metadata
	refetchIDs []domain.ItemID
	reply      chan struct{}
}

func (cmdRequestDownload) isCommand()  {}
func (cmdCancelDownload) isCommand()   {}
func (cmdRequestComments) isCommand()  {}
func (cmdAbandonRequest) isCommand()   {}
func (cmdBulkStart) isCommand()        {}
func (cmdBulkStop) isCommand()         {}
func (cmdScheduleMetadata) isCommand() {}
func (cmdRetryMetadata) isCommand()    {}
func (cmdKickMetadata) isCommand()     {}
func (cmdFlushPatches) isCommand()     {}
func (cmdJobTimeout) isCommand()       {}
func (cmdAddItems) isCommand()         {}
func (cmdSetLibraryDir) isCommand()    {}
func (cmdStats) isCommand()            {}
func (cmdIntegrityBegin) isCommand()   {}
func (cmdIntegrityAbort) isCommand()   {}
func (cmdIntegrityApply) isCommand()   {}
func (cmdScanBegin) isCommand()        {}
func (cmdScanAbort) isCommand()        {}
func (cmdScanApply) isCommand()        {}

func (e *Engine) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case cmdRequestDownload:
		c.reply <- e.handleRequestDownload(c.id, c.opts)
	case cmdCancelDownload:
		c.reply <- e.handleCancelDownload(c.id)
	case cmdRequestComments:
		c.reply <- e.handleRequestComments(c.id)
	case cmdAbandonRequest:
		e.handleAbandonRequest(c)
	case cmdBulkStart:
		c.reply <- e.handleBulkStart()
	case cmdBulkStop:
		c.reply <- e.handleBulkStop()
	case cmdScheduleMetadata:
		c.reply <- e.handleScheduleMetadata(c.ids)
	case cmdRetryMetadata:
		c.reply <- e.handleRetryMetadata()
	case cmdKickMetadata:
		e.handleKickMetadata()
	case cmdFlushPatches:
		e.flushPatches()
	case cmdJobTimeout:
		e.handleJobTimeout(c)
	case cmdAddItems:
		c.reply <- e.handleAddItems(c.candidates)
	case cmdSetLibraryDir:
		c.reply <- e.handleSetLibraryDir(c.dir)
	case cmdStats:
		c.reply <- e.buildStats()
	case cmdIntegrityBegin:
		c.reply <- e.handleIntegrityBegin(c.overrideDir)
	case cmdIntegrityAbort:
		e.integrityRunning = false
	case cmdIntegrityApply:
		c.reply <- e.handleIntegrityApply(c)
	case cmdScanBegin:
		c.reply <- e.handleScanBegin(c.force)
	case cmdScanAbort:
		e.meta.scanning = false
	case cmdScanApply:
		e.handleScanApply(c)
		c.reply <- struct{}{}
	}
}
