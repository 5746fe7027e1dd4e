// Package ui provides the terminal status board for a VodVault server.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/vodvault/vodvault/cmd/monitor/internal/client"
	"github.com/vodvault/vodvault/cmd/monitor/internal/config"
)

// App is the status board application.
type App struct {
	app    *tview.Application
	cfg    *config.Config
	client *client.Client
	ctx    context.Context
	cancel context.CancelFunc

	statusMu sync.RWMutex
	stats    *client.Stats
	notices  []client.Notice

	// UI components
	mainFlex    *tview.Flex
	header      *tview.TextView
	footer      *tview.TextView
	statusBar   *tview.TextView
	overviewBox *tview.TextView
	queueBox    *tview.TextView
	bulkBox     *tview.TextView
	metaBox     *tview.TextView
	noticesBox  *tview.TextView
}

// NewApp creates the status board.
func NewApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:    tview.NewApplication(),
		cfg:    cfg,
		client: client.New(cfg.ServerURL, cfg.APIKey),
		ctx:    ctx,
		cancel: cancel,
	}

	a.setupUI()
	return a
}

// setupUI initializes all UI components.
func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetText(fmt.Sprintf("\n[white::b]VodVault Status[white] | Server: [green]%s", a.cfg.ServerURL))

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]r[white]:Refresh [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.overviewBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.overviewBox.SetBorder(true).SetTitle(" Overview ")

	a.queueBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.queueBox.SetBorder(true).SetTitle(" Downloads ")

	a.bulkBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.bulkBox.SetBorder(true).SetTitle(" Bulk ")

	a.metaBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.metaBox.SetBorder(true).SetTitle(" Metadata ")

	a.noticesBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.noticesBox.SetBorder(true).SetTitle(" Recent Notices ")

	topRow := tview.NewFlex().
		AddItem(a.overviewBox, 0, 1, false).
		AddItem(a.queueBox, 0, 1, false)

	middleRow := tview.NewFlex().
		AddItem(a.bulkBox, 0, 1, false).
		AddItem(a.metaBox, 0, 1, false)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(topRow, 0, 1, false).
		AddItem(middleRow, 0, 1, false).
		AddItem(a.noticesBox, 0, 1, false).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetInputCapture(a.handleKeys)
	a.app.SetRoot(a.mainFlex, true)
}

// handleKeys handles global keyboard shortcuts.
func (a *App) handleKeys(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyRune {
		switch event.Rune() {
		case 'q', 'Q':
			a.Stop()
			return nil
		case 'r', 'R':
			go a.refresh()
			return nil
		}
	}
	return event
}

// updateStatusBar updates the status bar with current status.
func (a *App) updateStatusBar(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | Last refresh: %s", msg, time.Now().Format("15:04:05")))
	})
}

// Run starts the status board.
func (a *App) Run() error {
	go a.backgroundRefresh()
	go a.refresh()

	return a.app.Run()
}

// Stop stops the status board.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// backgroundRefresh polls the server on the configured interval.
func (a *App) backgroundRefresh() {
	ticker := time.NewTicker(a.cfg.StatusRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// refresh fetches current server state and redraws the panels.
func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	stats, err := a.client.Stats(ctx)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	notices, err := a.client.Notices(ctx, 20)
	if err != nil {
		notices = nil
	}

	a.statusMu.Lock()
	a.stats = stats
	a.notices = notices
	a.statusMu.Unlock()

	a.app.QueueUpdateDraw(a.updatePanels)

	if stats.Engine.ActiveDownload != "" {
		a.updateStatusBar(fmt.Sprintf("[green]Downloading %s", stats.Engine.ActiveDownload))
	} else {
		a.updateStatusBar("[green]Idle")
	}
}
