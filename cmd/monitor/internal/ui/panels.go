package ui

import (
	"fmt"
	"strings"
	"time"
)

// updatePanels redraws every panel from the latest snapshot. Must run on the
// tview event loop.
func (a *App) updatePanels() {
	a.statusMu.RLock()
	stats := a.stats
	notices := a.notices
	a.statusMu.RUnlock()

	if stats == nil {
		return
	}
	eng := stats.Engine

	// Overview
	var overview strings.Builder
	overview.WriteString(fmt.Sprintf("[white::b]Library:[white] %s\n", orDash(eng.LibraryDir)))
	overview.WriteString(fmt.Sprintf("[white::b]Items:[white] %d\n\n", eng.Items))
	overview.WriteString(fmt.Sprintf("[white::b]Disk free:[white] %s\n", formatBytes(stats.DiskFreeBytes)))
	overview.WriteString(fmt.Sprintf("[white::b]Uptime:[white] %s\n", formatUptime(stats.Uptime)))
	overview.WriteString(fmt.Sprintf("[white::b]Memory:[white] %d MB\n", stats.MemAllocMB))
	overview.WriteString(fmt.Sprintf("[white::b]Goroutines:[white] %d\n\n", stats.NumGoroutines))
	if eng.IntegrityRunning {
		overview.WriteString("[yellow]Integrity check running[white]\n")
	}
	a.overviewBox.SetText(overview.String())

	// Downloads
	var queue strings.Builder
	if eng.ActiveDownload != "" {
		owner := ""
		if eng.ActiveIsBulk {
			owner = " [dim](bulk)[white]"
		}
		queue.WriteString(fmt.Sprintf("[green]Active:[white] %s%s\n", eng.ActiveDownload, owner))
		if line, ok := eng.Progress[eng.ActiveDownload]; ok {
			queue.WriteString(fmt.Sprintf("  %s\n", truncateString(line, 70)))
		}
		queue.WriteString("\n")
	} else {
		queue.WriteString("[dim]No active download[white]\n\n")
	}
	if len(eng.QueuedDownloads) > 0 {
		queue.WriteString("[white::b]Queued:[white]\n")
		for i, id := range eng.QueuedDownloads {
			queue.WriteString(fmt.Sprintf("  %d. %s\n", i+1, id))
		}
		queue.WriteString("\n")
	}
	if len(eng.PendingComments) > 0 {
		queue.WriteString("[white::b]Chat fetches:[white]\n")
		for _, id := range eng.PendingComments {
			queue.WriteString(fmt.Sprintf("  %s", id))
			if line, ok := eng.CommentsProgress[id]; ok {
				queue.WriteString(fmt.Sprintf("  [dim]%s[white]", truncateString(line, 40)))
			}
			queue.WriteString("\n")
		}
	}
	a.queueBox.SetText(queue.String())

	// Bulk
	var bulk strings.Builder
	if !eng.Bulk.Active {
		bulk.WriteString("[dim]No batch running[white]")
	} else {
		switch {
		case eng.Bulk.WaitingForSingles:
			bulk.WriteString("[yellow]Waiting for ad-hoc activity to finish[white]\n\n")
		case eng.Bulk.StopRequested:
			bulk.WriteString("[yellow]Stop requested, finishing current item[white]\n\n")
		default:
			bulk.WriteString("[green]Running[white]\n\n")
		}
		bulk.WriteString(fmt.Sprintf("[white::b]Progress:[white] %d/%d (%d remaining)\n",
			eng.Bulk.Completed, eng.Bulk.Total, eng.Bulk.Remaining))
		if eng.Bulk.CurrentID != "" {
			bulk.WriteString(fmt.Sprintf("[white::b]Current:[white] %s", eng.Bulk.CurrentID))
			if eng.Bulk.CurrentPhase != "" {
				bulk.WriteString(fmt.Sprintf(" [dim](%s)[white]", eng.Bulk.CurrentPhase))
			}
			bulk.WriteString("\n")
		}
	}
	a.bulkBox.SetText(bulk.String())

	// Metadata
	var meta strings.Builder
	if eng.Metadata.Paused {
		meta.WriteString("[red]Paused[white]\n")
		if eng.Metadata.PauseReason != "" {
			meta.WriteString(fmt.Sprintf("  %s\n", truncateString(eng.Metadata.PauseReason, 60)))
		}
		meta.WriteString("\n")
	}
	if eng.Metadata.ActiveID != "" {
		meta.WriteString(fmt.Sprintf("[green]Fetching:[white] %s\n", eng.Metadata.ActiveID))
	}
	meta.WriteString(fmt.Sprintf("[white::b]Queue:[white] %d\n", eng.Metadata.QueueLen))
	if eng.Metadata.Total > 0 {
		meta.WriteString(fmt.Sprintf("[white::b]Progress:[white] %d/%d\n", eng.Metadata.Completed, eng.Metadata.Total))
	}
	a.metaBox.SetText(meta.String())

	// Notices
	var nb strings.Builder
	if len(notices) == 0 {
		nb.WriteString("[dim]No recent notices[white]")
	} else {
		for _, n := range notices {
			color := "white"
			switch n.Severity {
			case "success":
				color = "green"
			case "warning":
				color = "yellow"
			case "error":
				color = "red"
			}
			nb.WriteString(fmt.Sprintf("[dim]%s[white] [%s]%s[white] %s\n",
				n.Timestamp.Local().Format("15:04:05"), color, n.Source,
				truncateString(n.Message, 70)))
		}
	}
	a.noticesBox.SetText(nb.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatUptime(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
