package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/vodvault/vodvault/internal/domain"
)

// Config holds the external tool configuration.
type Config struct {
	YTDLPPath          string
	ChatDownloaderPath string
	FFprobePath        string
	CookiesPath        string
	RateLimitMBps      float64
	Fragments          int
}

// Exec runs the external tools as child processes and reports their
// outcomes as events.
type Exec struct {
	cfg    Config
	logger *slog.Logger
	events chan Event

	mu        sync.Mutex
	downloads map[domain.ItemID]*exec.Cmd
	cancelled map[domain.ItemID]bool
	wg        sync.WaitGroup
}

// NewExec creates an exec-backed gateway.
func NewExec(cfg Config, logger *slog.Logger) *Exec {
	if cfg.YTDLPPath == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if cfg.ChatDownloaderPath == "" {
		cfg.ChatDownloaderPath = "chat_downloader"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Fragments <= 0 {
		cfg.Fragments = 10
	}

	return &Exec{
		cfg:       cfg,
		logger:    logger,
		events:    make(chan Event, 64),
		downloads: make(map[domain.ItemID]*exec.Cmd),
		cancelled: make(map[domain.ItemID]bool),
	}
}

// Events returns the asynchronous event stream.
func (g *Exec) Events() <-chan Event {
	return g.events
}

// Close waits for in-flight workers and closes the event stream.
func (g *Exec) Close() {
	g.wg.Wait()
	close(g.events)
}

// ToolAvailable checks that the download tools are on disk or in PATH.
func (g *Exec) ToolAvailable() error {
	for _, tool := range []string{g.cfg.YTDLPPath, g.cfg.ChatDownloaderPath} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrToolMissing, tool)
		}
	}
	return nil
}

// StartDownload launches a media download worker for the item.
func (g *Exec) StartDownload(ctx context.Context, req DownloadRequest) error {
	if req.URL == "" {
		return fmt.Errorf("start download %s: source URL is required", req.ID)
	}
	if req.OutputDir == "" {
		return fmt.Errorf("start download %s: output directory is required", req.ID)
	}

	args := buildDownloadArgs(g.cfg, req)
	cmd := exec.Command(g.cfg.YTDLPPath, args...)

	g.mu.Lock()
	if _, active := g.downloads[req.ID]; active {
		g.mu.Unlock()
		return fmt.Errorf("start download %s: already in flight", req.ID)
	}
	g.downloads[req.ID] = cmd
	delete(g.cancelled, req.ID)
	g.mu.Unlock()

	err := g.runWorker(cmd, func(line string) {
		g.emit(DownloadProgress{ID: req.ID, Line: line})
	}, func(success bool, stdout, stderr string) {
		g.mu.Lock()
		cancelled := g.cancelled[req.ID]
		delete(g.downloads, req.ID)
		delete(g.cancelled, req.ID)
		g.mu.Unlock()

		g.emit(DownloadFinished{
			ID:        req.ID,
			Success:   success && !cancelled,
			Cancelled: cancelled,
			Stdout:    stdout,
			Stderr:    stderr,
		})
	})
	if err != nil {
		g.mu.Lock()
		delete(g.downloads, req.ID)
		g.mu.Unlock()
		return fmt.Errorf("start download %s: %w", req.ID, err)
	}

	g.logger.Info("download worker started", "item_id", req.ID, "quality", req.Quality)
	return nil
}

// StopDownload asks the running download worker to stop. The cancellation is
// confirmed by the worker's terminal event, not by this call.
func (g *Exec) StopDownload(ctx context.Context, id domain.ItemID) error {
	g.mu.Lock()
	cmd, ok := g.downloads[id]
	if ok {
		g.cancelled[id] = true
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("stop download %s: no active worker", id)
	}
	if cmd.Process == nil {
		return fmt.Errorf("stop download %s: worker not started", id)
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Interrupt is unsupported on some platforms.
		if killErr := cmd.Process.Kill(); killErr != nil {
			g.mu.Lock()
			delete(g.cancelled, id)
			g.mu.Unlock()
			return fmt.Errorf("stop download %s: %w", id, killErr)
		}
	}

	g.logger.Info("download cancel requested", "item_id", id)
	return nil
}

// StartCommentsDownload launches a chat transcript worker for the item.
func (g *Exec) StartCommentsDownload(ctx context.Context, req CommentsRequest) error {
	if req.URL == "" {
		return fmt.Errorf("start comments %s: source URL is required", req.ID)
	}

	args := buildCommentsArgs(req)
	cmd := exec.Command(g.cfg.ChatDownloaderPath, args...)

	err := g.runWorker(cmd, func(line string) {
		g.emit(CommentsProgress{ID: req.ID, Line: line})
	}, func(success bool, stdout, stderr string) {
		g.emit(CommentsFinished{
			ID:      req.ID,
			Success: success,
			Stdout:  stdout,
			Stderr:  stderr,
		})
	})
	if err != nil {
		return fmt.Errorf("start comments %s: %w", req.ID, err)
	}

	g.logger.Info("comments worker started", "item_id", req.ID)
	return nil
}

// StartMetadataDownload launches a metadata fetch worker for the item.
func (g *Exec) StartMetadataDownload(ctx context.Context, req MetadataRequest) error {
	if req.URL == "" {
		return fmt.Errorf("start metadata %s: source URL is required", req.ID)
	}

	args := buildMetadataArgs(g.cfg, req)
	cmd := exec.Command(g.cfg.YTDLPPath, args...)

	err := g.runWorker(cmd, nil, func(success bool, stdout, stderr string) {
		ev := MetadataFinished{
			ID:      req.ID,
			Success: success,
			Stdout:  stdout,
			Stderr:  stderr,
		}
		if success {
			meta, hasChat, err := readLocalMetadata(req.OutputDir, req.ID)
			if err != nil {
				g.logger.Warn("metadata artifact unreadable", "item_id", req.ID, "error", err)
				ev.Success = false
				ev.Stderr = stderr + "\n" + err.Error()
			} else {
				ev.Metadata = &meta
				ev.HasLiveChat = hasChat
			}
		}
		g.emit(ev)
	})
	if err != nil {
		return fmt.Errorf("start metadata %s: %w", req.ID, err)
	}

	g.logger.Info("metadata worker started", "item_id", req.ID)
	return nil
}

// ListChannelItems lists candidates at a channel or playlist URL.
func (g *Exec) ListChannelItems(ctx context.Context, url string, limit int) ([]domain.ItemCandidate, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("list channel items: URL is required")
	}

	args := []string{"--flat-playlist", "-J"}
	if limit > 0 {
		args = append(args, "--playlist-end", fmt.Sprintf("%d", limit))
	}
	if g.cfg.CookiesPath != "" {
		args = append(args, "--cookies", g.cfg.CookiesPath)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, g.cfg.YTDLPPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("list channel items: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("list channel items: empty listing output")
	}

	return parseChannelListing(stdout.Bytes())
}

type listingEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Channel  string  `json:"channel"`
	Uploader string  `json:"uploader"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	IsLive   bool    `json:"is_live"`
}

type listingRoot struct {
	Channel  string         `json:"channel"`
	Uploader string         `json:"uploader"`
	Entries  []listingEntry `json:"entries"`
}

func parseChannelListing(data []byte) ([]domain.ItemCandidate, error) {
	var root listingRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse channel listing: %w", err)
	}

	candidates := make([]domain.ItemCandidate, 0, len(root.Entries))
	for _, e := range root.Entries {
		if e.ID == "" {
			continue
		}
		channel := e.Channel
		if channel == "" {
			channel = e.Uploader
		}
		if channel == "" {
			channel = root.Channel
		}
		if channel == "" {
			channel = root.Uploader
		}
		url := e.URL
		if url == "" {
			url = "https://www.youtube.com/watch?v=" + e.ID
		}
		candidates = append(candidates, domain.ItemCandidate{
			ID:        domain.ItemID(e.ID),
			Title:     e.Title,
			Channel:   channel,
			SourceURL: url,
			Duration:  e.Duration,
			IsLive:    e.IsLive,
		})
	}
	return candidates, nil
}

// emit delivers an event without ever blocking a worker goroutine forever;
// the engine is the sole consumer and drains continuously.
func (g *Exec) emit(ev Event) {
	g.events <- ev
}

// runWorker starts cmd, streams its output lines to onLine, and calls done
// with the captured output once the process exits. A Start failure is
// returned synchronously and done is not called.
func (g *Exec) runWorker(cmd *exec.Cmd, onLine func(string), done func(success bool, stdout, stderr string)) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		var outBuf, errBuf strings.Builder
		var mu sync.Mutex
		var readers sync.WaitGroup

		read := func(r io.Reader, buf *strings.Builder, progress bool) {
			defer readers.Done()
			scanner := bufio.NewScanner(r)
			b := make([]byte, 0, 64*1024)
			scanner.Buffer(b, 1024*1024)
			scanner.Split(splitByNewlineOrCR)
			for scanner.Scan() {
				line := scanner.Text()
				mu.Lock()
				appendLimited(buf, line)
				mu.Unlock()
				if progress && onLine != nil {
					onLine(line)
				}
			}
		}

		readers.Add(2)
		go read(stdoutPipe, &outBuf, true)
		go read(stderrPipe, &errBuf, false)
		readers.Wait()

		err := cmd.Wait()

		mu.Lock()
		stdout := outBuf.String()
		stderr := errBuf.String()
		mu.Unlock()

		done(err == nil, stdout, stderr)
	}()

	return nil
}

// splitByNewlineOrCR splits on LF or CR so that in-place progress lines
// (terminated with a bare carriage return) are delivered individually.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

const maxCapturedOutput = 8192

func appendLimited(buf *strings.Builder, line string) {
	if buf.Len() >= maxCapturedOutput {
		return
	}
	toWrite := line + "\n"
	if remain := maxCapturedOutput - buf.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	buf.WriteString(toWrite)
}

// buildDownloadArgs assembles the yt-dlp invocation for a media download.
func buildDownloadArgs(cfg Config, req DownloadRequest) []string {
	args := []string{
		"--no-playlist",
		"--newline",
		"-N", fmt.Sprintf("%d", cfg.Fragments),
		"-P", req.OutputDir,
		"-o", "%(title).200B [%(id)s].%(ext)s",
		"-f", selectFormat(req.Quality),
	}
	if cfg.CookiesPath != "" {
		args = append(args, "--cookies", cfg.CookiesPath)
	}
	if cfg.RateLimitMBps > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%gM", cfg.RateLimitMBps))
	}
	return append(args, req.URL)
}

// buildCommentsArgs assembles the chat downloader invocation.
func buildCommentsArgs(req CommentsRequest) []string {
	return []string{
		"--output", commentsPath(req.OutputDir, req.ID),
		req.URL,
	}
}

// buildMetadataArgs assembles the yt-dlp invocation for a metadata fetch.
// No media is downloaded; the info json and thumbnail are written keyed by id.
func buildMetadataArgs(cfg Config, req MetadataRequest) []string {
	args := []string{
		"--no-playlist",
		"--skip-download",
		"--write-info-json",
		"--write-thumbnail",
		"-P", req.OutputDir,
		"-o", "%(id)s.%(ext)s",
	}
	if cfg.CookiesPath != "" {
		args = append(args, "--cookies", cfg.CookiesPath)
	}
	return append(args, req.URL)
}

func selectFormat(rawQuality string) string {
	switch strings.ToLower(strings.TrimSpace(rawQuality)) {
	case "", "best":
		return "bv*+ba/b"
	case "1080p", "1080", "hd":
		return "bv*[height<=1080]+ba/b[height<=1080]"
	case "720p", "720", "sd":
		return "bv*[height<=720]+ba/b[height<=720]"
	default:
		return "bv*+ba/b"
	}
}
