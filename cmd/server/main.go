package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vodvault/vodvault/internal/api"
	"github.com/vodvault/vodvault/internal/api/handler"
	"github.com/vodvault/vodvault/internal/config"
	"github.com/vodvault/vodvault/internal/engine"
	"github.com/vodvault/vodvault/internal/gateway"
	"github.com/vodvault/vodvault/internal/library"
	"github.com/vodvault/vodvault/internal/notify"
	"github.com/vodvault/vodvault/internal/watch"
	"github.com/vodvault/vodvault/pkg/crypto"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vodvault %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting vodvault",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Library.Dir != "" {
		if err := os.MkdirAll(cfg.Library.Dir, 0755); err != nil {
			logger.Error("failed to create library directory", "error", err)
			os.Exit(1)
		}
	}

	// Sealed cookies files are decrypted to a temp copy for the workers.
	cookiesPath := cfg.Tools.CookiesPath
	cookiesTemp := ""
	if cookiesPath != "" {
		path, err := crypto.MaterializeFile(cookiesPath, cfg.Tools.CookiesPassphrase, os.TempDir())
		if err != nil {
			logger.Error("failed to prepare cookies file", "error", err)
			os.Exit(1)
		}
		if path != cookiesPath {
			cookiesTemp = path
		}
		cookiesPath = path
	}

	// Catalog storage
	repo, err := library.NewSQLiteRepository(cfg.Library.DatabasePath)
	if err != nil {
		logger.Error("failed to open catalog database", "error", err)
		os.Exit(1)
	}
	store := library.NewStore(repo, logger)
	if err := store.LoadPersisted(context.Background()); err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	// Worker gateway
	gw := gateway.NewExec(gateway.Config{
		YTDLPPath:          cfg.Tools.YTDLPPath,
		ChatDownloaderPath: cfg.Tools.ChatDownloaderPath,
		FFprobePath:        cfg.Tools.FFprobePath,
		CookiesPath:        cookiesPath,
		RateLimitMBps:      cfg.Download.RateLimitMBps,
		Fragments:          cfg.Download.Fragments,
	}, logger)

	// Notices
	notices, err := notify.NewService(notify.ServiceConfig{
		RingSize:      cfg.Notify.RingSize,
		HistoryPath:   cfg.Notify.HistoryPath,
		RetentionDays: cfg.Notify.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to start notice service", "error", err)
		os.Exit(1)
	}

	// Orchestration engine
	eng := engine.New(engine.Config{
		LibraryDir:            cfg.Library.Dir,
		MinFreeBytes:          cfg.Library.MinFreeBytes,
		Quality:               cfg.Download.Quality,
		MetadataWaitTimeout:   cfg.Metadata.WaitTimeout,
		CoalesceWindow:        cfg.Metadata.CoalesceWindow,
		MetadataDispatchDelay: cfg.Metadata.DispatchDelay,
		JobTimeout:            cfg.Download.JobTimeout,
	}, store, gw, notices, logger)

	// Library directory watch triggers integrity checks on external changes;
	// a relink re-points it at the new directory.
	watcher := watch.New(cfg.Library.WatchDebounce, eng.NotifyLibraryChanged, logger)
	eng.OnLibraryDirChange(func(dir string) {
		if err := watcher.SetDir(dir); err != nil {
			logger.Warn("library watch unavailable", "dir", dir, "error", err)
		}
	})
	eng.Start()

	if cfg.Library.Dir != "" {
		if err := watcher.SetDir(cfg.Library.Dir); err != nil {
			logger.Warn("library watch unavailable", "error", err)
		}
	}

	// Reconcile catalog and disk at startup.
	go func() {
		if _, err := eng.RunIntegrity(context.Background(), ""); err != nil {
			logger.Warn("startup integrity check skipped", "error", err)
		}
	}()

	itemHandler := handler.NewItemHandler(eng, store, logger)
	jobsHandler := handler.NewJobsHandler(eng, store, logger)
	noticeHandler := handler.NewNoticeHandler(notices, logger)
	healthHandler := handler.NewHealthHandler(eng, store)

	router := api.NewRouter(itemHandler, jobsHandler, noticeHandler, healthHandler, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	watcher.Close()

	if err := eng.Stop(25 * time.Second); err != nil {
		logger.Error("engine shutdown error", "error", err)
	}

	// Worker children may outlive us; bound the wait instead of hanging.
	gwDone := make(chan struct{})
	go func() {
		gw.Close()
		close(gwDone)
	}()
	select {
	case <-gwDone:
	case <-time.After(5 * time.Second):
		logger.Warn("worker processes still running at exit")
	}

	if err := notices.Close(); err != nil {
		logger.Error("notice service close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("catalog close error", "error", err)
	}

	if cookiesTemp != "" {
		os.Remove(cookiesTemp)
	}

	logger.Info("shutdown complete")
}
