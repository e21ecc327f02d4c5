// The reelserver command serves a video editor's portfolio: range-request
// video streaming, the project API, a rotating featured carousel and the
// contact form relay.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agleyzer/reelserver/internal/catalog"
	"github.com/agleyzer/reelserver/internal/cluster"
	"github.com/agleyzer/reelserver/internal/config"
	"github.com/agleyzer/reelserver/internal/contact"
	"github.com/agleyzer/reelserver/internal/media"
	"github.com/agleyzer/reelserver/internal/playlist"
	"github.com/agleyzer/reelserver/internal/server"
	"github.com/agleyzer/reelserver/internal/stats"
	"github.com/agleyzer/reelserver/internal/stream"
	"github.com/spf13/afero"
)

const (
	version = "1.0.0"
)

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// serve runs until SIGINT or SIGTERM.
func serve(cfg *config.Config, fs afero.Fs, logger *slog.Logger) error {
	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return run(ctx, cfg, fs, logger)
}

func run(ctx context.Context, cfg *config.Config, fs afero.Fs, logger *slog.Logger) error {
	lib, err := media.NewLibrary(fs, cfg.Media.Root, cfg.Media.Pattern)
	if err != nil {
		return fmt.Errorf("failed to open media library: %w", err)
	}

	cat, err := loadCatalog(fs, cfg, lib)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("loaded catalog", "projects", cat.Len(), "source", catalogSource(cfg))

	rotation, err := playlist.NewRotation(cat.All(), cfg.Rotation.Window, cfg.Rotation.Interval, logger)
	if err != nil {
		return fmt.Errorf("failed to create rotation: %w", err)
	}

	views := stats.NewCounter()
	streamer := stream.New(lib, logger,
		stream.WithCacheControl(cfg.Media.CacheControl),
		stream.WithViewRecorder(views.RecordView),
	)

	smtpCfg := contact.SMTPConfig{
		Host:     cfg.Contact.SMTP.Host,
		Port:     cfg.Contact.SMTP.Port,
		User:     cfg.Contact.SMTP.User,
		Password: cfg.Contact.SMTP.Password,
		From:     cfg.Contact.SMTP.From,
		To:       cfg.Contact.SMTP.To,
	}
	if err := smtpCfg.ResolvePassword(); err != nil {
		logger.Warn("smtp password unavailable", "error", err)
	}
	relay := contact.NewRelay(contact.NewMailer(smtpCfg, logger), smtpCfg, logger)

	if cfg.Catalog.Path != "" {
		go func() {
			err := cat.Watch(ctx, fs, cfg.Catalog.Path, cfg.Catalog.Debounce, logger, func() {
				rotation.SetProjects(cat.All())
			})
			if err != nil {
				logger.Error("catalog watch stopped", "error", err)
			}
		}()
	}

	deps := server.Deps{
		Streamer: streamer,
		Catalog:  cat,
		Rotation: rotation,
		Views:    views,
		Relay:    relay,
	}

	if cfg.Cluster.Enabled() {
		mgr, err := startCluster(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer mgr.Shutdown()

		go cluster.Follow(ctx, mgr, rotation, rotation.Interval(), logger)
		deps.Cluster = mgr
	} else {
		// Start auto-advance in a goroutine
		go rotation.StartAutoAdvance(ctx)
	}

	srv := server.New(deps, server.Options{
		Port:        cfg.Server.Port,
		BaseURL:     cfg.Server.BaseURL,
		CORSOrigins: cfg.CORS.Origins,
		TestEmail:   cfg.Contact.TestEndpoint,
	}, logger)

	logger.Info("reelserver ready",
		"videos", fmt.Sprintf("http://localhost:%d/video/{id}", cfg.Server.Port),
		"reel", fmt.Sprintf("http://localhost:%d/reel.m3u8", cfg.Server.Port),
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Start server (blocks until shutdown)
	return srv.Start(ctx)
}

func loadCatalog(fs afero.Fs, cfg *config.Config, lib *media.Library) (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		return catalog.Load(fs, cfg.Catalog.Path)
	}
	return catalog.FromLibrary(lib)
}

func catalogSource(cfg *config.Config) string {
	if cfg.Catalog.Path != "" {
		return cfg.Catalog.Path
	}
	return "media directory"
}

func startCluster(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cluster.Manager, error) {
	peers := cfg.Cluster.Peers
	if len(peers) == 0 {
		peers = []string{cfg.Cluster.Bind}
	}

	mgr, err := cluster.NewManager(cluster.Config{
		RaftID:    cfg.Cluster.RaftID,
		BindAddr:  cfg.Cluster.Bind,
		Peers:     peers,
		LogOutput: os.Stdout,
		Verbose:   cfg.Verbose,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster manager: %w", err)
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start cluster: %w", err)
	}

	logger.Info("cluster mode enabled", "raft_id", cfg.Cluster.RaftID, "bind", cfg.Cluster.Bind, "peers", len(peers))
	return mgr, nil
}
