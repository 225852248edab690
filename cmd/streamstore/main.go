// Package main is the entry point for the streamstore server.
//
// streamstore is an append-only property store for (item_id, version)
// streams: clients POST a stream of XML-encoded properties and GET a
// byte-identical stream back while the writer is still appending.
// Configuration is read from CLI flags layered over an optional YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/brynmoore/streamstore/internal/blockpool"
	"github.com/brynmoore/streamstore/internal/config"
	"github.com/brynmoore/streamstore/internal/fileregistry"
	"github.com/brynmoore/streamstore/internal/itemstore"
	"github.com/brynmoore/streamstore/internal/pipeline"
	"github.com/brynmoore/streamstore/internal/server"
	"github.com/brynmoore/streamstore/internal/server/bandwidth"
	"github.com/brynmoore/streamstore/internal/server/ratelimit"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "streamstore: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	fs := flag.NewFlagSet("streamstore", flag.ContinueOnError)
	versionFlag := fs.Bool("version", false, "Print version and exit")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		return err
	}
	if *versionFlag {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	switch cfg.LogLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", cfg.LogLevel)
	}

	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	store, err := itemstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize item store: %w", err)
	}

	registry := fileregistry.New()
	pool := blockpool.New(cfg.Workers)
	defer pool.Close()

	var throttle *bandwidth.Limiter
	if cfg.ReadBytesPerSecond > 0 {
		throttle = bandwidth.NewLimiter(cfg.ReadBytesPerSecond)
		slog.InfoContext(ctx, "egress throttling enabled", "bytes_per_second", cfg.ReadBytesPerSecond)
	}

	writePipeline := &pipeline.WritePipeline{
		Store:            store,
		Registry:         registry,
		Pool:             pool,
		MaxPropertyBytes: int(cfg.MaxPropertyBytes),
		FsyncOnClose:     cfg.FsyncOnClose,
	}
	readPipeline := &pipeline.ReadPipeline{
		Store:    store,
		Registry: registry,
		Pool:     pool,
		Throttle: throttle,
	}

	buildVersion, _, _, _ := getBuildInfo()

	handlers := &server.Handlers{
		Write:   writePipeline,
		Read:    readPipeline,
		Version: buildVersion,
	}

	rl := ratelimit.DefaultConfig()
	defer rl.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(handlers, rl),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "starting server", "addr", cfg.HTTPAddr, "data_dir", cfg.DataDir, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("streamstore %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
