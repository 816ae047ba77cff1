// ABOUTME: Entry point for the onloc location agent daemon
// ABOUTME: Wires storage, provider, session controller, and the control API together

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/kebs/onloc-agent/internal/api"
	"github.com/kebs/onloc-agent/internal/config"
	"github.com/kebs/onloc-agent/internal/control"
	"github.com/kebs/onloc-agent/internal/location"
	"github.com/kebs/onloc-agent/internal/permissions"
	"github.com/kebs/onloc-agent/internal/provider"
	"github.com/kebs/onloc-agent/internal/session"
	"github.com/kebs/onloc-agent/internal/store"
	"github.com/kebs/onloc-agent/internal/vault"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _
  ___  _ __ | | ___   ___
 / _ \| '_ \| |/ _ \ / __|
| (_) | | | | | (_) | (__
 \___/|_| |_|_|\___/ \___|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: onloc-agent <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run      Start the tracking agent")
		fmt.Println("  health   Check whether a running agent responds")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runAgent(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Control:  %s\n", cfg.Control.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Provider: %s\n", cfg.Provider.Source)
	if cfg.Server.Endpoint != "" {
		green.Print("    ▶ ")
		fmt.Printf("Server:   %s\n", cfg.Server.Endpoint)
	}
	fmt.Println()

	logger.Info("starting onloc-agent",
		"config", configPath,
		"control_addr", cfg.Control.Addr,
		"provider", cfg.Provider.Source,
	)

	if err := os.MkdirAll(cfg.Storage.Dir, 0o700); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}

	settings, err := store.Open(filepath.Join(cfg.Storage.Dir, "settings.db"))
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer settings.Close()

	v, err := vault.Open(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("opening credential vault: %w", err)
	}

	// A config-file endpoint only seeds an empty store; an endpoint the
	// user already logged in against is never overwritten from config.
	if cfg.Server.Endpoint != "" && settings.Endpoint(ctx) == "" {
		if err := settings.SetEndpoint(ctx, cfg.Server.Endpoint); err != nil {
			return fmt.Errorf("seeding endpoint: %w", err)
		}
	}

	prov, err := buildProvider(cfg.Provider)
	if err != nil {
		return err
	}

	perms := permissions.NewFileChecker(cfg.Permissions.GrantsFile)
	client := api.NewClient(nil)
	bridge := location.NewBridge(settings, v, client)
	tracker := session.NewTracker(prov, bridge)
	controller := session.NewController(settings, v, perms, tracker, bridge, client)

	// Pick the session back up if tracking was on when we last exited.
	if err := controller.Resume(ctx); err != nil {
		logger.Warn("session resume failed", "error", err)
	}

	ctrl := control.NewServer(controller, settings, v, client, bridge)
	srv := &http.Server{
		Addr:    cfg.Control.Addr,
		Handler: ctrl.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", cfg.Control.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control API: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Stop the runner directly rather than through the controller: the
	// stored tracking flag must survive a daemon restart so Resume can
	// pick the session back up.
	tracker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control API shutdown: %w", err)
	}

	return nil
}

func buildProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Source {
	case "gpsd":
		return provider.NewGpsd(cfg.GpsdAddr), nil
	case "replay":
		route, err := provider.LoadRoute(cfg.RouteFile)
		if err != nil {
			return nil, fmt.Errorf("loading replay route: %w", err)
		}
		return provider.NewReplay(route, cfg.Interval), nil
	default:
		return nil, fmt.Errorf("unknown provider source: %q", cfg.Source)
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Control.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level: h.level,
		attrs: newAttrs,
	}
}

func (h *colorHandler) WithGroup(_ string) slog.Handler {
	return h
}
