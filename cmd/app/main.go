package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swap_calc/internal/api"
	"swap_calc/internal/app"
	"swap_calc/internal/domain"
	"swap_calc/internal/infra/host"
	"swap_calc/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 4. Host bridge (optional)
	var bridge domain.HostBridge
	var launches <-chan domain.OrderIdentity
	if cfg.Host.WSURL != "" {
		hb := host.NewBridge(cfg.Host.WSURL, bootstrap.Logger)
		if err := hb.Connect(ctx); err != nil {
			slog.Error("Failed to connect host", slog.Any("error", err))
		}
		defer hb.Disconnect()
		bridge = hb
		launches = hb.Launches()
		slog.InfoContext(ctx, "✅ Host bridge started", slog.String("url", cfg.Host.WSURL))
	} else {
		slog.Warn("No host configured, window close will only be logged")
	}

	// 5. Session
	ctrl := bootstrap.NewController(bridge)
	defer ctrl.Shutdown()

	if launches != nil {
		go startOnLaunch(ctx, ctrl, launches)
	}

	// 6. Presentation adapter
	handler := api.NewHandler(ctrl, bootstrap.Metrics, cfg.Host.BotURL, bootstrap.Logger)
	srv := api.NewServer(cfg.Server.Addr, handler, cfg.Server.AllowedOrigins)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Swap calculator ready. Press Ctrl+C to exit.", slog.String("addr", cfg.Server.Addr))

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", slog.Any("error", err))
	}
}

// startOnLaunch starts the session with the first launch the host sends.
func startOnLaunch(ctx context.Context, ctrl *service.ConversionController, launches <-chan domain.OrderIdentity) {
	select {
	case <-ctx.Done():
		return
	case id := <-launches:
		if err := ctrl.Start(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionStarted) {
			slog.Warn("Session start failed", slog.String("notice", domain.NoticeOf(err)), slog.Any("error", err))
		}
	}
}
