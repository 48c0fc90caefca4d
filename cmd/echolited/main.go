// Command echolited is the echolite server daemon: it loads configuration
// (spec.md §6.6), starts the protocol listener, the HTTP observability
// plane, and the background health checker, then waits for a shutdown
// signal. Wiring pattern grounded on the teacher's cmd/dbbouncer/main.go
// (load config, construct components, start listeners, wait on signals,
// shut down in reverse order), with the CLI surface itself built on
// github.com/spf13/cobra the way riftdata-rift's cmd/rift/main.go does.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"echolite/internal/auth"
	"echolite/internal/backend/sqlitebackend"
	"echolite/internal/config"
	"echolite/internal/health"
	"echolite/internal/httpapi"
	"echolite/internal/metrics"
	"echolite/internal/server"
)

var (
	cfgFile  string
	bindFlag string
	password string
	logLevel string
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "echolited",
	Short: "echolite server: a password-authenticated, single-connection SQLite-over-TCP daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.Flags().StringVar(&bindFlag, "bind", "", "address to listen on (host:port, bare IP, or bare port)")
	rootCmd.Flags().StringVar(&password, "password", "", "shared password clients must authenticate with")
	rootCmd.Flags().StringVar(&logLevel, "log", "", "log level: debug, info, warn, error")
}

func serve() error {
	cfg, err := config.Load(cfgFile, bindFlag, password, logLevel)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var level slog.LevelVar
	level.Set(config.ParseLogLevel(cfg.LogLevel))
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))

	addr, err := config.ParseBindAddress(cfg.Bind)
	if err != nil {
		return fmt.Errorf("parsing bind address: %w", err)
	}
	if !config.IsLoopback(addr) {
		log.Warn("binding to a non-loopback address; the wire protocol carries no transport encryption", "addr", addr)
	}

	mc := metrics.New()

	sp := auth.NewSecurePassword([]byte(cfg.Password))
	if sp.IsEmpty() {
		log.Warn("authorization password is not set; clients may authenticate with an empty password")
	}
	limiter := auth.NewLimiter(int64(cfg.HashConcurrency))
	srv := server.New(sp, limiter, auth.DefaultParams, mc, log)
	if err := srv.Listen(addr); err != nil {
		return fmt.Errorf("starting protocol listener: %w", err)
	}

	pinger, err := sqlitebackend.OpenPinger(cfg.DBPath)
	if err != nil {
		srv.Stop()
		return fmt.Errorf("opening health-check handle: %w", err)
	}
	checker := health.NewChecker(pinger, mc, cfg.HealthInterval, 2*time.Second, log)
	checker.Start()

	httpSrv := httpapi.New(cfg.HTTPBind, checker, mc, cfg.DBPath, log)
	httpSrv.Start()

	var watcher *config.Watcher
	if cfgFile != "" {
		watcher, err = config.NewWatcher(cfgFile, log, func(newLevel string, _ int, _ time.Duration) {
			level.Set(config.ParseLogLevel(newLevel))
			log.Info("log level updated by hot reload", "level", newLevel)
		})
		if err != nil {
			log.Warn("config hot-reload not available", "err", err)
		}
	}

	log.Info("echolite ready", "bind", addr, "http_bind", cfg.HTTPBind, "db", cfg.DBPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())

	if watcher != nil {
		watcher.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Stop(shutdownCtx)
	checker.Stop()
	pinger.Close()
	srv.Stop()

	log.Info("echolite stopped")
	return nil
}
