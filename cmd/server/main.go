// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/melodystream/internal/api/rest"
	"github.com/osa030/melodystream/internal/api/ws"
	"github.com/osa030/melodystream/internal/app/filter"
	"github.com/osa030/melodystream/internal/app/library"
	"github.com/osa030/melodystream/internal/app/playback"
	"github.com/osa030/melodystream/internal/app/session"
	"github.com/osa030/melodystream/internal/infra/auth"
	"github.com/osa030/melodystream/internal/infra/config"
	"github.com/osa030/melodystream/internal/infra/logger"
	"github.com/osa030/melodystream/internal/infra/rediscache"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

var (
	app        = kingpin.New("melodystream-server", "MelodyStream music streaming server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").Envar("MELODYSTREAM_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available playlist filters and exit")

	// migrate command
	migrateCmd      = app.Command("migrate", "Apply or roll back database migrations")
	migrateRollback = migrateCmd.Flag("rollback", "Roll back the latest migration").Bool()
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	closer, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if command == migrateCmd.FullCommand() {
		if err := migrate(cfg, *migrateRollback); err != nil {
			zlog.Error().Msgf("Migration failed: %v", err)
			closer.Close()
			os.Exit(1)
		}
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// initLogger applies the command-line overrides on top of the log config.
func initLogger(cfg *config.Config) (io.Closer, error) {
	loggerConfig := logger.Config{
		Output:     cfg.Log.Output,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	return logger.Init(loggerConfig)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if err := validateFilterConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	ctx := context.Background()

	store, err := sqlite.Open(ctx, cfg.Database.Path, sqlite.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer store.Close()

	// A nil *LikeCache must not reach the service as a non-nil interface.
	var cache library.LikeCache
	if cfg.Redis.Enabled {
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			zlog.Warn().Msgf("Like cache disabled: %v", err)
		} else {
			defer c.Close()
			cache = c
		}
	}

	svc := library.NewService(store, cfg, cache)
	for _, f := range svc.Filters() {
		zlog.Info().Msgf("Playlist filter enabled: %s", f.Name())
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	registry := session.NewRegistry(svc, session.Config{
		Player: playback.Config{
			DefaultVolume: cfg.Player.DefaultVolume,
			EventBuffer:   cfg.Player.EventBuffer,
			StoreTimeout:  cfg.Player.StoreTimeout,
		},
		IdleTimeout:      cfg.Player.IdleTimeout,
		BroadcastTimeout: cfg.Player.BroadcastTimeout,
	})

	api := rest.NewHandler(svc, issuer, rest.Options{
		AdminToken:         cfg.Auth.AdminToken,
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		LoginBurst:         cfg.Auth.LoginBurst,
		CORSOrigins:        cfg.Server.CORSOrigins,
		TrustedProxies:     cfg.Server.TrustedProxies,
	})
	player := ws.NewHandler(api.Authenticator(), registry, svc, ws.Options{
		CommandRate:    cfg.Player.CommandRate,
		CommandBurst:   cfg.Player.CommandBurst,
		AllowedOrigins: cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Player.StoreTimeout,
	})

	serverAddr := cfg.Server.Addr
	// h2c lets HTTP/2 clients talk to the API without TLS.
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(api.Router(player), &http2.Server{}),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		registry.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close player sessions first so their sockets are released before the server drains
	if err := registry.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to close player sessions: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// migrate applies pending migrations or rolls back the latest one.
func migrate(cfg *config.Config, rollback bool) error {
	ctx := context.Background()

	// Open applies pending migrations.
	store, err := sqlite.Open(ctx, cfg.Database.Path, sqlite.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return err
	}
	defer store.Close()

	if rollback {
		if err := sqlite.RollbackMigration(ctx, store.DB()); err != nil {
			return err
		}
	}

	version, err := sqlite.CurrentVersion(ctx, store.DB())
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Database %s at schema version %d", cfg.Database.Path, version)
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return errors.Newf("unknown filter %q", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", filterName)
		}
	}

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
