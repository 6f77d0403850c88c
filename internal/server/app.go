// Package server initializes and runs the reservation auth server.
// It opens and migrates the credential store, wires the auth service to its
// collaborators, serves HTTP, purges expired tokens in the background and
// drains pending mail on shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/dmitrijs2005/reservation/internal/server/auth"
	"github.com/dmitrijs2005/reservation/internal/server/config"
	"github.com/dmitrijs2005/reservation/internal/server/httpapi"
	"github.com/dmitrijs2005/reservation/internal/server/metrics"
	"github.com/dmitrijs2005/reservation/internal/server/notify"
	"github.com/dmitrijs2005/reservation/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/reservation/internal/server/services"
)

const drainTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	auth       *services.AuthService
	dispatcher *notify.Dispatcher
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, rm, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	m := metrics.NewAuth(registry)

	mailer, err := newMailer(c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}
	dispatcher := notify.NewDispatcher(mailer, logger, notify.WithMetrics(m))

	codec, err := auth.NewCodec([]byte(c.SecretKey))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token codec init error: %w", err)
	}
	codes, err := auth.NewCodeGenerator(c.OneTimeTokenLength, c.OneTimeTokenAlphabet)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("code generator init error: %w", err)
	}

	svc := services.NewAuthService(db, rm, auth.NewArgon2idHasher(), codec, codes, dispatcher, logger,
		services.SettingsFromConfig(c), services.WithMetrics(m))

	hs := httpapi.NewServer(c.HTTPAddr, logger, svc, registry, httpapi.Options{
		AllowedOrigins: c.CORSAllowedOrigins,
		RequestTimeout: c.RequestTimeout,
	})

	return &App{config: c, logger: logger, db: db, auth: svc, dispatcher: dispatcher, httpServer: hs}, nil
}

func openStore(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	driverName, err := repomanager.DriverName(c.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driverName, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if c.DatabaseDriver == config.DriverSQLite {
		// transactions must not wait on a second connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return db, rm, nil
}

func newMailer(c *config.Config, logger logging.Logger) (notify.Mailer, error) {
	if c.MailHost == "" {
		return notify.NewLogMailer(logger), nil
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     c.MailHost,
		Port:     c.MailPort,
		Username: c.MailUsername,
		Password: c.MailPassword,
		From:     c.MailFrom,
	})
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", logging.ErrAttrs(err)...)
		cancelFunc()
	}
}

// runJanitor purges expired refresh tokens and reset codes until ctx ends.
func (app *App) runJanitor(ctx context.Context) {
	if app.config.PurgeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(app.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.purge(ctx)
		}
	}
}

func (app *App) purge(ctx context.Context) {
	refresh, codes, err := app.auth.PurgeExpired(ctx)
	if err != nil {
		app.logger.Error(ctx, "purge expired tokens", logging.ErrAttrs(err)...)
		return
	}
	if refresh > 0 || codes > 0 {
		app.logger.Info(ctx, "purged expired tokens", "refresh_tokens", refresh, "reset_codes", codes)
	}
}

// Run serves until ctx is cancelled or a termination signal arrives. The HTTP
// server has drained its requests by the time the dispatcher is closed and
// the database released.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runJanitor(ctx)
	}()

	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := app.dispatcher.Close(drainCtx); err != nil {
		app.logger.Warn(drainCtx, "pending notifications not delivered", logging.ErrAttrs(err)...)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(drainCtx, "db close", logging.ErrAttrs(err)...)
	}

	app.logger.Info(drainCtx, "App stopped")
}
