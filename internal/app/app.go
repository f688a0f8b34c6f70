package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/crudkit/internal/base"
	"github.com/simp-lee/crudkit/internal/config"
	"github.com/simp-lee/crudkit/internal/domain"
	"github.com/simp-lee/crudkit/internal/middleware"
	"github.com/simp-lee/crudkit/internal/module/user"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	readHeaderTimeout   = 10 * time.Second
	idleTimeout         = 2 * time.Minute
	shutdownTimeout     = 5 * time.Second
)

// App is a wired crudkit server.
type App struct {
	engine *gin.Engine
	db     *gorm.DB
	log    *logger.Logger
	cfg    *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Replaced in tests.
var (
	newHTTPServer = func(addr string, h http.Handler, timeout time.Duration) httpServer {
		srv := &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       idleTimeout,
		}
		if timeout > 0 {
			srv.ReadTimeout, srv.WriteTimeout = timeout, timeout
		}
		return srv
	}
	notifyContext = signal.NotifyContext
)

// New validates cfg, opens the logger and the database, migrates the user
// table when enabled and mounts every module. Anything opened before a
// failure is closed again.
func New(cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}()

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	undo = append(undo, func() { closeLogger(log) })

	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	undo = append(undo, func() { closeDB(db, log.Logger) })

	migrated, err := config.MigrateModels(db, &cfg.Database, &domain.User{})
	if err != nil {
		return nil, err
	}
	if migrated {
		log.Info("auto migration completed")
	}

	engine, err := newEngine(cfg, db, log.Logger)
	if err != nil {
		return nil, err
	}
	return &App{engine: engine, db: db, log: log, cfg: cfg}, nil
}

func newEngine(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{}),
		middleware.Logger(log),
	)

	users := user.NewUserService(base.NewGormService[domain.User](db), cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit)
	deps := &RouteDeps{
		Modules: []Module{user.NewModule(user.NewUserHandler(users))},
		DB:      db,
	}
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	return engine, nil
}

// Handler returns the router without starting a listener.
func (a *App) Handler() http.Handler {
	return a.engine
}

// Run serves until SIGINT or SIGTERM, shuts the server down within five
// seconds and then closes the database and the logger. A listener failure is
// returned after the same cleanup.
func (a *App) Run() error {
	if a == nil || a.cfg == nil || a.engine == nil {
		return errors.New("app is not initialized")
	}
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := a.serve(ctx)
	a.close()
	return err
}

func (a *App) serve(ctx context.Context) error {
	log := a.logger()
	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	srv := newHTTPServer(addr, a.engine, serverTimeout(a.cfg.Server.Timeout))

	failed := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.Any("error", err))
	}
	return nil
}

func (a *App) close() {
	log := a.logger()
	if a.db != nil {
		closeDB(a.db, log)
	}
	log.Info("server stopped")
	if a.log != nil {
		closeLogger(a.log)
	}
}

func (a *App) logger() *slog.Logger {
	if a.log == nil {
		return slog.Default()
	}
	return a.log.Logger
}

func closeDB(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		log.Error("database close error", slog.Any("error", err))
		return
	}
	log.Info("database connection closed")
}

func closeLogger(log *logger.Logger) {
	if err := log.Close(); err != nil {
		slog.Error("logger close error", slog.Any("error", err))
	}
}

// serverTimeout parses server.timeout. Blank, invalid and negative values
// give 0, which keeps the default read and write timeouts.
func serverTimeout(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
