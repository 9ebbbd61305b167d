package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/observability"
	"github.com/yungbote/organizer-backend/internal/server"
	"github.com/yungbote/organizer-backend/internal/sse"
	"github.com/yungbote/organizer-backend/internal/utils"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *config.Pipeline
	Router   *gin.Engine
	Repos    Repos
	Services Services
	Handlers Handlers
	SSEHub   *sse.Hub

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading pipeline configuration...")
	cfg, err := config.LoadPipeline(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "organizer-backend",
		Environment: utils.GetEnv("APP_ENV", "development", nil),
		Version:     utils.GetEnv("APP_VERSION", "dev", nil),
	})

	hub := sse.NewHub(log)

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(theDB, log, serviceset, hub)

	router := server.NewRouter(server.RouterConfig{
		Log:     log,
		Jobs:    handlerset.Jobs,
		SSE:     handlerset.SSE,
		Health:  handlerset.Health,
		GinMode: utils.GetEnv("GIN_MODE", gin.DebugMode, nil),
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Router:       router,
		Repos:        reposet,
		Services:     serviceset,
		Handlers:     handlerset,
		SSEHub:       hub,
		otelShutdown: otelShutdown,
	}, nil
}

// NewLocal wires the pipeline against a local sqlite database, without the
// HTTP surface. Used by the one-shot CLI commands.
func NewLocal(dbPath string) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.LoadPipeline(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	theDB, err := db.OpenSQLite(dbPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

// Start launches the background pieces: the job worker pool and the redis
// forwarder feeding the SSE hub.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Ollama != nil {
		checkCtx, done := context.WithTimeout(ctx, 5*time.Second)
		if err := a.Services.Ollama.Healthy(checkCtx); err != nil {
			a.Log.Warn("Ollama is not reachable, local summarization will fail", "error", err)
		} else if ok, err := a.Services.Ollama.HasModel(checkCtx); err == nil && !ok {
			a.Log.Warn("Configured ollama model is not pulled", "model", a.Services.Ollama.Model())
		}
		done()
	}

	if a.Services.Worker != nil {
		a.Services.Worker.Start(ctx)
	}
	if a.Services.Bus != nil && a.SSEHub != nil {
		if err := a.Services.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			a.Log.Warn("SSE forwarder failed to start", "error", err)
		}
	}
}

// Run serves HTTP until SIGINT/SIGTERM, then drains in-flight requests.
func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := &http.Server{Addr: addr, Handler: a.Router}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigCh:
		a.Log.Info("Shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Bus != nil {
		_ = a.Services.Bus.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
