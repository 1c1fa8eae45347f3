package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	sessioninadapter "komerge/internal/modules/session/adapter/in"
	sessionoutadapter "komerge/internal/modules/session/adapter/out"
	sessionservice "komerge/internal/modules/session/service"
	sessionusecase "komerge/internal/modules/session/usecase"
	statsinadapter "komerge/internal/modules/stats/adapter/in"
	statsoutadapter "komerge/internal/modules/stats/adapter/out"
	statsin "komerge/internal/modules/stats/port/in"
	statsservice "komerge/internal/modules/stats/service"
	statsusecase "komerge/internal/modules/stats/usecase"
	"komerge/internal/platform/clock"
	"komerge/internal/platform/config"
	"komerge/internal/platform/id"
	"komerge/internal/platform/logctx"
	"komerge/internal/platform/metrics"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	Config    config.Config
	StatsCLI  statsinadapter.CLIHandler
	Router    http.Handler
	Scheduler *sessionservice.CleanupScheduler
	Sessions  *sessionservice.SessionStore
	Metrics   *metrics.Recorder
}

func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.SessionsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	clk := clock.SystemClock{}
	rec := metrics.New()

	statsUC := newStatsUsecase()

	files := sessionoutadapter.NewDiskFileStore(cfg.SessionsDir(), cfg.MaxUploadBytes)
	store := sessionservice.NewSessionStore(clk, id.UUID{}, files, statsUC, sessionservice.TTLs{
		Session: cfg.SessionTTL,
		File:    cfg.FileTTL,
	}, rec)
	scheduler := sessionservice.NewCleanupScheduler(store, files, clk, cfg.CleanupInterval, cfg.FileTTL, rec)
	sessionUC := sessionusecase.NewInteractor(store, scheduler, files, statsUC, rec)

	handler := sessioninadapter.NewHTTPHandler(sessionUC, sessioninadapter.Limits{
		SessionTTL:      cfg.SessionTTL,
		FileTTL:         cfg.FileTTL,
		CleanupInterval: cfg.CleanupInterval,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		BasePath:        cfg.BasePath,
	})
	router := sessioninadapter.NewRouter(handler, sessioninadapter.RouterOptions{
		BasePath:    cfg.BasePath,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     rec.Handler(),
		Logger:      logger,
	})

	return &App{
		Config:    cfg,
		StatsCLI:  statsinadapter.NewCLIHandler(statsUC),
		Router:    router,
		Scheduler: scheduler,
		Sessions:  store,
		Metrics:   rec,
	}, nil
}

// NewStatsCLI wires only the offline merge commands; it touches no session state.
func NewStatsCLI() statsinadapter.CLIHandler {
	return statsinadapter.NewCLIHandler(newStatsUsecase())
}

func newStatsUsecase() statsin.Usecase {
	return statsusecase.NewInteractor(statsservice.NewMergeService(statsoutadapter.NewSQLiteOpener()))
}

// Serve runs the HTTP server and the cleanup scheduler until ctx is cancelled,
// then drains in-flight requests and lets the current sweep finish.
func Serve(ctx context.Context, app *App) error {
	log := logctx.FromContext(ctx)
	srv := &http.Server{
		Addr:              app.Config.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("base_path", app.Config.BasePath).Msg("komerge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	return g.Wait()
}
