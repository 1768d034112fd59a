package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DualSignal/internal/domain/repository"
	mid "DualSignal/internal/middleware"
	"DualSignal/internal/scheduler"
	"DualSignal/internal/usecase"
	"DualSignal/pkg/config"
	xhttp "DualSignal/pkg/http"
	applogger "DualSignal/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Run modes.
const (
	ModeAggregator = "aggregator"
	ModeCompute    = "compute"
	ModeLearning   = "learning"
	ModeAPI        = "api"
	ModeScheduler  = "scheduler"
	ModeAll        = "all"
)

// ErrUnknownMode is returned for a mode outside the list above.
var ErrUnknownMode = errors.New("unknown run mode")

// App encapsulates the application lifecycle. Components not used by a mode stay idle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	aggregator *usecase.WindowAggregator
	stream     repository.MarketStream
	pipeline   mid.Proc
	compute    *usecase.ComputeWorker
	learning   *usecase.LearningWorker
	httpServer *xhttp.Server
}

// Components groups what DI builds for the App.
type Components struct {
	Aggregator *usecase.WindowAggregator
	Stream     repository.MarketStream
	Pipeline   mid.Proc
	Compute    *usecase.ComputeWorker
	Learning   *usecase.LearningWorker
	HTTPServer *xhttp.Server
}

// New creates an App from its wired components.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{
		cfg:        cfg,
		log:        log.Named("app"),
		aggregator: c.Aggregator,
		stream:     c.Stream,
		pipeline:   c.Pipeline,
		compute:    c.Compute,
		learning:   c.Learning,
		httpServer: c.HTTPServer,
	}
}

// Run starts the components of mode and blocks until SIGINT/SIGTERM or, with once,
// until the single worker invocation finishes.
func (a *App) Run(mode string, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.shutdown()

	a.log.Info("starting", applogger.String("mode", mode), applogger.Bool("once", once),
		applogger.String("env", a.cfg.Environment), applogger.Strings("watchlist", a.cfg.Watchlist))

	if once {
		return a.runOnce(ctx, mode)
	}

	g, gctx := errgroup.WithContext(ctx)
	switch mode {
	case ModeAggregator:
		g.Go(func() error { return a.runAggregator(gctx) })
	case ModeAPI:
		g.Go(func() error { return a.httpServer.Run(gctx) })
	case ModeCompute, ModeLearning, ModeScheduler:
		sched, err := a.newScheduler(mode)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	case ModeAll:
		sched, err := a.newScheduler(ModeScheduler)
		if err != nil {
			return err
		}
		g.Go(func() error { return a.runAggregator(gctx) })
		g.Go(func() error { return sched.Run(gctx) })
		g.Go(func() error { return a.httpServer.Run(gctx) })
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("stopped with error", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown signal received")
	return nil
}

// runOnce performs a single worker invocation for an external scheduler.
func (a *App) runOnce(ctx context.Context, mode string) error {
	now := time.Now()
	switch mode {
	case ModeCompute:
		res, err := a.compute.Run(ctx, now)
		if err != nil {
			return err
		}
		a.log.Info("compute invocation done", applogger.Int("added", res.Added), applogger.Bool("written", res.Written))
	case ModeLearning:
		res, err := a.learning.Run(ctx, now)
		if err != nil {
			return err
		}
		a.log.Info("learning invocation done", applogger.Int("fitted", len(res.Fitted)), applogger.Bool("written", res.Written))
	default:
		return fmt.Errorf("%w: -once supports %s and %s, got %q", ErrUnknownMode, ModeCompute, ModeLearning, mode)
	}
	return nil
}

// runAggregator blocks until ctx ends. The aggregator closes the stream on its way out.
func (a *App) runAggregator(ctx context.Context) error {
	return a.aggregator.Run(ctx, a.stream, a.pipeline)
}

func (a *App) newScheduler(mode string) (*scheduler.Scheduler, error) {
	s := scheduler.New(a.log, a.cfg.Location())
	if mode == ModeCompute || mode == ModeScheduler {
		if err := s.Add(a.cfg.Scheduler.ComputeSpec, scheduler.ComputeJob(a.compute)); err != nil {
			return nil, err
		}
	}
	if mode == ModeLearning || mode == ModeScheduler {
		if err := s.Add(a.cfg.Scheduler.LearningSpec, scheduler.LearningJob(a.learning)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *App) shutdown() {
	a.log.Info("shutdown complete")
}
