package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"SentinelX/internal/usecase"
	"SentinelX/pkg/cache"
	pkgch "SentinelX/pkg/clickhouse"
	"SentinelX/pkg/config"
	xhttp "SentinelX/pkg/http"
	pkgkafka "SentinelX/pkg/kafka"
	applogger "SentinelX/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	root       *applogger.Logger
	log        *applogger.Logger
	views      *usecase.ViewManager
	httpServer *xhttp.Server

	sink       *usecase.CommitSink
	slotMirror *usecase.SlotMirror
	consumer   *pkgkafka.Consumer
	producer   *pkgkafka.Producer
	cache      cache.Service
	chClient   *pkgch.Client
}

// Option attaches an optional component to the App. Nil components are
// ignored.
type Option func(*App)

func WithCommitSink(s *usecase.CommitSink) Option { return func(a *App) { a.sink = s } }

func WithSlotMirror(m *usecase.SlotMirror) Option { return func(a *App) { a.slotMirror = m } }

func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

func WithProducer(p *pkgkafka.Producer) Option { return func(a *App) { a.producer = p } }

func WithCache(c cache.Service) Option { return func(a *App) { a.cache = c } }

func WithClickHouse(c *pkgch.Client) Option { return func(a *App) { a.chClient = c } }

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, views *usecase.ViewManager, srv *xhttp.Server, opts ...Option) *App {
	a := &App{
		cfg:        cfg,
		root:       l,
		log:        l.With(applogger.String("component", "app")),
		views:      views,
		httpServer: srv,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the background workers and the HTTP server, then blocks until
// ctx is done or an interrupt arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Workers outlive ctx so that commits from the final unmounts still drain.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	g, gctx := errgroup.WithContext(workCtx)

	if a.slotMirror != nil {
		g.Go(func() error { return a.slotMirror.Run(gctx) })
	}
	if a.sink != nil {
		g.Go(func() error { return a.sink.Run(gctx) })
		a.log.Info("commit sink started", applogger.String("backend", a.cfg.Sink.Type))
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			cancelWork()
			_ = g.Wait()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topic))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancelWork()
		_ = g.Wait()
		return errors.Join(err, a.closeClients())
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case <-gctx.Done():
		a.log.Warn("background worker stopped")
	}
	return a.shutdown(cancelWork, g)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(cancelWork context.CancelFunc, g *errgroup.Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.log.Info("shutting down...")
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if err := a.views.Close(ctx); err != nil {
		a.log.Warn("views close error", applogger.Error(err))
		errs = append(errs, err)
	}

	cancelWork()
	if err := g.Wait(); err != nil {
		a.log.Warn("worker stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeClients())
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeClients() error {
	var errs []error
	// pending log digests go out through the producer
	a.root.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
