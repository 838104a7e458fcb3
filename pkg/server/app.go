package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RoundPull/internal/domain/repository"
	"RoundPull/internal/handler/ws"
	mid "RoundPull/internal/middleware"
	"RoundPull/internal/usecase"
	pkgcache "RoundPull/pkg/cache"
	pkgch "RoundPull/pkg/clickhouse"
	"RoundPull/pkg/config"
	xhttp "RoundPull/pkg/http"
	pkgkafka "RoundPull/pkg/kafka"
	applogger "RoundPull/pkg/logger"
)

const initTimeout = 15 * time.Second

// Components are the wired parts the App starts and stops. Optional ones are nil when disabled.
type Components struct {
	Processor     *usecase.RoundProcessor
	Pipeline      *mid.RoundPipeline
	Collector     *usecase.RoundCollector
	Hub           *ws.Hub
	Handlers      []xhttp.Handler
	Storage       repository.Storage
	Consumer      *pkgkafka.Consumer
	KafkaHandlers []pkgkafka.MessageHandler
	Producer      *pkgkafka.Producer
	ClickHouse    *pkgch.Client
	Cache         pkgcache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run restores the ledger, starts the poller, the consumer and the HTTP server,
// and blocks until a signal or a fatal server error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		return errors.Join(err, a.shutdown())
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.httpServer.Err():
		runErr = fmt.Errorf("http server: %w", err)
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *App) start(ctx context.Context) error {
	if a.c.Storage != nil {
		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		err := a.c.Storage.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("storage init: %w", err)
		}
		a.l.Info("clickhouse schema ready", applogger.String("database", a.cfg.ClickHouse.Database))
	}

	n, tip, err := a.c.Processor.Restore(ctx, a.cfg.Ledger.RestoreLimit)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if tip != nil {
		a.c.Pipeline.SetWatermark(*tip)
	}
	a.l.Info("engine ready", applogger.Int("restored", n), applogger.String("backend", a.cfg.Backend.Type))

	a.httpServer = xhttp.NewServer(a.c.Handlers,
		xhttp.WithLogger(a.l.With(applogger.String("component", "http"))),
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithCORS(a.cfg.Server.CORS),
	)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server start: %w", err)
	}

	if err := a.c.Collector.Start(ctx); err != nil {
		return fmt.Errorf("collector start: %w", err)
	}

	if a.c.Consumer != nil && len(a.c.KafkaHandlers) > 0 {
		for _, h := range a.c.KafkaHandlers {
			a.c.Consumer.RegisterHandler(h)
		}
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer start: %w", err)
		}
	}
	return nil
}

// shutdown stops producers of work first, then transports, then clients.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collector: %w", err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}

	// The collector publishes through the producer, flush it first.
	a.l.RemoveCollector()

	// The kafka publisher closes the producer it wraps.
	if a.c.Processor != nil {
		a.c.Processor.Close()
	}
	if a.c.Producer != nil && a.cfg.Backend.Type != config.BackendKafka {
		if err := a.c.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka producer: %w", err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if closer, ok := a.c.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.l.Error("shutdown finished with errors", applogger.Error(err))
	} else {
		a.l.Info("shutdown complete")
	}
	return err
}
