package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fincon/internal/amqp"
	"fincon/internal/auth"
	"fincon/internal/backend"
	"fincon/internal/cache"
	"fincon/internal/cli"
	"fincon/internal/config"
	apphttp "fincon/internal/http"
	"fincon/internal/ledger"
	applog "fincon/internal/log"
	"fincon/internal/services"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	cli.MustValidate(logger, cfg.Validate)

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close backend", applog.FieldError, err)
		}
	}()

	identity := auth.NewLocal(store.Backend, nil, auth.LocalConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		SessionTTL: cfg.SessionTTL,
		ResetTTL:   cfg.ResetTokenTTL,
	})
	caches := cache.NewManager()
	caches.Register(identity.Caches()...)
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	// The server's queue is exclusive to this process: every replica sees
	// every change and wakes its own subscribers.
	var (
		bus       *amqp.Client
		publisher ledger.Publisher
	)
	if cfg.AMQPURL != "" {
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "")
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", applog.FieldError, err)
			bus = nil
		} else {
			publisher = bus
			defer bus.Close()
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange)
		}
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger.Logger.With(applog.FieldComponent, applog.ComponentLedger))}
	if publisher != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(publisher))
	}
	l := ledger.New(store.Backend, ledgerOpts...)
	accounts := services.NewAccountService(store.Backend, store.Backend, identity, publisher, l)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Ready:              store.Ping,
	}, identity, l, accounts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fincon server", "port", cfg.Port, "backend", cfg.DataBackend, "amqp_enabled", bus != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if bus != nil {
		g.Go(func() error {
			err := bus.ConsumeChanges(gctx, relay(l))
			if err != nil && !errors.Is(err, context.Canceled) {
				// Live updates from other replicas stop; local ones keep working.
				logger.Error("Change relay stopped", applog.FieldError, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// relay wakes local subscribers for changes made by other processes.
func relay(l *ledger.Ledger) func(context.Context, *amqp.ChangeMessage) error {
	return func(ctx context.Context, msg *amqp.ChangeMessage) error {
		if msg.Origin == l.Origin() {
			return nil
		}
		l.Touch(msg.UserID)
		return nil
	}
}
