// Command truesplit-auth serves the TrueSplit authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/truesplit/tsauth"
	"github.com/truesplit/tsauth/internal/config"
	"github.com/truesplit/tsauth/internal/httpapi"
	"github.com/truesplit/tsauth/mailer"
	otelexport "github.com/truesplit/tsauth/metrics/export/otel"
	promexport "github.com/truesplit/tsauth/metrics/export/prometheus"
	"github.com/truesplit/tsauth/oauth"
	"github.com/truesplit/tsauth/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "truesplit-auth: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgstore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := pgstore.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var mail tsauth.Mailer
	if cfg.SMTP != nil {
		m, err := mailer.NewSMTPMailer(*cfg.SMTP)
		if err != nil {
			return err
		}
		mail = m
	} else {
		logger.Warn("smtp not configured, otp codes will be logged")
		mail = mailer.NewLogMailer(logger)
	}

	engine, err := tsauth.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithUserStore(pgstore.NewUserStore(db)).
		WithMailer(mail).
		WithAuditSink(tsauth.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	go tsauth.NewOTPSweeper(engine, 0, logger).Run(ctx)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promexport.NewPrometheusExporter(engine).Handler()
	}
	if cfg.OTLPMetrics != nil {
		mp, err := otelexport.NewMeterProvider(ctx, "truesplit-auth", cfg.OTLPMetrics.Endpoint, cfg.OTLPMetrics.Interval)
		if err != nil {
			return fmt.Errorf("otlp metrics: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := mp.Shutdown(flushCtx); err != nil {
				logger.Warn("otlp metrics shutdown", "error", err)
			}
		}()

		exp, err := otelexport.NewOTelExporter(mp.Meter(otelexport.ScopeName), engine)
		if err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		defer exp.Close()
		logger.Info("otlp metrics enabled", "endpoint", cfg.OTLPMetrics.Endpoint)
	}

	var provider httpapi.OAuthProvider
	if cfg.OAuth != nil {
		g, err := oauth.NewGoogle(*cfg.OAuth)
		if err != nil {
			return err
		}
		provider = g
	} else {
		logger.Info("google oauth disabled")
	}

	api := httpapi.New(httpapi.Options{
		Engine:      engine,
		OAuth:       provider,
		Metrics:     metricsHandler,
		Cookies:     cfg.Cookie,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})
	srv := httpapi.NewHTTPServer(cfg.Addr, api.Routes())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h)
}
