// Package main is the entry point for the LoadPay deposits API server.
//
// It loads configuration, builds the Stripe and mail clients, starts the
// background notification dispatcher, wires the webhook and checkout handlers
// into the core HTTP chassis, and serves until interrupted.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// the HTTP listener stops accepting requests, then the dispatcher drains any
// queued notifications before the process exits.
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
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"loadpay/internal/api/handlers"
	"loadpay/internal/config"
	"loadpay/internal/core"
	"loadpay/internal/external"
	"loadpay/internal/notify"
	"loadpay/internal/payment"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("loadpay API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"mail_provider", cfg.Mail.Provider,
	)

	// Outbound HTTP client shared by the Stripe and SendGrid clients. The
	// per-call timeout is a backstop; tighter deadlines come from request
	// contexts.
	httpClient := &http.Client{Timeout: 30 * time.Second}

	stripeClient := external.NewStripeClient(httpClient, external.StripeClientConfig{
		SecretKey:  cfg.Stripe.SecretKey.Unmask(),
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
		Logger:     logger,
	})

	provider, err := buildMailProvider(cfg, httpClient, logger)
	if err != nil {
		return fmt.Errorf("building mail provider: %w", err)
	}

	displayLoc, err := time.LoadLocation(cfg.Notify.DisplayTimezone)
	if err != nil {
		return fmt.Errorf("loading display timezone %q: %w", cfg.Notify.DisplayTimezone, err)
	}

	renderer, err := notify.NewRenderer(displayLoc)
	if err != nil {
		return fmt.Errorf("building notification renderer: %w", err)
	}

	resolver := payment.NewResolver(stripeClient, cfg.Stripe.LookupTimeout, logger)

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Resolver:  resolver,
		Renderer:  renderer,
		Provider:  provider,
		Recipient: cfg.Notify.Recipient,
		QueueSize: cfg.Notify.QueueSize,
		DedupeTTL: cfg.Notify.DedupeTTL,
		Logger:    logger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		dispatcher,
		cfg.Stripe.WebhookSecret.Unmask(),
		logger,
	)
	checkoutHandler := handlers.NewCheckoutHandler(stripeClient, cfg.Checkout.FeePercent, logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		func(r chi.Router) { webhookHandler.RegisterRoutes(r) },
		func(r chi.Router) { checkoutHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	return serve(srv, dispatcher, cfg, logger)
}

// buildMailProvider selects the delivery transport from configuration.
func buildMailProvider(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (external.MailProvider, error) {
	switch cfg.Mail.Provider {
	case "smtp":
		return external.NewSMTPMailer(external.SMTPMailerConfig{
			Host:        cfg.Mail.SMTPHost,
			Port:        cfg.Mail.SMTPPort,
			Username:    cfg.Mail.SMTPUser,
			Password:    cfg.Mail.SMTPPass.Unmask(),
			FromAddress: cfg.Mail.FromAddress,
			FromName:    cfg.Mail.FromName,
			Logger:      logger,
		}), nil
	case "sendgrid":
		return external.NewSendGridClient(httpClient, external.SendGridClientConfig{
			APIKey:      cfg.Mail.SendGridKey.Unmask(),
			FromAddress: cfg.Mail.FromAddress,
			FromName:    cfg.Mail.FromName,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}

// serve runs the HTTP listener and the notification dispatcher until a
// shutdown signal arrives, then stops the listener and drains the queue.
func serve(srv *core.Server, dispatcher *notify.Dispatcher, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
