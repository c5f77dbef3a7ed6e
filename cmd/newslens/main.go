package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newslens-app/newslens/internal/analyzer"
	"github.com/newslens-app/newslens/internal/archive"
	"github.com/newslens-app/newslens/internal/auth"
	"github.com/newslens-app/newslens/internal/config"
	"github.com/newslens-app/newslens/internal/database"
	"github.com/newslens-app/newslens/internal/email"
	"github.com/newslens-app/newslens/internal/logging"
	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/server"
)

const janitorInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogJSON)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		return
	}
	defer db.Close()

	verifier, err := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, "")
	if err != nil {
		logger.Error("init token verifier", "issuer", cfg.Auth.Issuer, "error", err)
		return
	}

	payments := payment.NewClient(payment.Config{
		SecretKey:        cfg.Stripe.SecretKey,
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		BasicPriceID:     cfg.Stripe.BasicPriceID,
		ProPriceID:       cfg.Stripe.ProPriceID,
		ProAnnualPriceID: cfg.Stripe.ProAnnualPriceID,
		TeamPriceID:      cfg.Stripe.TeamPriceID,
		SuccessURL:       cfg.Stripe.SuccessURL,
		CancelURL:        cfg.Stripe.CancelURL,
	})

	var emailClient *email.Client
	if cfg.Email.PostmarkToken != "" {
		emailClient = email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail, cfg.Email.PortalURL)
	}

	deadLetter := archive.NewDeadLetter(archive.Config{
		S3: archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		},
		Passphrase: cfg.Archive.Passphrase,
	}, logger.With("component", "archive"))
	if deadLetter == nil {
		logger.Warn("dead-letter archive not configured, unresolvable webhook events are log-only")
	}

	srv := server.New(db, verifier, server.Config{
		PortalReturnURL: cfg.Email.PortalURL,
		Payments:        payments,
		Analyzer:        analyzer.NewService(analyzer.Config{BaseURL: cfg.Analyzer.BaseURL, APIKey: cfg.Analyzer.APIKey}),
		Email:           emailClient,
		DeadLetter:      deadLetter,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Janitor: expired sync leases and stale rate-limit windows.
	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := srv.LeaseStore().DeleteExpired(ctx); err != nil {
					logger.Error("sweep sync leases", "error", err)
				} else if n > 0 {
					logger.Debug("swept sync leases", "count", n)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}
}
