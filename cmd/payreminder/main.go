package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // zoneinfo for minimal container images

	"payment_reminder/internal/app"
	"payment_reminder/internal/infra/bootstrap"
	"payment_reminder/internal/infra/config"
	"payment_reminder/internal/infra/httpapi"
	"payment_reminder/internal/infra/logger"
	"payment_reminder/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation, print the response and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	log := logger.Get().WithField("variant", cfg.Variant)
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Ledger: %s, Notifier: %s",
		cfg.LogLevel, cfg.Environment, cfg.LedgerBackend, cfg.Notifier)

	builder := bootstrap.NewBuilder(cfg, log)

	code := 0
	if *once {
		code = runOnce(cfg, builder, log)
	} else {
		serve(cfg, builder, log)
	}
	if err := builder.Close(); err != nil {
		log.WithError(err).Warn("Error closing ledger")
	}
	os.Exit(code)
}

func runOnce(cfg *config.AppConfig, builder *bootstrap.Builder, log *logrus.Entry) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancelTimeout()

	resp := app.Handle(ctx, builder.Build, log)
	fmt.Println(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func serve(cfg *config.AppConfig, builder *bootstrap.Builder, log *logrus.Entry) {
	exclusive := app.NewExclusive(builder.Build, log)

	runScheduler := scheduler.NewRunScheduler(cfg.CronSpec, cfg.Location, cfg.RunTimeout, func(ctx context.Context) {
		if resp, ok := exclusive.TryInvoke(ctx); ok {
			log.WithField("status", resp.StatusCode).Info("Scheduled run finished")
		}
	}, log)
	if err := runScheduler.Start(); err != nil {
		log.WithError(err).Fatal("Could not start scheduler")
	}

	handler := httpapi.NewHandler(exclusive, cfg.RunTimeout, runScheduler.Next, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	log.Info("Application setup complete. Scheduler and HTTP server are running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	runScheduler.Stop()
	log.Info("Application shut down gracefully.")
}
