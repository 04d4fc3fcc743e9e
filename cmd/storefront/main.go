// Command storefront serves the shop, the brand dashboard API and the
// provider webhooks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/app/httpapi"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/logging"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	flag.Parse()

	if err := run(*migrateOnly); err != nil {
		log.Fatalf("storefront: %v", err)
	}
}

func run(migrateOnly bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New("storefront", cfg.LogLevel, cfg.LogFormat)

	stores, closeDB, err := app.OpenStores(ctx, cfg, logger, migrateOnly)
	if err != nil {
		return err
	}
	defer closeDB()
	if migrateOnly {
		logger.Info("migrations applied")
		return nil
	}

	kv, err := app.OpenKV(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer, ok := kv.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	integrations, err := app.BuildIntegrations(ctx, cfg, kv, logger.Named("integrations"))
	if err != nil {
		return fmt.Errorf("integrations: %w", err)
	}

	application, err := app.New(app.Options{
		Config:       cfg,
		Stores:       stores,
		KV:           kv,
		Integrations: integrations,
		CheckOrigin:  originChecker(cfg),
	}, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewServer(application, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}
	defer handler.Close()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).WithField("services", application.Services()).Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("application stop")
	}
	logger.Info("storefront stopped")
	return nil
}

// originChecker allows WebSocket upgrades from the configured CORS origins,
// or same-host only when none are set.
func originChecker(cfg *config.Config) func(r *http.Request) bool {
	origins := cfg.CORSOrigins()
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
