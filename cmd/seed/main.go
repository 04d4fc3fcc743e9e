// Command seed loads a development catalog (admin, tags, brands, products
// and site content) into the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/logging"
)

func main() {
	file := flag.String("file", "cmd/seed/catalog.example.yaml", "seed catalog (YAML)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	if err := run(*file, *timeout); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func run(path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New("seed", cfg.LogLevel, cfg.LogFormat)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	doc, err := parseSeed(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	// Seeding always migrates first so a fresh database works.
	cfg.Database.AutoMigrate = true
	stores, closeDB, err := app.OpenStores(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer closeDB()

	kv, err := app.OpenKV(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer, ok := kv.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	application, err := app.New(app.Options{Config: cfg, Stores: stores, KV: kv}, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	sum, err := seed(ctx, application, doc, logger)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"file":    path,
		"created": sum.Created,
		"skipped": sum.Skipped,
	}).Info("seed complete")
	return nil
}
