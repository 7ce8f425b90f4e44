// Package main is the entry point for the whisper-vault background workers:
// the publish worker draining the job queue, and the moderation worker when
// async moderation is enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jonesrussell/whisper-vault/internal/app"
)

// version can be set at build time via -ldflags
var version = "dev"

const flushTimeout = 30 * time.Second

func main() {
	var configPath string
	var flushDedup bool
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.BoolVar(&flushDedup, "flush-dedup", false, "Flush the duplicate-detection cache and exit")
	flag.Parse()

	_ = godotenv.Load()

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to close application: %v\n", closeErr)
		}
	}()

	if flushDedup {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if flushErr := application.FlushDedup(ctx); flushErr != nil {
			application.Logger().Error("Failed to flush duplicate-detection cache")
			os.Exit(1)
		}
		application.Logger().Info("Duplicate-detection cache flushed")
		return
	}

	if runErr := application.RunWorkers(context.Background()); runErr != nil {
		application.Logger().Error("Application error")
		os.Exit(1)
	}
}
