// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// bolt - a minimal nostr relay.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"bolt/config"
	"bolt/logging"
	"bolt/relay"
	"bolt/store"
)

func main() {
	configPath := flag.String("config", getEnvOr("CONFIG_PATH", "config.yml"), "path to the YAML config file (env: CONFIG_PATH)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal("loading config: %v", err)
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}

	logging.SetVerbose(cfg.Verbose)

	backend := store.OpenBackend(cfg.DBPath)
	gw := store.New(backend)
	if err := gw.Init(); err != nil {
		logging.Fatal("initializing event store: %v", err)
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.NewServer(cfg, gw)

	logging.Info("starting %s %s on %s", ProjectName, cfg.Version, cfg.Addr())
	if err := srv.Start(ctx); err != nil {
		logging.Fatal("relay exited: %v", err)
	}
	logging.Info("shut down cleanly")
}

// getEnvOr returns the environment variable value or a default if not set
func getEnvOr(env, defaultValue string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return defaultValue
}
