package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ourstudio-se/go-contentauth"
	"github.com/ourstudio-se/go-contentauth/azure"
	"github.com/ourstudio-se/go-contentauth/internal/config"
	"github.com/ourstudio-se/go-contentauth/internal/logging"
	"github.com/ourstudio-se/go-contentauth/internal/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.yaml (optional, also "+config.PathEnvVar+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auth, err := contentauth.New(
		contentauth.RSA2048_PKCS1v15_SHA256,
		keyBackend(cfg.Keys),
		contentauth.WithLogger(logger.With().Str("component", "authenticator").Logger()),
		contentauth.WithMetrics(contentauth.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	if cfg.Keys.RotationPolicy != "" {
		stop, err := startRotation(auth, cfg.Keys.RotationPolicy, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(auth, cfg.Server, logger.With().Str("component", "server").Logger(), reg)
	return srv.ListenAndServe(ctx)
}

func keyBackend(cfg config.KeysConfig) contentauth.Option {
	if cfg.Backend != config.BackendAzure {
		return contentauth.WithFile(cfg.File)
	}

	opts := []azure.BlobConfigOption{
		azure.WithCredentials(cfg.Azure.AccountName, cfg.Azure.AccountKey),
	}
	if cfg.Azure.ServiceURL != "" {
		opts = append(opts, azure.WithServiceURL(cfg.Azure.ServiceURL))
	}
	if cfg.Azure.Container != "" {
		opts = append(opts, azure.WithContainer(cfg.Azure.Container))
	}
	if cfg.Azure.Blob != "" {
		opts = append(opts, azure.WithFile(cfg.Azure.Blob))
	}

	return azure.WithBlob(opts...)
}

func startRotation(auth *contentauth.Authenticator, name string, logger zerolog.Logger) (func(), error) {
	policy, err := contentauth.ParsePolicy(name)
	if err != nil {
		return nil, err
	}

	kr, err := auth.WithRotationPolicy(policy)
	if err != nil {
		return nil, fmt.Errorf("key rotation: %w", err)
	}

	// failures are logged by the rotator itself
	logger.Info().Str("policy", name).Msg("key rotation scheduled")
	return kr.Stop, nil
}
