// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Command server runs the relying-party trust core REST server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-webauthn-rp/internal/config"
	"github.com/jeremyhahn/go-webauthn-rp/internal/rest"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/authenticator"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ceremony"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ratelimit"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/secret"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/token"
	"github.com/spf13/cobra"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "webauthn-rp",
	Short: "FIDO2/WebAuthn relying-party trust core",
	Long: `webauthn-rp serves the trust core of a FIDO2/WebAuthn relying-party
and authenticator-simulation platform: virtual devices and authenticators,
key lifecycle management, token issuance, and ceremony request caching.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("webauthn-rp server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (defaults and WEBAUTHN_* environment overrides apply when omitted)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	if envConfig := os.Getenv("WEBAUTHN_CONFIG"); envConfig != "" && configPath == "" {
		configPath = envConfig
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := buildLogger(cfg.Logging)
	log.Info("Starting server",
		logger.String("version", version),
		logger.String("key_store", cfg.Keys.Store),
		logger.Int("port", cfg.Server.Port))

	keyStore, err := buildKeyStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize key store: %w", err)
	}

	keySvc := keys.NewService(keyStore,
		keys.WithLifetime(cfg.Keys.Lifetime),
		keys.WithLogger(log))

	tokenOpts := []token.ServiceOption{
		token.WithIssuer(cfg.Token.Issuer),
		token.WithLifetime(cfg.Token.Lifetime),
		token.WithLogger(log),
	}
	if cfg.Token.Audience != "" {
		tokenOpts = append(tokenOpts, token.WithAudience(cfg.Token.Audience))
	}
	tokenSvc := token.NewService(tokenOpts...)

	ceremonies := ceremony.NewCache(ceremony.NewMemoryRequestStore(), ceremony.WithLogger(log))
	registry := authenticator.NewRegistry()

	server, err := rest.NewServer(&rest.Config{
		Port:           cfg.Server.Port,
		Registry:       registry,
		Keys:           keySvc,
		Tokens:         tokenSvc,
		Ceremonies:     ceremonies,
		Version:        version,
		AuthEnabled:    cfg.Auth.Enabled,
		MetricsEnabled: cfg.Metrics.Enabled,
		RateLimit: &ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger:       log,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.StartResourceCollector(shutdownCtx, 30*time.Second)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-signalCh:
		log.Info("Shutdown signal received")
	case err := <-errCh:
		log.Error("Server error", logger.Error(err))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := server.Stop(stopCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// buildLogger constructs the slog adapter from the logging config.
func buildLogger(cfg config.LoggingConfig) logger.Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:   level,
		Handler: handler,
	})
}

func parseLevel(level string) logger.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	case "fatal":
		return logger.LevelFatal
	default:
		return logger.LevelInfo
	}
}

func slogLevel(level logger.Level) slog.Level {
	switch level {
	case logger.LevelDebug:
		return slog.LevelDebug
	case logger.LevelWarn:
		return slog.LevelWarn
	case logger.LevelError, logger.LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildKeyStore constructs the configured key store backend, wrapping the
// vault store with at-rest encryption when a secret passphrase is set.
func buildKeyStore(cfg *config.Config) (keys.Store, error) {
	switch cfg.Keys.Store {
	case "vault":
		var opts []keys.VaultOption
		if cfg.Secret.Enabled {
			encryptor, err := secret.NewEncryptorFromPassphrase(
				[]byte(cfg.Secret.Passphrase), []byte(cfg.Secret.Salt), nil)
			if err != nil {
				return nil, err
			}
			opts = append(opts, keys.WithEncryptor(encryptor))
		}
		return keys.NewVaultStore(&keys.VaultConfig{
			Address:       cfg.Vault.Address,
			Token:         cfg.Vault.Token,
			Namespace:     cfg.Vault.Namespace,
			Mount:         cfg.Vault.Mount,
			Prefix:        cfg.Vault.Prefix,
			TLSSkipVerify: cfg.Vault.TLSSkipVerify,
		}, opts...)
	default:
		return keys.NewMemoryStore(), nil
	}
}
