package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/gateway"
	"github.com/compresr/llm-relay/internal/monitoring"
)

func runServe(args []string) int {
	opts, rest, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.help {
		printHelp()
		return 0
	}
	if len(rest) > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument: %s\n", rest[0])
		return 1
	}

	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	monitoring.SetupLogging(cfg.Monitoring.LogLevel, cfg.Monitoring.LogFormat, os.Stdout)

	a, err := newApp(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize gateway")
		return 1
	}
	gateway.LogStartup(cfg, a.strategies, a.telemetry, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, a); err != nil {
		log.Error().Err(err).Msg("gateway stopped with error")
		return 1
	}
	return 0
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, a *app) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn().Err(err).Msg("failed to close collaborators")
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      a.gateway.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", config.DefaultShutdownTimeout).Msg("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
