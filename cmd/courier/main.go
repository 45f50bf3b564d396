// Package main is the entry point for courier.
// It runs the publisher (HTTP ingress that enqueues work items), the
// subscriber (queue consumer that processes and acknowledges them), or both
// in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"courier-go/internal/api"
	"courier-go/internal/banner"
	"courier-go/internal/bootstrap"
	"courier-go/internal/config"
	"courier-go/internal/consumer"
	"courier-go/internal/processor"
	"courier-go/internal/producer"
	"courier-go/internal/queue"
)

const roleAll = "all"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to configuration file (optional)")
	role := flag.String("role", string(config.RolePublisher), "publisher, subscriber or all")
	flag.Parse()

	os.Exit(run(*configPath, *role))
}

func run(configPath, role string) int {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger := bootstrap.NewLogger(&cfg.Logger, os.Stdout)

	roles, err := parseRoles(role)
	if err != nil {
		logger.Error("invalid role", "error", err)
		return 1
	}
	for _, r := range roles {
		if err := cfg.Validate(r); err != nil {
			logger.Error("invalid configuration", "role", r, "error", err)
			return 1
		}
	}

	banner.Print(os.Stdout, role)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var res bootstrap.Resources
	defer res.Close()

	var deps bootstrap.Deps
	if err := deps.OpenQueue(ctx, cfg, &res, logger); err != nil {
		logger.Error("failed to initialize queue", "error", err)
		return 1
	}

	deps.OpenNotifier(cfg, &res, logger)

	serverDeps := api.ServerDeps{
		Config: &cfg.Server,
		Logger: logger,
	}

	var loop *consumer.Loop
	for _, r := range roles {
		switch r {
		case config.RolePublisher:
			service := producer.NewService(deps.Queue, logger)
			serverDeps.ItemHandler = api.NewItemHandler(service, logger)

		case config.RoleSubscriber:
			if err := deps.OpenOutcomes(ctx, cfg, &res, logger); err != nil {
				logger.Error("failed to initialize outcome store", "error", err)
				return 1
			}
			if deps.Outcomes != nil {
				serverDeps.OutcomeHandler = api.NewOutcomeHandler(deps.Outcomes, logger)
			}

			proc, err := processor.New(&cfg.Inference, logger)
			if err != nil {
				logger.Error("failed to initialize processor", "error", err)
				return 1
			}

			opts := []consumer.Option{consumer.WithNotifier(deps.Notifier)}
			if deps.Outcomes != nil {
				opts = append(opts, consumer.WithOutcomeRepository(deps.Outcomes))
			}
			loop = consumer.NewLoop(deps.Queue, proc, consumer.Config{
				BatchSize:         cfg.Consumer.BatchSize,
				VisibilityTimeout: cfg.Consumer.VisibilityTimeout,
				WaitTime:          cfg.Consumer.WaitTime,
				NotifyTimeout:     cfg.Consumer.NotifyTimeout,
			}, logger, opts...)
		}
	}

	server := api.NewServer(serverDeps)

	// Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	// Start queue depth monitor
	if sp, ok := deps.Queue.(queue.StatsProvider); ok && loop != nil {
		go consumer.NewMonitor(sp, cfg.Consumer.StatsInterval, logger).Run(ctx)
	}

	// Start consumer loop
	loopErr := make(chan error, 1)
	if loop != nil {
		go func() {
			loopErr <- loop.Run(ctx)
		}()
	}

	logger.Info("courier started",
		"role", role,
		"address", cfg.Server.Address(),
		"queueBackend", cfg.Queue.Backend,
	)

	exitCode := 0
	loopDone := loop == nil
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	case err := <-loopErr:
		loopDone = true
		if err != nil {
			logger.Error("consumer loop failed", "error", err)
			exitCode = 1
		}
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Consumer.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Wait for the in-flight batch to settle
	if !loopDone {
		select {
		case err := <-loopErr:
			if err != nil {
				logger.Error("consumer loop failed", "error", err)
				exitCode = 1
			}
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout exceeded before in-flight batch settled")
		}
	}

	logger.Info("courier stopped", "exitCode", exitCode)
	return exitCode
}

// parseRoles expands the -role flag.
func parseRoles(role string) ([]config.Role, error) {
	switch role {
	case string(config.RolePublisher):
		return []config.Role{config.RolePublisher}, nil
	case string(config.RoleSubscriber):
		return []config.Role{config.RoleSubscriber}, nil
	case roleAll:
		return []config.Role{config.RolePublisher, config.RoleSubscriber}, nil
	default:
		return nil, errors.New("role must be publisher, subscriber or all")
	}
}
