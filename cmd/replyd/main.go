// Replyd is a reply-selection daemon. It generates candidate replies for a
// conversation turn, picks one with a contextual bandit, and learns from
// explicit feedback rewards.
//
// Configuration is loaded from an optional YAML file plus environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	replyd
//
//	# Configure via file and environment
//	SERVER_PORT=9090 replyd -config config.yaml
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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/config"
	"github.com/fyrsmithlabs/replyd/internal/feature"
	"github.com/fyrsmithlabs/replyd/internal/generation"
	httpapi "github.com/fyrsmithlabs/replyd/internal/http"
	"github.com/fyrsmithlabs/replyd/internal/interaction"
	"github.com/fyrsmithlabs/replyd/internal/logging"
	"github.com/fyrsmithlabs/replyd/internal/orchestrator"
	"github.com/fyrsmithlabs/replyd/internal/prompt"
	"github.com/fyrsmithlabs/replyd/internal/safety"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  replyd           Start the replyd daemon\n")
			fmt.Fprintf(os.Stderr, "  replyd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("replyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the replyd server and blocks until context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting replyd",
		zap.String("version", version),
		zap.String("policy", cfg.Bandit.Policy),
		zap.String("state_backend", cfg.Bandit.StateBackend),
	)

	// Bandit state persistence
	var store bandit.StateStore
	switch cfg.Bandit.StateBackend {
	case "sqlite":
		s, err := bandit.NewSQLiteStore(cfg.Bandit.StatePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite state store: %w", err)
		}
		defer func() { _ = s.Close() }()
		store = s
	default:
		s, err := bandit.NewFileStore(cfg.Bandit.StatePath)
		if err != nil {
			return fmt.Errorf("failed to open file state store: %w", err)
		}
		store = s
	}

	// Selection policy
	var policy bandit.Policy
	switch cfg.Bandit.Policy {
	case "lints":
		policy, err = bandit.NewLinTS(bandit.LinTSConfig{
			Sigma2:      cfg.Bandit.Sigma2,
			Lambda:      cfg.Bandit.Lambda,
			Temperature: cfg.Bandit.Temperature,
			Seed:        cfg.Bandit.Seed,
		})
	default:
		policy, err = bandit.NewLinUCB(bandit.LinUCBConfig{
			Alpha:       cfg.Bandit.Alpha,
			Lambda:      cfg.Bandit.Lambda,
			Temperature: cfg.Bandit.Temperature,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	manager, err := bandit.NewManager(policy, bandit.ManagerConfig{
		Temperature: cfg.Bandit.Temperature,
		Store:       store,
	}, logger.Named("bandit"))
	if err != nil {
		return fmt.Errorf("failed to create bandit manager: %w", err)
	}

	// Prompt assets
	loader := prompt.NewLoader(cfg.Generation.PromptsDir)
	if cfg.Generation.WatchPrompts {
		go func() {
			if err := loader.Watch(ctx, logger.Named("prompt")); err != nil {
				logger.Warn("prompt watcher stopped", zap.Error(err))
			}
		}()
	}

	generator, err := generation.NewGenerator(generation.Config{
		Model:           cfg.Generation.Model,
		APIKey:          cfg.Generation.APIKey.Value(),
		BaseURL:         cfg.Generation.BaseURL,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: int(cfg.Generation.MaxOutputTokens),
	}, loader, logger.Named("generation"))
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	guard := safety.NewGuard(safety.Config{
		MinScore:  cfg.Safety.MinScore,
		MaxLength: cfg.Safety.MaxLength,
	})

	interactionLog, err := interaction.NewLogger(cfg.Interaction.LogPath)
	if err != nil {
		return fmt.Errorf("failed to open interaction log: %w", err)
	}
	defer func() { _ = interactionLog.Close() }()

	pending := interaction.NewPendingStore(
		cfg.Interaction.PendingCapacity,
		cfg.Interaction.PendingTTL.Duration(),
	)

	orch, err := orchestrator.New(orchestrator.Config{
		Source:    generator,
		Guard:     guard,
		Extractor: feature.NewExtractor(generator.Catalog()),
		Manager:   manager,
		Pending:   pending,
		Log:       interactionLog,
		Logger:    logger.Named("orchestrator"),
		Algo:      cfg.Bandit.Policy,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer)
	prometheus.DefaultRegisterer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "replyd_bandit_state_save_failures",
			Help: "Number of bandit state persistence attempts that failed after an update.",
		},
		func() float64 { return float64(manager.SaveFailures()) },
	))

	srv, err := httpapi.NewServer(orch, metrics, logger.Named("http"), &httpapi.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		DefaultCandidates: cfg.Generation.CandidateCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
