// Package main is the CLI entry point for the reasoning engine, the
// conversational workflow-planning service behind the planner dashboard.
//
// Start the server:
//
//	reasoning-engine serve --config engine.yaml
//
// Configuration can also come from environment variables; see
// internal/config for the recognized keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/gateway"
	"github.com/opkey-ai/reasoning-engine/internal/llm"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/orchestrator"
	"github.com/opkey-ai/reasoning-engine/internal/planner"
	"github.com/opkey-ai/reasoning-engine/internal/preprocess"
	"github.com/opkey-ai/reasoning-engine/internal/referencing"
	"github.com/opkey-ai/reasoning-engine/internal/search"
	"github.com/opkey-ai/reasoning-engine/internal/storage"
	"github.com/opkey-ai/reasoning-engine/internal/tools"
	"github.com/opkey-ai/reasoning-engine/internal/validation"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reasoning-engine",
		Short: "Conversational workflow planning engine",
		Long: `The reasoning engine turns natural-language requests into executable
workflow definitions. It plans with an LLM tool loop, validates the
result through a multi-stage pipeline, and streams progress to clients
over a websocket protocol.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reasoning-engine %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket/REST server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML or JSON5)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	metrics := observability.NewMetrics()

	_, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "reasoning-engine",
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.TraceSampling,
		EnableInsecure: cfg.Observability.TraceInsecure,
	})
	defer func() {
		_ = shutdownTracer(context.Background()) //nolint:errcheck
	}()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	plannerProvider := llm.NewOpenAIClient(llm.ClientConfig{
		BaseURL:      cfg.LLM.Planner.BaseURL,
		APIKey:       cfg.LLM.Planner.APIKey,
		DefaultModel: cfg.LLM.Planner.Model,
		Timeout:      cfg.LLM.Planner.Timeout,
	})
	validatorProvider := llm.NewOpenAIClient(llm.ClientConfig{
		BaseURL:      cfg.LLM.Validator.BaseURL,
		APIKey:       cfg.LLM.Validator.APIKey,
		DefaultModel: cfg.LLM.Validator.Model,
		Timeout:      cfg.LLM.Validator.Timeout,
	})

	webSearcher, err := search.NewWebSearcher(cfg.Search, logger)
	if err != nil {
		return err
	}
	taskSearcher, err := search.NewTaskBlockSearcher(cfg.Search, logger)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewWebSearchTool(webSearcher),
		tools.NewTaskBlockSearchTool(taskSearcher),
		tools.ClarifyTool{},
		tools.ThinkApproachTool{},
		tools.PresentAnswerTool{},
		tools.SubmitWorkflowTool{},
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	executor := tools.NewExecutor(registry, &tools.ExecutorConfig{
		MaxConcurrency: cfg.Planner.MaxToolConcurrency,
	})

	// One router serves as the event emitter for every component;
	// it fans frames out to whichever connection owns the conversation.
	router := gateway.NewEventRouter(store, logger)

	plan := planner.NewPlanner(planner.Options{
		Provider:      plannerProvider,
		Model:         cfg.LLM.Planner.Model,
		Registry:      registry,
		Executor:      executor,
		Summarizer:    planner.NewSummarizer(plannerProvider, cfg.LLM.Planner.Model, logger),
		TokenLimit:    cfg.Planner.TokenSummarizationLimit,
		FewShot:       planner.NewFewShotRetriever(cfg.Planner.FewShotAPIURL, cfg.Planner.FewShotAPIKey),
		Emitter:       router,
		Logger:        logger,
		Metrics:       metrics,
		MaxIterations: cfg.Planner.MaxIterations,
	})

	pipeline := validation.NewPipeline(logger, metrics).
		Add(validation.NewStructuralValidator(cfg.Features.StrictValidation)).
		Add(validation.NewEdgeConnectionValidator()).
		Add(validation.NewLLMBlockValidator(validatorProvider, cfg.LLM.Validator.Model, taskSearcher, 0, logger))

	var refAgent *referencing.Agent
	if cfg.Features.EnableReferencing {
		refAgent = referencing.NewAgent(plannerProvider, cfg.LLM.Planner.Model, router, logger)
	}

	preprocessor, err := preprocess.New(cfg.Features.QueryRefinementMode, plannerProvider, cfg.LLM.Planner.Model, router, logger)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:        store,
		Planner:      plan,
		Pipeline:     pipeline,
		JobName:      planner.NewJobNameGenerator(validatorProvider, cfg.LLM.Validator.Model, logger),
		Referencing:  refAgent,
		Preprocessor: preprocessor,
		Emitter:      router,
		Logger:       logger,
		Metrics:      metrics,
	})

	server := gateway.NewServer(gateway.Options{
		Config:         cfg.Server,
		Conversations:  orch,
		Router:         router,
		Store:          store,
		Logger:         logger,
		Metrics:        metrics,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
	})

	logger.Info(ctx, "starting reasoning engine",
		"version", version,
		"storage_driver", cfg.Storage.Driver,
		"planner_model", cfg.LLM.Planner.Model,
		"validator_model", cfg.LLM.Validator.Model,
	)
	return server.Run(ctx)
}

func newStore(ctx context.Context, cfg *config.Config) (storage.ConversationStore, error) {
	switch cfg.Storage.Driver {
	case "redis":
		return storage.NewRedisStore(ctx, cfg.Storage.RedisURL, cfg.Storage.TTL)
	default:
		return storage.NewMemoryStore(cfg.Storage.TTL), nil
	}
}
