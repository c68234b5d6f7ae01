package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/todoharvest/internal/config"
	"github.com/todoharvest/internal/connectors"
	"github.com/todoharvest/internal/content"
	"github.com/todoharvest/internal/llm"
	"github.com/todoharvest/internal/logging"
	"github.com/todoharvest/internal/pipeline"
	"github.com/todoharvest/internal/retry"
	"github.com/todoharvest/internal/store"
	"github.com/todoharvest/pkg/models"
)

// RunCommand returns the run command
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one harvest pass: collect content, extract todos, reconcile against the store",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Compute the reconciliation plan without applying it",
			},
			&cli.StringFlag{
				Name:    "ai",
				Aliases: []string{"a"},
				Usage:   "Override the AI provider to use",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		Action: runHarvest,
	}
}

func runHarvest(c *cli.Context) error {
	dryRun := c.Bool("dry-run")
	logging.Setup(c.Bool("verbose"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	aiName := cfg.General.DefaultAI
	if override := c.String("ai"); override != "" {
		aiName = override
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := createModelClient(ctx, aiName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	tasks, cleanup, err := createStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	defer cleanup()

	svc := pipeline.NewService(cfg, client, tasks, createCollectors(cfg), pipeline.WithDryRun(dryRun))

	summary, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printSummary(summary, dryRun)
	return nil
}

func createModelClient(ctx context.Context, aiName string, cfg *config.Config) (*llm.ResilientClient, error) {
	aiConfig := cfg.AI[aiName]
	if aiConfig == nil {
		return nil, fmt.Errorf("no configuration for AI provider %q", aiName)
	}

	apiKey, _ := aiConfig["api_key"].(string)
	baseURL, _ := aiConfig["base_url"].(string)
	model, _ := aiConfig["model"].(string)
	temperature, _ := aiConfig["temperature"].(float64)
	maxTokens, _ := aiConfig["max_tokens"].(int64)

	connector, err := connectors.New(ctx, connectors.Options{
		Provider: connectors.Provider(aiName),
		APIKey:   apiKey,
		BaseURL:  baseURL,
		ModelConfig: connectors.ModelConfig{
			Model:       model,
			Temperature: temperature,
			MaxTokens:   int(maxTokens),
		},
	})
	if err != nil {
		return nil, err
	}

	return llm.NewResilientClient(connector,
		llm.WithRetryConfig(retry.ModelConfig()),
		llm.WithRateLimit(cfg.Limits.ModelCallsPerMinute),
		llm.WithTimeout(time.Duration(cfg.Limits.ModelTimeoutSeconds)*time.Second),
	), nil
}

func createStore(ctx context.Context, cfg *config.Config) (store.TaskStore, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return store.NewInMemoryStore(), func() {}, nil
	}
}

func createCollectors(cfg *config.Config) []pipeline.Collector {
	var collectors []pipeline.Collector
	for name, path := range cfg.Sources {
		collectors = append(collectors,
			content.NewFileCollector(models.Source(name), path))
	}
	return collectors
}

func printSummary(summary models.RunSummary, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run, nothing applied)"
	}
	fmt.Printf("Run %s finished in %s%s\n", summary.RunID, summary.Duration.Round(time.Millisecond), mode)
	fmt.Printf("  created:    %d\n", summary.Created)
	fmt.Printf("  duplicates: %d\n", summary.Duplicates)
	fmt.Printf("  completed:  %d\n", summary.Completed)
	fmt.Printf("  tentative:  %d\n", summary.Tentative)
	fmt.Printf("  unchanged:  %d\n", summary.NoOps)
	if summary.FailedOps > 0 {
		fmt.Printf("  failed ops: %d\n", summary.FailedOps)
	}
	for _, warning := range summary.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}
