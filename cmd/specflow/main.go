// Command specflow runs spec-gated workflows.
//
// Usage:
//
//	specflow run --manifest workflows/text_extraction.yaml --input ./input --output ./output
//	specflow validate --manifest workflows/text_extraction.yaml
//	specflow runs --db specflow.db
//	specflow version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/specflow/agents"
	"github.com/BaSui01/specflow/config"
	"github.com/BaSui01/specflow/engine"
	"github.com/BaSui01/specflow/internal/metrics"
	"github.com/BaSui01/specflow/llm"
	"github.com/BaSui01/specflow/manifest"
	"github.com/BaSui01/specflow/store"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "validate":
		os.Exit(cmdValidate(os.Args[2:]))
	case "runs":
		os.Exit(cmdRuns(os.Args[2:]))
	case "version":
		fmt.Printf("specflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `specflow - spec-gated workflow runner

Commands:
  run       Execute a workflow manifest
  validate  Parse and validate a workflow manifest
  runs      List recent runs from the audit store
  version   Print version information

Run 'specflow <command> -h' for command flags.
`)
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	manifestPath := fs.String("manifest", "", "Workflow manifest (overrides config)")
	inputFolder := fs.String("input", "", "Input folder (overrides config)")
	outputFolder := fs.String("output", "", "Output folder (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *manifestPath != "" {
		cfg.Pipeline.Manifest = *manifestPath
	}
	if *inputFolder != "" {
		cfg.Pipeline.InputFolder = *inputFolder
	}
	if *outputFolder != "" {
		cfg.Pipeline.OutputFolder = *outputFolder
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	graph, err := manifest.LoadFile(cfg.Pipeline.Manifest, logger)
	if err != nil {
		logger.Error("Failed to load manifest", zap.Error(err))
		return 1
	}

	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return 1
	}
	defer db.Close()

	specs := engine.NewSpecRegistry()
	if err := agents.RegisterSpecs(specs); err != nil {
		logger.Error("Failed to register specs", zap.Error(err))
		return 1
	}

	client := llm.NewClient(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)

	registry, err := agents.NewRegistry(client, logger)
	if err != nil {
		logger.Error("Failed to build agent registry", zap.Error(err))
		return 1
	}

	var callback engine.StepCallback
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
		callback = collector.Callback(graph.Name())
	}

	state := engine.NewState()
	state.Data[agents.KeyInputFolder] = cfg.Pipeline.InputFolder
	state.Data[agents.KeyOutputFolder] = cfg.Pipeline.OutputFolder
	state.Config[agents.ConfigAPIKey] = cfg.LLM.APIKey
	state.Config[agents.ConfigModel] = cfg.LLM.Model
	state.Config[agents.ConfigTemperature] = cfg.LLM.Temperature
	for name, value := range graph.Budgets() {
		state.Budgets[name] = value
	}
	for name, value := range graph.Defaults() {
		if _, exists := state.Data[name]; !exists {
			state.Data[name] = value
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := engine.NewOrchestrator(graph, specs, registry, logger)
	record := orchestrator.Run(ctx, state, callback)

	if err := db.SaveRun(context.Background(), record); err != nil {
		logger.Error("Failed to persist run", zap.Error(err))
	}
	if items, ok := state.GetSlice(agents.KeyExtractedItems); ok {
		if err := db.SaveItems(context.Background(), record.RunID, items); err != nil {
			logger.Error("Failed to persist items", zap.Error(err))
		}
	}

	printRunSummary(record)
	if record.Status != engine.RunStatusCompleted {
		return 1
	}
	return 0
}

func cmdValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	manifestPath := fs.String("manifest", "workflows/text_extraction.yaml", "Workflow manifest")
	fs.Parse(args)

	logger := zap.NewNop()
	graph, err := manifest.LoadFile(*manifestPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid manifest: %v\n", err)
		return 1
	}

	fmt.Printf("Manifest OK: %s (%d steps, entry %s)\n", graph.Name(), graph.StepCount(), graph.Entry())
	for _, name := range graph.StepNames() {
		step, _ := graph.Step(name)
		fmt.Printf("  %-12s agent=%s retries=%d\n", name, step.AgentName, step.Retry.MaxAttempts)
	}
	return 0
}

func cmdRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "specflow.db", "SQLite database path")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	fs.Parse(args)

	db, err := store.Open(*dbPath, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}

	fmt.Printf("%-36s  %-20s  %-10s  %8s  %s\n", "RUN ID", "WORKFLOW", "STATUS", "ATTEMPTS", "ERROR")
	for _, run := range runs {
		fmt.Printf("%-36s  %-20s  %-10s  %8d  %s\n",
			run.RunID, run.WorkflowName, run.Status, run.Attempts, run.Error)
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build()
}

func printRunSummary(record *engine.RunRecord) {
	fmt.Printf("\nRun %s: %s\n", record.RunID, record.Status)
	if record.Error != "" {
		fmt.Printf("  error: %s\n", record.Error)
	}
	for _, attempt := range record.Steps {
		marker := "ok"
		if attempt.Status != engine.StepStatusPassed {
			marker = "FAIL"
		}
		fmt.Printf("  [%s] %s attempt %d (%s)\n",
			marker, attempt.StepID, attempt.Attempt,
			attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Millisecond))
	}
}
