package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"toolrepro/internal/agent"
	"toolrepro/internal/config"
	"toolrepro/internal/llm"
	"toolrepro/internal/llm/openai"
	"toolrepro/internal/llm/openaigo"
	"toolrepro/internal/logger"
	"toolrepro/internal/mcp"
	"toolrepro/internal/tool"
	"toolrepro/internal/tool/builtin"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	baseURL     string
	model       string
	apiKey      string
	backend     string
	convention  string
	stream      bool
	temperature float32
	maxTokens   int
	timeout     time.Duration
	verbose     bool
	noColor     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "toolrepro",
		Short: "Reproduce empty replies after tool results on OpenAI-compatible endpoints",
		Long: `toolrepro sends one tool-enabled chat request, runs the requested get_weather
call locally, returns the result and prints the model's final reply verbatim.
An empty reply is printed as "" and is not treated as a failure.`,
		Args:          cobra.NoArgs,
		RunE:          runScenario,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (YAML or TOML); default searches ./toolrepro.yaml and friends")
	flags.StringVar(&baseURL, "base-url", "", "Endpoint base URL (default "+config.DefaultBaseURL+")")
	flags.StringVar(&model, "model", "", "Model to use (default "+config.DefaultModel+")")
	flags.StringVar(&apiKey, "api-key", "", "API key (default $"+config.DefaultAPIKeyEnv+", then $"+config.FallbackAPIKeyEnv+")")
	flags.StringVar(&backend, "backend", "", "Client library: go-openai or openai-go")
	flags.StringVar(&convention, "convention", "", "How tool results are sent: tool or user")
	flags.BoolVar(&stream, "stream", false, "Collect replies over SSE streaming")
	flags.Float32Var(&temperature, "temperature", config.DefaultTemperature, "Sampling temperature")
	flags.IntVar(&maxTokens, "max-tokens", 0, "Maximum completion tokens (0 = endpoint default)")
	flags.DurationVar(&timeout, "timeout", 0, "HTTP timeout per request (0 = none)")
	flags.BoolVar(&verbose, "verbose", false, "Enable verbose output (debug mode)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the scenario once with the configured convention (default command)",
		Args:  cobra.NoArgs,
		RunE:  runScenario,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "compare",
		Short: "Run the scenario once per tool-result convention and compare the replies",
		Args:  cobra.NoArgs,
		RunE:  runCompare,
	})
	rootCmd.AddCommand(newMockCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newLogger() *logger.Logger {
	logLevel := logger.LevelInfo
	if verbose {
		logLevel = logger.LevelDebug
	}
	log := logger.NewLogger(os.Stdout, logLevel)
	log.SetColorMode(!noColor && !color.NoColor)
	return log
}

// loadConfig reads .env and the config file, then applies flags given on the command line.
func loadConfig(cmd *cobra.Command, log *logger.Logger) (*config.Config, error) {
	loaded, err := config.LoadDotEnv()
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		log.Debug("Loaded environment from %s", p)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		var path string
		cfg, path, err = config.LoadWithDefaults()
		if path != "" {
			log.Debug("Using config %s", path)
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Endpoint.BaseURL = baseURL
	}
	if flags.Changed("model") {
		cfg.Endpoint.Model = model
	}
	if flags.Changed("api-key") {
		cfg.Endpoint.APIKey = apiKey
	}
	if flags.Changed("backend") {
		cfg.Endpoint.Backend = backend
	}
	if flags.Changed("convention") {
		cfg.Scenario.Convention = llm.ToolResultConvention(convention)
	}
	if flags.Changed("stream") {
		cfg.Endpoint.Stream = stream
	}
	if flags.Changed("temperature") {
		cfg.Endpoint.Temperature = temperature
	}
	if flags.Changed("max-tokens") {
		cfg.Endpoint.MaxTokens = maxTokens
	}
	if flags.Changed("timeout") {
		cfg.Endpoint.Timeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (llm.Client, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("API key required (set %s or %s, or use --api-key)", cfg.Endpoint.APIKeyEnv, config.FallbackAPIKeyEnv)
	}

	ep := cfg.Endpoint
	switch ep.Backend {
	case config.BackendOpenAIGo:
		return openaigo.NewClient(key, ep.Model, openaigo.Options{BaseURL: ep.BaseURL, Timeout: ep.Timeout}), nil
	default:
		return openai.NewClient(key, ep.Model, openai.Options{BaseURL: ep.BaseURL, Timeout: ep.Timeout}), nil
	}
}

// newRunner wires the client, get_weather and any MCP tools into a Runner.
// The returned cleanup closes MCP sessions.
func newRunner(ctx context.Context, cfg *config.Config, log *logger.Logger) (*agent.Runner, func(), error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Created %s client (model: %s, base URL: %s)", client.Provider(), client.Model(), cfg.Endpoint.BaseURL)

	registry := tool.NewRegistry()
	if err := registry.Register(builtin.NewWeatherTool()); err != nil {
		return nil, nil, err
	}

	manager := mcp.NewManager(registry, log)
	if err := manager.Initialize(ctx, cfg.MCP); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := manager.Close(); err != nil {
			log.Warn("Closing MCP servers: %v", err)
		}
	}
	log.Info("Registered %d tool(s): %v", len(registry.Names()), registry.Names())

	runner := agent.NewRunner(client, registry, agent.Config{
		SystemPrompt: cfg.Scenario.SystemPrompt,
		UserPrompt:   cfg.Scenario.UserPrompt,
		Convention:   cfg.Scenario.Convention,
		Temperature:  cfg.Endpoint.Temperature,
		MaxTokens:    cfg.Endpoint.MaxTokens,
		Stream:       cfg.Endpoint.Stream,
	}, log)
	return runner, cleanup, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	runner, cleanup, err := newRunner(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := runner.Run(cmd.Context())
	if err != nil {
		return describe(err)
	}

	if report.Empty {
		log.Warn("Reproduced: the endpoint answered the tool result with empty content")
	}
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return err
	}

	runner, cleanup, err := newRunner(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	reports, err := runner.Compare(cmd.Context())
	if err != nil {
		return describe(err)
	}

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		empty := "no"
		if r.Empty {
			empty = "yes"
		}
		rows = append(rows, []string{
			string(r.Convention),
			empty,
			fmt.Sprintf("%d", len(r.FinalContent)),
			fmt.Sprintf("%d", r.Turns),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	log.Table([]string{"convention", "empty", "chars", "requests", "duration"}, rows)
	return nil
}

// describe prefixes err with the failure kind so the exit message says what went wrong.
func describe(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted: %w", err)
	case errors.Is(err, llm.ErrAuthentication):
		return fmt.Errorf("authentication rejected, check the API key: %w", err)
	case errors.Is(err, tool.ErrUnsupportedTool):
		return fmt.Errorf("model requested a tool that is not bound: %w", err)
	default:
		return err
	}
}
