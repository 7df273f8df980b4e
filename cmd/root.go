package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/draftscore/internal/analysis"
	"github.com/joescharf/draftscore/internal/llm"
	"github.com/joescharf/draftscore/internal/output"
	"github.com/joescharf/draftscore/internal/resolver"
	"github.com/joescharf/draftscore/internal/review"
	"github.com/joescharf/draftscore/internal/scoring"
	"github.com/joescharf/draftscore/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store
	reviewSvc *review.Service
	backend   scoring.Service
	cleanups  []func()

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "draftscore",
	Short: "Paragraph-level quality scoring for documents under revision",
	Long: `draftscore keeps stable identities for the paragraphs of a document
across edits, scores each paragraph version on actionability, helpfulness,
grounding and verifiability, and tracks which feedback the author has seen
or dismissed.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/draftscore/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "draftscore")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DRAFTSCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "draftscore"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	defaults := analysis.DefaultConfig()

	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "draftscore.db"))
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("resolver.threshold", resolver.DefaultThreshold)
	viper.SetDefault("analysis.batch_size", defaults.BatchSize)
	viper.SetDefault("analysis.concurrency", defaults.Concurrency)
	viper.SetDefault("analysis.poll_interval", defaults.PollInterval)
	viper.SetDefault("analysis.base_timeout", defaults.BaseTimeout)
	viper.SetDefault("analysis.per_paragraph_timeout", defaults.PerParagraphTimeout)
	viper.SetDefault("analysis.max_retries", defaults.MaxRetries)
	viper.SetDefault("analysis.retry_delay", defaults.RetryDelay)
	viper.SetDefault("scoring.backend", "marker")
	viper.SetDefault("scoring.url", "http://localhost:8080/scoring/v1")
	viper.SetDefault("scoring.pending_polls", 1)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	logger = newLogger(os.Stderr, level, viper.GetString("log.format"))
	slog.SetDefault(logger)

	// Store and services are built lazily, only when commands need them.
	// This allows config/version commands to run without a db.
}

// newLogger builds a slog logger writing to w. Unknown levels fall back to
// info; format "json" selects the JSON handler.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	cleanups = append(cleanups, func() { _ = s.Close() })
	return dataStore, nil
}

// analysisConfig reads the analysis.* keys.
func analysisConfig() analysis.Config {
	return analysis.Config{
		BatchSize:           viper.GetInt("analysis.batch_size"),
		Concurrency:         viper.GetInt("analysis.concurrency"),
		PollInterval:        viper.GetDuration("analysis.poll_interval"),
		BaseTimeout:         viper.GetDuration("analysis.base_timeout"),
		PerParagraphTimeout: viper.GetDuration("analysis.per_paragraph_timeout"),
		MaxRetries:          viper.GetInt("analysis.max_retries"),
		RetryDelay:          viper.GetDuration("analysis.retry_delay"),
	}
}

// getBackend returns the configured scoring backend.
func getBackend() (scoring.Service, error) {
	if backend != nil {
		return backend, nil
	}

	name := viper.GetString("scoring.backend")
	switch name {
	case "marker":
		backend = scoring.NewMarkerService(viper.GetInt("scoring.pending_polls"))
	case "http":
		url := viper.GetString("scoring.url")
		if url == "" {
			return nil, fmt.Errorf("scoring.url must be set for the http backend")
		}
		backend = scoring.NewHTTPService(url, logger)
	case "llm":
		apiKey := viper.GetString("anthropic.api_key")
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("llm backend needs anthropic.api_key or ANTHROPIC_API_KEY")
		}
		svc := scoring.NewLLMService(llm.NewClient(apiKey, viper.GetString("anthropic.model")), logger)
		cleanups = append(cleanups, svc.Close)
		backend = svc
	default:
		return nil, fmt.Errorf("unknown scoring backend %q (want marker, http or llm)", name)
	}

	ui.VerboseLog("Scoring backend: %s", name)
	return backend, nil
}

// getService returns the shared review service, wiring the store, resolver,
// scoring backend and analysis client on first call.
func getService() (*review.Service, error) {
	if reviewSvc != nil {
		return reviewSvc, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(viper.GetFloat64("resolver.threshold"))
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	svc, err := getBackend()
	if err != nil {
		return nil, err
	}
	client, err := analysis.NewClient(svc, analysisConfig(), logger)
	if err != nil {
		return nil, err
	}

	reviewSvc = review.NewService(s, res, client, logger)
	return reviewSvc, nil
}

// closeDeps releases everything the lazy getters opened, newest first.
func closeDeps() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
	dataStore, reviewSvc, backend = nil, nil, nil
}
