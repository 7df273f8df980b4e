package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "draftscore"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage draftscore configuration.

Running bare 'draftscore config' is the same as 'draftscore config show'.
Every key can also be set through the environment: analysis.batch_size
becomes DRAFTSCORE_ANALYSIS_BATCH_SIZE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# draftscore configuration
# See: draftscore config show (for effective values and sources)

# State/data directory (default: ~/.config/draftscore)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/draftscore/draftscore.db)
# db_path: {{ .DBPath }}

# Logging: level is debug, info, warn or error; format is text or json
log:
  level: "{{ .LogLevel }}"
  format: "{{ .LogFormat }}"

# Paragraph identity: minimum similarity for an edited paragraph to keep its ID
resolver:
  threshold: {{ .Threshold }}

# Analysis jobs. A job times out after base_timeout + per_paragraph_timeout x paragraphs.
analysis:
  batch_size: {{ .BatchSize }}
  concurrency: {{ .Concurrency }}
  poll_interval: "{{ .PollInterval }}"
  base_timeout: "{{ .BaseTimeout }}"
  per_paragraph_timeout: "{{ .PerParagraphTimeout }}"
  max_retries: {{ .MaxRetries }}
  retry_delay: "{{ .RetryDelay }}"

# Scoring backend: marker (deterministic, offline), http or llm
scoring:
  backend: "{{ .Backend }}"
  url: "{{ .URL }}"
  pending_polls: {{ .PendingPolls }}

# Anthropic settings for the llm backend (api_key falls back to ANTHROPIC_API_KEY)
anthropic:
  model: "{{ .Model }}"

# API server port
port: {{ .Port }}
`

type configTemplateData struct {
	StateDir            string
	DBPath              string
	LogLevel            string
	LogFormat           string
	Threshold           float64
	BatchSize           int
	Concurrency         int
	PollInterval        string
	BaseTimeout         string
	PerParagraphTimeout string
	MaxRetries          int
	RetryDelay          string
	Backend             string
	URL                 string
	PendingPolls        int
	Model               string
	Port                int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:            viper.GetString("state_dir"),
		DBPath:              viper.GetString("db_path"),
		LogLevel:            viper.GetString("log.level"),
		LogFormat:           viper.GetString("log.format"),
		Threshold:           viper.GetFloat64("resolver.threshold"),
		BatchSize:           viper.GetInt("analysis.batch_size"),
		Concurrency:         viper.GetInt("analysis.concurrency"),
		PollInterval:        viper.GetDuration("analysis.poll_interval").String(),
		BaseTimeout:         viper.GetDuration("analysis.base_timeout").String(),
		PerParagraphTimeout: viper.GetDuration("analysis.per_paragraph_timeout").String(),
		MaxRetries:          viper.GetInt("analysis.max_retries"),
		RetryDelay:          viper.GetDuration("analysis.retry_delay").String(),
		Backend:             viper.GetString("scoring.backend"),
		URL:                 viper.GetString("scoring.url"),
		PendingPolls:        viper.GetInt("scoring.pending_polls"),
		Model:               viper.GetString("anthropic.model"),
		Port:                viper.GetInt("port"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeys lists the keys shown by config show, in display order.
var configKeys = []string{
	"state_dir",
	"db_path",
	"log.level",
	"log.format",
	"resolver.threshold",
	"analysis.batch_size",
	"analysis.concurrency",
	"analysis.poll_interval",
	"analysis.base_timeout",
	"analysis.per_paragraph_timeout",
	"analysis.max_retries",
	"analysis.retry_delay",
	"scoring.backend",
	"scoring.url",
	"scoring.pending_polls",
	"anthropic.api_key",
	"anthropic.model",
	"port",
}

// envVarFor returns the environment variable viper consults for key.
func envVarFor(key string) string {
	return "DRAFTSCORE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, key := range configKeys {
		val := viper.Get(key)
		if key == "anthropic.api_key" && viper.GetString(key) != "" {
			val = "********"
		}
		source := detectSource(key, envVarFor(key), fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", key, val, source)
	}

	if err := validateConfig(); err != nil {
		ui.Warning("Invalid configuration: %v", err)
	}
	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

// validateConfig checks the values that would otherwise only fail when a
// command first builds the analysis client or resolver.
func validateConfig() error {
	var errs []error
	if err := analysisConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if th := viper.GetFloat64("resolver.threshold"); th <= 0 || th > 1 {
		errs = append(errs, fmt.Errorf("resolver.threshold must be in (0, 1], got %v", th))
	}
	switch b := viper.GetString("scoring.backend"); b {
	case "marker", "http", "llm":
	default:
		errs = append(errs, fmt.Errorf("scoring.backend must be marker, http or llm, got %q", b))
	}
	return errors.Join(errs...)
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'draftscore config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
