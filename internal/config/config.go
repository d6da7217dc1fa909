// Package config handles configuration management for studio.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a studio run.
type Config struct {
	// ProjectPath is the engine project's script root (PROJECT_PATH).
	ProjectPath string

	// ScriptsPath is where generated scripts go, relative to ProjectPath.
	ScriptsPath string

	// EngineCLI is the engine executable used for tests and builds.
	EngineCLI string

	// BuildTarget is the engine build target.
	BuildTarget string

	// ReportsDir receives CI reports and artifacts.
	ReportsDir string

	// WorkDir is the studio workspace holding state files.
	WorkDir string

	// EscalationThreshold is the consecutive identical failures tolerated per agent.
	EscalationThreshold int

	LLM    LLMConfig
	Retry  RetryConfig
	Backup BackupConfig
	Notify NotifyConfig
	S3     S3Config
	Server ServerConfig
	Paths  Paths

	// Debug enables verbose logging
	Debug bool
}

// LLMConfig holds local model server settings.
type LLMConfig struct {
	// BaseURL is the Ollama server root.
	BaseURL string

	// Model is used for free-form generation.
	Model string

	// CoderModel is used for patch generation through the chat API.
	CoderModel string

	// APIKey is sent as a bearer token to the chat API.
	APIKey string

	// Timeout overrides the prompt-length based timeout when non-zero.
	Timeout time.Duration
}

// RetryConfig holds stage fallback settings.
type RetryConfig struct {
	// Attempts per agent stage.
	Attempts int

	// Delay between stage attempts.
	Delay time.Duration
}

// BackupConfig holds snapshot settings.
type BackupConfig struct {
	Root string
	Keep int
}

// NotifyConfig holds notification channels. Empty values disable a channel.
type NotifyConfig struct {
	SMTPServer     string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SMTPTo         string
	SlackURL       string
	TelegramToken  string
	TelegramChatID string
}

// S3Config holds object storage settings for artifact publishing.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// ServerConfig holds the HTTP surfaces.
type ServerConfig struct {
	WebhookToken  string
	WebhookPort   int
	MonitorPort   int
	DashboardPort int
}

// Paths locates state files. Load resolves them against WorkDir.
type Paths struct {
	Status          string
	Journal         string
	Trace           string
	Memory          string
	Store           string
	Index           string
	ProjectMap      string
	PipelineConfig  string
	Patches         string
	Changelog       string
	TeamLeadJournal string
	Metrics         string
	Scores          string
	Lore            string
	Lorebook        string
	Assets          string
	AssetCatalog    string
	Inbox           string
}

// DefaultPaths returns the workspace-relative file layout.
func DefaultPaths() Paths {
	return Paths{
		Status:          "pipeline_status.json",
		Journal:         "agent_journal.log",
		Trace:           "agent_trace.log",
		Memory:          "agent_memory.json",
		Store:           "studio.db",
		Index:           "feature_index.json",
		ProjectMap:      "project_map.json",
		PipelineConfig:  "pipeline_config.yaml",
		Patches:         "patches",
		Changelog:       "CHANGELOG.md",
		TeamLeadJournal: "journal.json",
		Metrics:         "metrics.json",
		Scores:          "agent_scores.json",
		Lore:            "lore",
		Lorebook:        "lorebook.json",
		Assets:          "Assets",
		AssetCatalog:    "asset_catalog.json",
		Inbox:           "requests",
	}
}

// Resolve joins every relative path onto dir.
func (p Paths) Resolve(dir string) Paths {
	join := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(dir, s)
	}
	return Paths{
		Status:          join(p.Status),
		Journal:         join(p.Journal),
		Trace:           join(p.Trace),
		Memory:          join(p.Memory),
		Store:           join(p.Store),
		Index:           join(p.Index),
		ProjectMap:      join(p.ProjectMap),
		PipelineConfig:  join(p.PipelineConfig),
		Patches:         join(p.Patches),
		Changelog:       join(p.Changelog),
		TeamLeadJournal: join(p.TeamLeadJournal),
		Metrics:         join(p.Metrics),
		Scores:          join(p.Scores),
		Lore:            join(p.Lore),
		Lorebook:        join(p.Lorebook),
		Assets:          join(p.Assets),
		AssetCatalog:    join(p.AssetCatalog),
		Inbox:           join(p.Inbox),
	}
}

// Load reads configuration from viper and environment variables.
// It does not validate; commands that drive the engine call Validate.
func Load() (*Config, error) {
	workDir := getStringOrDefault("work_dir", ".")
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectPath:         orDefault(viper.GetString(ProjectFlagKey), getEnvOrViper("PROJECT_PATH", "project_path")),
		ScriptsPath:         orDefault(getEnvOrViper("UNITY_SCRIPTS_PATH", "scripts_path"), filepath.Join("Assets", "Scripts")),
		EngineCLI:           getEnvOrViper("UNITY_CLI", "engine_cli"),
		BuildTarget:         orDefault(getEnvOrViper("BUILD_TARGET", "build_target"), "WebGL"),
		ReportsDir:          orDefault(getEnvOrViper("CI_REPORTS_DIR", "reports_dir"), "ci_reports"),
		WorkDir:             absWork,
		EscalationThreshold: getIntOrDefault("escalation.threshold", 3),
		Debug:               os.Getenv("STUDIO_DEBUG") == "1",

		LLM: LLMConfig{
			BaseURL:    orDefault(getEnvOrViper("OLLAMA_URL", "llm.base_url"), "http://localhost:11434"),
			Model:      getStringOrDefault("llm.model", "mistral"),
			CoderModel: getStringOrDefault("llm.coder_model", "deepseek-coder:6.7b"),
			APIKey:     orDefault(getEnvOrViper("OPENAI_API_KEY", "llm.api_key"), "ollama"),
			Timeout:    getDurationOrDefault("llm.timeout", 0),
		},

		Retry: RetryConfig{
			Attempts: getIntOrDefault("retry.attempts", 3),
			Delay:    getDurationOrDefault("retry.delay", time.Second),
		},

		Backup: BackupConfig{
			Root: getStringOrDefault("backup.root", "_backups"),
			Keep: getIntOrDefault("backup.keep", 5),
		},

		Notify: NotifyConfig{
			SMTPServer:     getEnvOrViper("SMTP_SERVER", "notify.smtp_server"),
			SMTPPort:       getEnvIntOrViper("SMTP_PORT", "notify.smtp_port", 0),
			SMTPUser:       getEnvOrViper("SMTP_USER", "notify.smtp_user"),
			SMTPPass:       getEnvOrViper("SMTP_PASS", "notify.smtp_pass"),
			SMTPTo:         getEnvOrViper("SMTP_TO", "notify.smtp_to"),
			SlackURL:       getEnvOrViper("SLACK_URL", "notify.slack_url"),
			TelegramToken:  getEnvOrViper("TELEGRAM_TOKEN", "notify.telegram_token"),
			TelegramChatID: getEnvOrViper("TELEGRAM_CHAT_ID", "notify.telegram_chat_id"),
		},

		S3: S3Config{
			Endpoint:  getEnvOrViper("S3_ENDPOINT", "s3.endpoint"),
			AccessKey: getEnvOrViper("S3_ACCESS_KEY", "s3.access_key"),
			SecretKey: getEnvOrViper("S3_SECRET_KEY", "s3.secret_key"),
			Bucket:    getEnvOrViper("S3_BUCKET", "s3.bucket"),
		},

		Server: ServerConfig{
			WebhookToken:  getEnvOrViper("WEBHOOK_TOKEN", "server.webhook_token"),
			WebhookPort:   getEnvIntOrViper("WEBHOOK_PORT", "server.webhook_port", 8001),
			MonitorPort:   getEnvIntOrViper("MONITOR_PORT", "server.monitor_port", 8002),
			DashboardPort: getEnvIntOrViper("DASHBOARD_PORT", "server.dashboard_port", 8000),
		},
	}

	if cfg.Notify.SMTPTo == "" {
		cfg.Notify.SMTPTo = cfg.Notify.SMTPUser
	}
	if !filepath.IsAbs(cfg.ReportsDir) {
		cfg.ReportsDir = filepath.Join(absWork, cfg.ReportsDir)
	}
	if !filepath.IsAbs(cfg.Backup.Root) {
		cfg.Backup.Root = filepath.Join(absWork, cfg.Backup.Root)
	}
	cfg.Paths = DefaultPaths().Resolve(absWork)

	return cfg, nil
}

// Validate checks the settings needed to drive the engine.
func (c *Config) Validate() error {
	if c.ProjectPath == "" {
		return errors.New("project path is required (set PROJECT_PATH or project_path)")
	}
	if c.EngineCLI == "" {
		return errors.New("engine CLI is required (set UNITY_CLI or engine_cli)")
	}
	if filepath.IsAbs(c.ScriptsPath) {
		return errors.New("scripts path must be relative to the project (UNITY_SCRIPTS_PATH)")
	}
	return nil
}

// ScriptsRoot is the absolute directory generated scripts are written under.
func (c *Config) ScriptsRoot() string {
	return filepath.Join(c.ProjectPath, c.ScriptsPath)
}

// S3Missing lists the unset S3 variables.
func (c *Config) S3Missing() []string {
	var missing []string
	if c.S3.Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if c.S3.AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3.SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if c.S3.Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	return missing
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// ProjectFlagKey carries the --project flag. It wins over PROJECT_PATH.
const ProjectFlagKey = "project_flag"

// getEnvOrViper returns the value from environment variable or viper config.
func getEnvOrViper(envKey, viperKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return viper.GetString(viperKey)
}

// getEnvIntOrViper is getEnvOrViper for integers; unparsable env values fall through.
func getEnvIntOrViper(envKey, viperKey string, defaultVal int) int {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return getIntOrDefault(viperKey, defaultVal)
}

// getIntOrDefault returns viper int value or default if not set.
func getIntOrDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

// getStringOrDefault returns viper string value or default if not set.
func getStringOrDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

// getDurationOrDefault returns viper duration value or default if not set.
func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultVal
}
