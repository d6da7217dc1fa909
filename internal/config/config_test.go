package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestGetIntOrDefault(t *testing.T) {
	viper.Reset()

	if result := getIntOrDefault("test.key", 42); result != 42 {
		t.Errorf("Expected default 42, got %d", result)
	}

	viper.Set("test.key", 100)
	if result := getIntOrDefault("test.key", 42); result != 100 {
		t.Errorf("Expected 100, got %d", result)
	}
}

func TestGetDurationOrDefault(t *testing.T) {
	viper.Reset()

	if result := getDurationOrDefault("test.duration", 5*time.Second); result != 5*time.Second {
		t.Errorf("Expected 5s, got %v", result)
	}

	viper.Set("test.duration", 10*time.Second)
	if result := getDurationOrDefault("test.duration", 5*time.Second); result != 10*time.Second {
		t.Errorf("Expected 10s, got %v", result)
	}
}

func TestGetEnvOrViper(t *testing.T) {
	viper.Reset()
	viper.Set("project_path", "/from/viper")

	t.Setenv("PROJECT_PATH", "/from/env")
	if got := getEnvOrViper("PROJECT_PATH", "project_path"); got != "/from/env" {
		t.Errorf("Expected env to win, got %s", got)
	}

	t.Setenv("PROJECT_PATH", "")
	if got := getEnvOrViper("PROJECT_PATH", "project_path"); got != "/from/viper" {
		t.Errorf("Expected viper fallback, got %s", got)
	}
}

func TestGetEnvIntOrViper(t *testing.T) {
	viper.Reset()

	t.Setenv("WEBHOOK_PORT", "9001")
	if got := getEnvIntOrViper("WEBHOOK_PORT", "server.webhook_port", 8001); got != 9001 {
		t.Errorf("Expected 9001, got %d", got)
	}

	t.Setenv("WEBHOOK_PORT", "not-a-port")
	if got := getEnvIntOrViper("WEBHOOK_PORT", "server.webhook_port", 8001); got != 8001 {
		t.Errorf("Expected default for garbage env, got %d", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	for _, k := range []string{"PROJECT_PATH", "UNITY_CLI", "UNITY_SCRIPTS_PATH", "BUILD_TARGET", "CI_REPORTS_DIR", "SMTP_TO", "SMTP_USER"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	viper.Set("work_dir", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BuildTarget != "WebGL" {
		t.Errorf("Expected WebGL target, got %s", cfg.BuildTarget)
	}
	if cfg.ReportsDir != filepath.Join(dir, "ci_reports") {
		t.Errorf("Unexpected reports dir %s", cfg.ReportsDir)
	}
	if cfg.LLM.CoderModel != "deepseek-coder:6.7b" {
		t.Errorf("Unexpected coder model %s", cfg.LLM.CoderModel)
	}
	if cfg.Server.MonitorPort != 8002 || cfg.Server.WebhookPort != 8001 || cfg.Server.DashboardPort != 8000 {
		t.Errorf("Unexpected ports %+v", cfg.Server)
	}
	if cfg.Paths.Status != filepath.Join(dir, "pipeline_status.json") {
		t.Errorf("Expected status path resolved against work dir, got %s", cfg.Paths.Status)
	}
	if cfg.EscalationThreshold != 3 {
		t.Errorf("Expected threshold 3, got %d", cfg.EscalationThreshold)
	}
}

func TestLoadProjectFlagBeatsEnv(t *testing.T) {
	viper.Reset()
	viper.Set("work_dir", t.TempDir())
	t.Setenv("PROJECT_PATH", "/from/env")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProjectPath != "/from/env" {
		t.Errorf("Expected env project path without flag, got %q", cfg.ProjectPath)
	}

	viper.Set(ProjectFlagKey, "/from/flag")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProjectPath != "/from/flag" {
		t.Errorf("Expected --project to override PROJECT_PATH, got %q", cfg.ProjectPath)
	}
}

func TestLoadSMTPRecipientFallsBackToUser(t *testing.T) {
	viper.Reset()
	viper.Set("work_dir", t.TempDir())
	t.Setenv("SMTP_USER", "ci@example.com")
	t.Setenv("SMTP_TO", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Notify.SMTPTo != "ci@example.com" {
		t.Errorf("Expected recipient to default to user, got %q", cfg.Notify.SMTPTo)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{ProjectPath: "/p", EngineCLI: "/unity", ScriptsPath: "Assets/Scripts"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	cfg.ScriptsPath = "/abs/Scripts"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "relative") {
		t.Errorf("Expected relative path error, got %v", err)
	}

	cfg = &Config{EngineCLI: "/unity"}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected missing project path error")
	}
}

func TestS3Missing(t *testing.T) {
	cfg := &Config{S3: S3Config{Endpoint: "http://minio:9000", Bucket: "builds"}}
	missing := cfg.S3Missing()
	if strings.Join(missing, ",") != "S3_ACCESS_KEY,S3_SECRET_KEY" {
		t.Errorf("Unexpected missing list %v", missing)
	}
}

func TestLoadPipelineDefaults(t *testing.T) {
	cfg, err := LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{StepBuild, StepPublish, StepQC} {
		if !cfg.Enabled(s) {
			t.Errorf("Expected step %s enabled by default", s)
		}
	}
	if len(cfg.Agents) != 0 {
		t.Errorf("Expected no agents, got %v", cfg.Agents)
	}
}

func TestLoadPipelineOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline_config.yaml")
	os.WriteFile(path, []byte("steps:\n  publish: false\n  qc: 0\nagents:\n  - CoderAgent\n  - TesterAgent\n"), 0644)

	cfg, err := LoadPipeline(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enabled(StepPublish) || cfg.Enabled(StepQC) {
		t.Error("Expected publish and qc disabled")
	}
	if !cfg.Enabled(StepBuild) {
		t.Error("Expected build to keep its default")
	}
	if len(cfg.Agents) != 2 || cfg.Agents[1] != "TesterAgent" {
		t.Errorf("Unexpected agents %v", cfg.Agents)
	}
}

func TestSetAgentsKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline_config.yaml")
	os.WriteFile(path, []byte("steps:\n  build: true\nagents:\n  - CoderAgent\n  - RefactorAgent\nowner: qa\n"), 0644)

	if err := SetAgents(path, []string{"CoderAgent"}); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if strings.Contains(text, "RefactorAgent") {
		t.Errorf("RefactorAgent should be removed:\n%s", text)
	}
	if !strings.Contains(text, "owner: qa") {
		t.Errorf("Other keys should survive:\n%s", text)
	}
	if strings.Index(text, "steps") > strings.Index(text, "agents") {
		t.Errorf("Key order should be kept:\n%s", text)
	}
}

func TestParseBatch(t *testing.T) {
	features, err := ParseBatch([]byte("features:\n  zeta: first prompt\n  alpha: |\n    second\n    prompt\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 2 {
		t.Fatalf("Expected 2 features, got %d", len(features))
	}
	if features[0].Name != "zeta" || features[1].Name != "alpha" {
		t.Errorf("Expected document order, got %v", features)
	}
	if features[1].Prompt != "second\nprompt" {
		t.Errorf("Unexpected prompt %q", features[1].Prompt)
	}
}

func TestParseBatchRejectsList(t *testing.T) {
	_, err := ParseBatch([]byte("features:\n  - a\n  - b\n"))
	if !errors.Is(err, ErrBatchFormat) {
		t.Errorf("Expected ErrBatchFormat, got %v", err)
	}
}
